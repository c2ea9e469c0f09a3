package feed

import (
	"fmt"
	"sync"
	"time"

	"github.com/irctrakz/chunkcap/pkg/core"
)

// Mock is an in-memory core.Source for tests and embedding. Events are
// delivered synchronously on the caller's goroutine.
type Mock struct {
	mu    sync.Mutex
	conns []core.ConnInfo
	subs  map[core.ConnID]*mockSub
}

type mockSub struct {
	m   *Mock
	id  core.ConnID
	sub core.Subscriber
}

// NewMock creates an empty mock source.
func NewMock() *Mock {
	return &Mock{subs: make(map[core.ConnID]*mockSub)}
}

// AddConn makes a connection eligible for tracing.
func (m *Mock) AddConn(ci core.ConnInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conns = append(m.conns, ci)
}

// Connections implements core.Source.
func (m *Mock) Connections() ([]core.ConnInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]core.ConnInfo(nil), m.conns...), nil
}

// Subscribe implements core.Source.
func (m *Mock) Subscribe(id core.ConnID, sub core.Subscriber) (core.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.subs[id]; ok {
		return nil, fmt.Errorf("connection %q already subscribed", id)
	}
	s := &mockSub{m: m, id: id, sub: sub}
	m.subs[id] = s
	return s, nil
}

func (s *mockSub) Stop() error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if s.m.subs[s.id] == s {
		delete(s.m.subs, s.id)
	}
	return nil
}

// Subscribed reports whether id currently has a subscriber.
func (m *Mock) Subscribed(id core.ConnID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.subs[id]
	return ok
}

// Emit delivers a chunk to the connection's subscriber. It reports false when
// nobody is subscribed.
func (m *Mock) Emit(id core.ConnID, dir core.Direction, payload []byte, ts time.Time) (bool, error) {
	m.mu.Lock()
	s := m.subs[id]
	m.mu.Unlock()
	if s == nil {
		return false, nil
	}
	return true, s.sub.HandleEvent(core.NewEvent(id, dir, payload, ts))
}

// Close signals that the connection closed and drops its subscription.
func (m *Mock) Close(id core.ConnID) {
	m.mu.Lock()
	s := m.subs[id]
	delete(m.subs, id)
	m.mu.Unlock()
	if s != nil {
		s.sub.HandleClose(id)
	}
}
