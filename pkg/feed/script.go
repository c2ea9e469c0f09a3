// Package feed provides instrumentation sources that produce capture events
// without intercepting a live process: a JSON-lines replay script and an
// in-memory mock.
package feed

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/irctrakz/chunkcap/pkg/core"
	"github.com/irctrakz/chunkcap/pkg/logging"
)

// Script operations.
const (
	OpConn  = "conn"
	OpData  = "data"
	OpClose = "close"
)

// Line is one JSON line of a replay script.
type Line struct {
	Op     string `json:"op"`
	Conn   string `json:"conn"`
	Local  string `json:"local,omitempty"`
	Remote string `json:"remote,omitempty"`
	Dir    string `json:"dir,omitempty"`
	TS     string `json:"ts,omitempty"`
	Text   string `json:"text,omitempty"`
	B64    string `json:"b64,omitempty"`
}

type step struct {
	op      string
	id      core.ConnID
	dir     core.Direction
	payload []byte
	ts      time.Time
}

// Script replays recorded chunks. It implements core.Source: connections
// declared with "conn" lines are listed, and Play delivers "data" and
// "close" lines to whoever subscribed, in file order.
type Script struct {
	conns []core.ConnInfo
	steps []step
	log   *logrus.Entry

	mu   sync.Mutex
	subs map[core.ConnID]*scriptSub

	// Now stamps data lines without a "ts" field.
	Now func() time.Time
}

// LoadScriptFile parses a script from a file.
func LoadScriptFile(path string) (*Script, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open script: %w", err)
	}
	defer f.Close()
	return LoadScript(f)
}

// LoadScript parses a JSON-lines script. Blank lines and lines starting with
// '#' are ignored.
func LoadScript(r io.Reader) (*Script, error) {
	s := &Script{
		log:  logging.Component("feed"),
		subs: make(map[core.ConnID]*scriptSub),
		Now:  time.Now,
	}
	declared := make(map[core.ConnID]bool)

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		var ln Line
		if err := json.Unmarshal([]byte(text), &ln); err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		if ln.Conn == "" {
			return nil, fmt.Errorf("line %d: missing conn", lineNo)
		}
		id := core.ConnID(ln.Conn)

		switch ln.Op {
		case OpConn:
			if declared[id] {
				return nil, fmt.Errorf("line %d: connection %q declared twice", lineNo, id)
			}
			local, err := core.ParseEndpoint(ln.Local)
			if err != nil {
				return nil, fmt.Errorf("line %d: local: %w", lineNo, err)
			}
			remote, err := core.ParseEndpoint(ln.Remote)
			if err != nil {
				return nil, fmt.Errorf("line %d: remote: %w", lineNo, err)
			}
			declared[id] = true
			s.conns = append(s.conns, core.ConnInfo{ID: id, Local: local, Remote: remote})
		case OpData:
			st, err := parseData(ln)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNo, err)
			}
			s.steps = append(s.steps, st)
		case OpClose:
			s.steps = append(s.steps, step{op: OpClose, id: id})
		default:
			return nil, fmt.Errorf("line %d: unknown op %q", lineNo, ln.Op)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read script: %w", err)
	}
	return s, nil
}

func parseData(ln Line) (step, error) {
	dir, err := core.ParseDirection(ln.Dir)
	if err != nil {
		return step{}, err
	}
	st := step{op: OpData, id: core.ConnID(ln.Conn), dir: dir}
	switch {
	case ln.B64 != "" && ln.Text != "":
		return step{}, fmt.Errorf("both text and b64 set")
	case ln.B64 != "":
		st.payload, err = base64.StdEncoding.DecodeString(ln.B64)
		if err != nil {
			return step{}, fmt.Errorf("b64: %w", err)
		}
	default:
		st.payload = []byte(ln.Text)
	}
	if ln.TS != "" {
		st.ts, err = time.Parse(time.RFC3339Nano, ln.TS)
		if err != nil {
			return step{}, fmt.Errorf("ts: %w", err)
		}
	}
	return st, nil
}

// Connections implements core.Source.
func (s *Script) Connections() ([]core.ConnInfo, error) {
	return append([]core.ConnInfo(nil), s.conns...), nil
}

// Subscribe implements core.Source.
func (s *Script) Subscribe(id core.ConnID, sub core.Subscriber) (core.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subs[id]; ok {
		return nil, fmt.Errorf("connection %q already subscribed", id)
	}
	ss := &scriptSub{s: s, id: id, sub: sub}
	s.subs[id] = ss
	return ss, nil
}

type scriptSub struct {
	s   *Script
	id  core.ConnID
	sub core.Subscriber
}

func (ss *scriptSub) Stop() error {
	ss.s.mu.Lock()
	defer ss.s.mu.Unlock()
	if ss.s.subs[ss.id] == ss {
		delete(ss.s.subs, ss.id)
	}
	return nil
}

// PlayStats summarizes a replay.
type PlayStats struct {
	Delivered int
	Skipped   int
	Closed    int
}

// Play delivers every step in order. Data for connections without a
// subscriber is skipped. The first subscriber error stops the replay.
// Cancellation is checked between steps only.
func (s *Script) Play(ctx context.Context) (PlayStats, error) {
	var stats PlayStats
	for i, st := range s.steps {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		s.mu.Lock()
		ss := s.subs[st.id]
		if st.op == OpClose {
			delete(s.subs, st.id)
		}
		s.mu.Unlock()

		if ss == nil {
			stats.Skipped++
			continue
		}
		if st.op == OpClose {
			ss.sub.HandleClose(st.id)
			stats.Closed++
			continue
		}

		ts := st.ts
		if ts.IsZero() {
			ts = s.Now()
		}
		if err := ss.sub.HandleEvent(core.NewEvent(st.id, st.dir, st.payload, ts)); err != nil {
			return stats, fmt.Errorf("step %d (conn %q): %w", i, st.id, err)
		}
		stats.Delivered++
	}
	s.log.WithFields(logrus.Fields{
		"delivered": stats.Delivered,
		"skipped":   stats.Skipped,
		"closed":    stats.Closed,
	}).Info("replay finished")
	return stats, nil
}
