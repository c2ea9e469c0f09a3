package trace

import (
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/irctrakz/chunkcap/pkg/core"
	"github.com/irctrakz/chunkcap/pkg/logging"
)

// Tracer attaches a Dispatcher to an instrumentation Source. Arming a
// connection starts its trace and subscribes to its events; disarming stops
// delivery and drops the state.
type Tracer struct {
	src core.Source
	d   *Dispatcher
	log *logrus.Entry

	mu   sync.Mutex
	subs map[core.ConnID]core.Subscription
}

// NewTracer creates a tracer feeding src's events into d.
func NewTracer(src core.Source, d *Dispatcher) *Tracer {
	return &Tracer{
		src:  src,
		d:    d,
		log:  logging.Component("tracer"),
		subs: make(map[core.ConnID]core.Subscription),
	}
}

// Arm starts tracing the connection with the given id.
func (t *Tracer) Arm(id core.ConnID) error {
	conns, err := t.src.Connections()
	if err != nil {
		return fmt.Errorf("list connections: %w", err)
	}
	for _, ci := range conns {
		if ci.ID == id {
			return t.arm(ci)
		}
	}
	return fmt.Errorf("arm %q: unknown connection", id)
}

// ArmMatching arms every listed connection accepted by match (all of them
// when match is nil) and returns how many were armed. Already armed
// connections are skipped.
func (t *Tracer) ArmMatching(match func(core.ConnInfo) bool) (int, error) {
	conns, err := t.src.Connections()
	if err != nil {
		return 0, fmt.Errorf("list connections: %w", err)
	}
	n := 0
	for _, ci := range conns {
		if match != nil && !match(ci) {
			continue
		}
		if err := t.arm(ci); err != nil {
			if errors.Is(err, ErrAlreadyTraced) {
				continue
			}
			return n, err
		}
		n++
	}
	return n, nil
}

func (t *Tracer) arm(ci core.ConnInfo) error {
	if err := t.d.StartTrace(ci.ID, ci.Local, ci.Remote); err != nil {
		return err
	}
	sub, err := t.src.Subscribe(ci.ID, t)
	if err != nil {
		_ = t.d.StopTrace(ci.ID)
		return fmt.Errorf("subscribe %q: %w", ci.ID, err)
	}
	t.mu.Lock()
	t.subs[ci.ID] = sub
	t.mu.Unlock()
	return nil
}

// Disarm stops event delivery for id and discards its state.
func (t *Tracer) Disarm(id core.ConnID) error {
	t.mu.Lock()
	sub, ok := t.subs[id]
	delete(t.subs, id)
	t.mu.Unlock()

	var subErr error
	if ok {
		subErr = sub.Stop()
	}
	if err := t.d.StopTrace(id); err != nil {
		return err
	}
	return subErr
}

// Close disarms every connection armed through this tracer.
func (t *Tracer) Close() error {
	t.mu.Lock()
	ids := make([]core.ConnID, 0, len(t.subs))
	for id := range t.subs {
		ids = append(ids, id)
	}
	t.mu.Unlock()

	var errs []error
	for _, id := range ids {
		if err := t.Disarm(id); err != nil && !errors.Is(err, core.ErrNotTraced) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// HandleEvent implements core.Subscriber. Events for connections that are no
// longer traced are dropped; write failures go back to the source.
func (t *Tracer) HandleEvent(ev core.Event) error {
	err := t.d.OnEvent(ev)
	if errors.Is(err, core.ErrNotTraced) {
		t.log.WithField("conn", ev.Conn).Debug("dropping event for untraced connection")
		return nil
	}
	return err
}

// HandleClose implements core.Subscriber.
func (t *Tracer) HandleClose(id core.ConnID) {
	t.mu.Lock()
	delete(t.subs, id)
	t.mu.Unlock()
	if err := t.d.StopTrace(id); err == nil {
		t.log.WithField("conn", id).Info("connection closed")
	}
}
