// Package trace owns the table of traced connections and turns their events
// into capture records.
package trace

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/irctrakz/chunkcap/pkg/core"
	"github.com/irctrakz/chunkcap/pkg/logging"
	"github.com/irctrakz/chunkcap/pkg/synth"
)

var (
	// ErrAlreadyTraced is returned by StartTrace for an armed connection.
	ErrAlreadyTraced = errors.New("connection already traced")
	// ErrFamilyMismatch is returned when local and remote families differ.
	ErrFamilyMismatch = errors.New("endpoint address families differ")
)

// RecordWriter appends one record (header + network/transport headers +
// payload) to a capture file, writing the file header first if needed.
type RecordWriter interface {
	WriteRecord(ts time.Time, hdr, payload []byte) error
}

// conn is one traced connection. mu is held across synthesis, write and
// counter update so a connection's records land in call order.
type conn struct {
	mu      sync.Mutex
	state   core.ConnState
	stopped bool
}

// Dispatcher receives events, tracks per-connection state and drives the
// record writer.
type Dispatcher struct {
	writer RecordWriter
	synth  *synth.Synthesizer
	log    *logrus.Entry

	maxSegment int

	mu    sync.RWMutex
	conns map[core.ConnID]*conn

	armed          uint64
	stopped        uint64
	eventsWritten  uint64
	eventsDropped  uint64
	recordsWritten uint64
	payloadBytes   uint64
	writeErrors    uint64
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithMaxSegment caps the payload carried by a single record; larger chunks
// are split. Values <= 0 keep the default (as much as a record can hold).
func WithMaxSegment(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.maxSegment = n
		}
	}
}

// NewDispatcher creates a dispatcher writing through w. A nil synthesizer
// uses synth.DefaultOptions.
func NewDispatcher(w RecordWriter, s *synth.Synthesizer, opts ...Option) *Dispatcher {
	if s == nil {
		s = synth.New(synth.DefaultOptions())
	}
	d := &Dispatcher{
		writer: w,
		synth:  s,
		log:    logging.Component("trace"),
		conns:  make(map[core.ConnID]*conn),
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// StartTrace arms a connection with both counters at zero.
func (d *Dispatcher) StartTrace(id core.ConnID, local, remote core.Endpoint) error {
	if !local.Valid() || !remote.Valid() {
		return fmt.Errorf("start trace %q: %w", id, core.ErrInvalidAddress)
	}
	if local.Family() != remote.Family() {
		return fmt.Errorf("start trace %q: %w (%s vs %s)", id, ErrFamilyMismatch, local.Family(), remote.Family())
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.conns[id]; ok {
		return fmt.Errorf("start trace %q: %w", id, ErrAlreadyTraced)
	}
	d.conns[id] = &conn{state: core.ConnState{ID: id, Local: local, Remote: remote}}
	atomic.AddUint64(&d.armed, 1)

	d.log.WithFields(logrus.Fields{"conn": id, "local": local, "remote": remote}).Info("trace started")
	return nil
}

// StopTrace disarms a connection and drops its state. Records already
// written are left untouched.
func (d *Dispatcher) StopTrace(id core.ConnID) error {
	d.mu.Lock()
	c, ok := d.conns[id]
	if ok {
		delete(d.conns, id)
	}
	d.mu.Unlock()
	if !ok {
		return fmt.Errorf("stop trace %q: %w", id, core.ErrNotTraced)
	}

	// wait for an in-flight event on this connection to finish
	c.mu.Lock()
	c.stopped = true
	st := c.state
	c.mu.Unlock()
	atomic.AddUint64(&d.stopped, 1)

	d.log.WithFields(logrus.Fields{"conn": id, "seq_out": st.SeqOut, "seq_in": st.SeqIn}).Info("trace stopped")
	return nil
}

// StopAll disarms every connection.
func (d *Dispatcher) StopAll() {
	for _, id := range d.Traced() {
		_ = d.StopTrace(id)
	}
}

// OnEvent writes one event as capture records. Events for untraced
// connections are rejected with core.ErrNotTraced. Write errors are returned
// as-is (wrapped) and leave the connection's counter where it was.
func (d *Dispatcher) OnEvent(ev core.Event) error {
	d.mu.RLock()
	c := d.conns[ev.Conn]
	d.mu.RUnlock()
	if c == nil {
		atomic.AddUint64(&d.eventsDropped, 1)
		return fmt.Errorf("event on %q: %w", ev.Conn, core.ErrNotTraced)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		atomic.AddUint64(&d.eventsDropped, 1)
		return fmt.Errorf("event on %q: %w", ev.Conn, core.ErrNotTraced)
	}

	limit := synth.MaxPayload(c.state.Family())
	if d.maxSegment > 0 && d.maxSegment < limit {
		limit = d.maxSegment
	}

	payload := ev.Payload
	for {
		seg := payload
		if len(seg) > limit {
			seg = seg[:limit]
		}
		hdr := d.synth.Headers(c.state, ev.Dir, len(seg))
		if err := d.writer.WriteRecord(ev.Timestamp, hdr, seg); err != nil {
			atomic.AddUint64(&d.writeErrors, 1)
			d.log.WithFields(logrus.Fields{"conn": ev.Conn, "dir": ev.Dir}).WithError(err).Error("capture write failed")
			return fmt.Errorf("event on %q: %w", ev.Conn, err)
		}
		c.state.Advance(ev.Dir, len(seg))
		atomic.AddUint64(&d.recordsWritten, 1)
		atomic.AddUint64(&d.payloadBytes, uint64(len(seg)))

		payload = payload[len(seg):]
		if len(payload) == 0 {
			break
		}
	}
	atomic.AddUint64(&d.eventsWritten, 1)

	if d.log.Logger.IsLevelEnabled(logrus.DebugLevel) {
		d.log.WithFields(logrus.Fields{
			"conn": ev.Conn,
			"dir":  ev.Dir,
			"len":  len(ev.Payload),
			"seq":  c.state.Seq(ev.Dir),
		}).Debug("event captured")
	}
	return nil
}

// State returns a snapshot of a traced connection.
func (d *Dispatcher) State(id core.ConnID) (core.ConnState, bool) {
	d.mu.RLock()
	c := d.conns[id]
	d.mu.RUnlock()
	if c == nil {
		return core.ConnState{}, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state, true
}

// IsTraced reports whether id is armed.
func (d *Dispatcher) IsTraced(id core.ConnID) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.conns[id]
	return ok
}

// Traced returns the armed connection ids in sorted order.
func (d *Dispatcher) Traced() []core.ConnID {
	d.mu.RLock()
	ids := make([]core.ConnID, 0, len(d.conns))
	for id := range d.conns {
		ids = append(ids, id)
	}
	d.mu.RUnlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Metrics returns a snapshot of the dispatcher counters.
func (d *Dispatcher) Metrics() core.CaptureMetrics {
	d.mu.RLock()
	active := uint64(len(d.conns))
	d.mu.RUnlock()
	return core.CaptureMetrics{
		ConnectionsArmed:   atomic.LoadUint64(&d.armed),
		ConnectionsStopped: atomic.LoadUint64(&d.stopped),
		ConnectionsActive:  active,
		EventsWritten:      atomic.LoadUint64(&d.eventsWritten),
		EventsDropped:      atomic.LoadUint64(&d.eventsDropped),
		RecordsWritten:     atomic.LoadUint64(&d.recordsWritten),
		PayloadBytes:       atomic.LoadUint64(&d.payloadBytes),
		WriteErrors:        atomic.LoadUint64(&d.writeErrors),
	}
}
