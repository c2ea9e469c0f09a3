package core

import "errors"

// ErrNotTraced is returned for events or stop requests on a connection that
// is not currently armed for tracing.
var ErrNotTraced = errors.New("connection not traced")

// ConnInfo describes a connection that may be traced.
type ConnInfo struct {
	ID     ConnID
	Local  Endpoint
	Remote Endpoint
}

// Source is the instrumentation layer that observes application data.
type Source interface {
	// Connections lists connections eligible for tracing
	Connections() ([]ConnInfo, error)

	// Subscribe arms delivery of every chunk on the connection to sub, in
	// delivery order. Stopping the returned subscription disarms delivery.
	Subscribe(id ConnID, sub Subscriber) (Subscription, error)
}

// Subscriber receives events from a Source.
type Subscriber interface {
	// HandleEvent processes one chunk. Errors are reported back to the source.
	HandleEvent(ev Event) error

	// HandleClose is called once when the connection closes.
	HandleClose(id ConnID)
}

// Subscription is an armed event delivery.
type Subscription interface {
	// Stop disarms future delivery
	Stop() error
}
