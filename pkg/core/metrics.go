package core

// CaptureMetrics contains counters for a capture dispatcher.
type CaptureMetrics struct {
	// ConnectionsArmed is the number of StartTrace calls that succeeded.
	ConnectionsArmed uint64

	// ConnectionsStopped is the number of traces torn down.
	ConnectionsStopped uint64

	// ConnectionsActive is the number of currently traced connections.
	ConnectionsActive uint64

	// EventsWritten is the number of events fully written to the capture file.
	EventsWritten uint64

	// EventsDropped is the number of events rejected for untraced connections.
	EventsDropped uint64

	// RecordsWritten is the number of capture records appended.
	RecordsWritten uint64

	// PayloadBytes is the number of application bytes written.
	PayloadBytes uint64

	// WriteErrors is the number of failed record writes.
	WriteErrors uint64
}
