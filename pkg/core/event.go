package core

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"
)

// Global debug flag that can be set via configuration
var debugMode uint32

// SetDebugMode sets the global debug mode flag.
// When enabled, NewEvent copies payloads so sources may reuse their buffers.
func SetDebugMode(enabled bool) {
	if enabled {
		atomic.StoreUint32(&debugMode, 1)
	} else {
		atomic.StoreUint32(&debugMode, 0)
	}
}

// IsDebugMode returns whether debug mode is enabled
func IsDebugMode() bool {
	return atomic.LoadUint32(&debugMode) == 1
}

// Direction is the direction of a chunk relative to the traced connection.
type Direction uint8

const (
	// Outbound chunks travel local -> remote.
	Outbound Direction = iota
	// Inbound chunks travel remote -> local.
	Inbound
)

func (d Direction) String() string {
	switch d {
	case Outbound:
		return "out"
	case Inbound:
		return "in"
	default:
		return fmt.Sprintf("direction(%d)", uint8(d))
	}
}

// ParseDirection accepts "out"/"outbound"/"send" and "in"/"inbound"/"recv".
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "out", "outbound", "send", "write":
		return Outbound, nil
	case "in", "inbound", "recv", "read":
		return Inbound, nil
	default:
		return 0, fmt.Errorf("unknown direction %q", s)
	}
}

// ConnID identifies a connection for its whole lifetime. Its contents are
// opaque; the instrumentation layer picks them.
type ConnID string

// Event is one chunk of application data observed on a connection.
type Event struct {
	Conn      ConnID
	Dir       Direction
	Payload   []byte
	Timestamp time.Time
}

// NewEvent creates an event. In debug mode the payload is copied.
func NewEvent(id ConnID, dir Direction, payload []byte, ts time.Time) Event {
	if payload != nil && IsDebugMode() {
		payload = append([]byte(nil), payload...)
	}
	return Event{Conn: id, Dir: dir, Payload: payload, Timestamp: ts}
}
