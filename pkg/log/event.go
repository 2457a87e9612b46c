package log

import (
	"time"
)

// Event represents a transport event for one connection.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// ConnectionID uniquely identifies the connection (UUID).
	ConnectionID string `cbor:"2,keyasint"`

	// Category classifies the event type.
	Category Category `cbor:"3,keyasint"`

	// Role indicates whether the local endpoint dialed or accepted.
	Role Role `cbor:"4,keyasint,omitempty"`

	// RemoteAddr is the peer address (IP:port).
	RemoteAddr string `cbor:"5,keyasint,omitempty"`

	// Type-specific payload (exactly one of these is set).
	StateChange *StateChangeEvent `cbor:"6,keyasint,omitempty"` // Connection lifecycle
	Traffic     *TrafficEvent     `cbor:"7,keyasint,omitempty"` // Byte counters
	Error       *ErrorEvent       `cbor:"8,keyasint,omitempty"` // Errors
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryState indicates a connection state change.
	CategoryState Category = 0
	// CategoryTraffic indicates a traffic summary.
	CategoryTraffic Category = 1
	// CategoryError indicates an error event.
	CategoryError Category = 2
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryState:
		return "STATE"
	case CategoryTraffic:
		return "TRAFFIC"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Role indicates whether the local endpoint dialed or accepted the connection.
type Role uint8

const (
	// RoleClient indicates the local endpoint dialed.
	RoleClient Role = 0
	// RoleServer indicates the local endpoint accepted.
	RoleServer Role = 1
)

// String returns the role name.
func (r Role) String() string {
	switch r {
	case RoleClient:
		return "CLIENT"
	case RoleServer:
		return "SERVER"
	default:
		return "UNKNOWN"
	}
}

// StateChangeEvent captures a connection lifecycle transition.
type StateChangeEvent struct {
	// OldState is the previous state (may be empty).
	OldState string `cbor:"1,keyasint,omitempty"`

	// NewState is the new state.
	NewState string `cbor:"2,keyasint"`

	// Reason for the change (if available).
	Reason string `cbor:"3,keyasint,omitempty"`
}

// TrafficEvent captures byte counters for a connection, emitted when the
// connection closes.
type TrafficEvent struct {
	// BytesRead is the total number of payload bytes read.
	BytesRead int64 `cbor:"1,keyasint"`

	// BytesWritten is the total number of payload bytes written.
	BytesWritten int64 `cbor:"2,keyasint"`
}

// ErrorEvent captures an error observed on the transport.
type ErrorEvent struct {
	// Message is the error message.
	Message string `cbor:"1,keyasint"`

	// Context describes what operation was being performed.
	Context string `cbor:"2,keyasint,omitempty"`
}
