package wire

import "time"

// EventType discriminates connection events.
type EventType uint8

const (
	// EventNewConnection is emitted when a connection reaches Connected.
	EventNewConnection EventType = iota

	// EventClose is emitted when a transport closes.
	EventClose

	// EventMessage is emitted for every inbound data message.
	EventMessage

	// EventError is emitted for transport faults, policy exhaustion and
	// unrecoverable internal faults.
	EventError

	// EventWarning is emitted for non-fatal faults.
	EventWarning

	// EventInfo is emitted for informational lifecycle notices.
	EventInfo
)

// String returns the event type name.
func (t EventType) String() string {
	switch t {
	case EventNewConnection:
		return "NEW_CONNECTION"
	case EventClose:
		return "CLOSE"
	case EventMessage:
		return "MESSAGE"
	case EventError:
		return "ERROR"
	case EventWarning:
		return "WARNING"
	case EventInfo:
		return "INFO"
	default:
		return "UNKNOWN"
	}
}

// Event is a connection event.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	Type      EventType `cbor:"1,keyasint"`
	Code      CloseCode `cbor:"2,keyasint,omitempty"`
	Reason    string    `cbor:"3,keyasint,omitempty"`
	Payload   []byte    `cbor:"4,keyasint,omitempty"`
	ConnID    string    `cbor:"5,keyasint,omitempty"`
	Timestamp time.Time `cbor:"6,keyasint"`
}

// NewEvent creates an event stamped with the current time.
func NewEvent(typ EventType, code CloseCode, reason string) Event {
	return Event{
		Type:      typ,
		Code:      code,
		Reason:    reason,
		Timestamp: time.Now(),
	}
}

// WithConn returns a copy of e attributed to the given connection.
func (e Event) WithConn(connID string) Event {
	e.ConnID = connID
	return e
}

// WithPayload returns a copy of e carrying payload.
func (e Event) WithPayload(payload []byte) Event {
	e.Payload = payload
	return e
}
