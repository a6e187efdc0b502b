package log

import (
	"time"

	"github.com/resock/resock-go/pkg/wire"
)

// MaxFrameCapture is the number of frame bytes kept in a FrameRecord.
const MaxFrameCapture = 512

// Record is one captured protocol observation.
type Record struct {
	Timestamp time.Time `cbor:"1,keyasint"`
	ConnID    string    `cbor:"2,keyasint"`
	Role      Role      `cbor:"3,keyasint"`
	Kind      Kind      `cbor:"4,keyasint"`
	Direction Direction `cbor:"5,keyasint,omitempty"`
	Remote    string    `cbor:"6,keyasint,omitempty"`

	// Exactly one of these is set, matching Kind.
	Frame *FrameRecord `cbor:"7,keyasint,omitempty"`
	State *StateRecord `cbor:"8,keyasint,omitempty"`
	Event *wire.Event  `cbor:"9,keyasint,omitempty"`
	Error *ErrorRecord `cbor:"10,keyasint,omitempty"`
}

// Kind classifies a record.
type Kind uint8

const (
	KindFrame Kind = iota
	KindState
	KindEvent
	KindError
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindFrame:
		return "FRAME"
	case KindState:
		return "STATE"
	case KindEvent:
		return "EVENT"
	case KindError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseKind parses a kind name as printed by String.
func ParseKind(s string) (Kind, bool) {
	for k := KindFrame; k <= KindError; k++ {
		if k.String() == s {
			return k, true
		}
	}
	return 0, false
}

// Direction is the flow of a frame.
type Direction uint8

const (
	DirectionNone Direction = iota
	DirectionIn
	DirectionOut
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionNone:
		return "-"
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// Role is the side of the socket that captured the record.
type Role uint8

const (
	RoleClient Role = iota
	RoleServer
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

// FrameRecord holds the bytes of one frame.
type FrameRecord struct {
	Size      int    `cbor:"1,keyasint"`
	Data      []byte `cbor:"2,keyasint,omitempty"`
	Truncated bool   `cbor:"3,keyasint,omitempty"`
}

// StateRecord holds a lifecycle transition.
type StateRecord struct {
	Old     string `cbor:"1,keyasint,omitempty"`
	New     string `cbor:"2,keyasint"`
	Reason  string `cbor:"3,keyasint,omitempty"`
	Attempt int    `cbor:"4,keyasint,omitempty"`
}

// ErrorRecord holds a failure.
type ErrorRecord struct {
	Message string         `cbor:"1,keyasint"`
	Code    wire.CloseCode `cbor:"2,keyasint,omitempty"`
	Context string         `cbor:"3,keyasint,omitempty"`
}

// FrameRec builds a frame record, keeping at most MaxFrameCapture bytes.
func FrameRec(connID string, role Role, dir Direction, data []byte) Record {
	fr := &FrameRecord{Size: len(data)}
	if len(data) > MaxFrameCapture {
		fr.Data = append([]byte(nil), data[:MaxFrameCapture]...)
		fr.Truncated = true
	} else {
		fr.Data = append([]byte(nil), data...)
	}
	return Record{
		Timestamp: time.Now(),
		ConnID:    connID,
		Role:      role,
		Kind:      KindFrame,
		Direction: dir,
		Frame:     fr,
	}
}

// StateRec builds a state record.
func StateRec(connID string, role Role, old, new, reason string, attempt int) Record {
	return Record{
		Timestamp: time.Now(),
		ConnID:    connID,
		Role:      role,
		Kind:      KindState,
		State:     &StateRecord{Old: old, New: new, Reason: reason, Attempt: attempt},
	}
}

// EventRec builds a lifecycle event record.
func EventRec(role Role, ev wire.Event) Record {
	ts := ev.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	return Record{
		Timestamp: ts,
		ConnID:    ev.ConnID,
		Role:      role,
		Kind:      KindEvent,
		Event:     &ev,
	}
}

// ErrorRec builds an error record.
func ErrorRec(connID string, role Role, err error, code wire.CloseCode, context string) Record {
	return Record{
		Timestamp: time.Now(),
		ConnID:    connID,
		Role:      role,
		Kind:      KindError,
		Error:     &ErrorRecord{Message: err.Error(), Code: code, Context: context},
	}
}
