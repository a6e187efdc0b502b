package wire

import (
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// ErrMalformedFrame is returned when inbound bytes cannot be decoded into a
// frame.
var ErrMalformedFrame = errors.New("malformed frame")

// encMode is the CBOR encoder mode for frames.
// Configured for deterministic encoding with integer keys.
var encMode cbor.EncMode

// decMode is the CBOR decoder mode for frames.
var decMode cbor.DecMode

func init() {
	var err error

	encOpts := cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		Time:          cbor.TimeRFC3339Nano,
	}
	encMode, err = encOpts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create CBOR encoder mode: %v", err))
	}

	// Lenient for forward compatibility: unknown keys are ignored.
	decOpts := cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyQuiet,
		IndefLength:       cbor.IndefLengthAllowed,
		ExtraReturnErrors: cbor.ExtraDecErrorNone,
	}
	decMode, err = decOpts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create CBOR decoder mode: %v", err))
	}
}

// Marshal encodes a value to CBOR bytes.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes CBOR bytes into a value.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// FrameKind discriminates frames. The zero value is invalid so that empty
// maps are rejected.
type FrameKind uint8

const (
	// FrameData carries an opaque application payload.
	FrameData FrameKind = 1

	// FrameEvent carries a connection event pushed by the peer.
	FrameEvent FrameKind = 2
)

// String returns the frame kind name.
func (k FrameKind) String() string {
	switch k {
	case FrameData:
		return "DATA"
	case FrameEvent:
		return "EVENT"
	default:
		return "UNKNOWN"
	}
}

// Frame is the unit carried by one transport message.
type Frame struct {
	Kind    FrameKind `cbor:"1,keyasint"`
	Payload []byte    `cbor:"2,keyasint,omitempty"`
	Event   *Event    `cbor:"3,keyasint,omitempty"`
}

// DataFrame wraps an application payload.
func DataFrame(payload []byte) Frame {
	return Frame{Kind: FrameData, Payload: payload}
}

// EventFrame wraps a connection event.
func EventFrame(ev Event) Frame {
	return Frame{Kind: FrameEvent, Event: &ev}
}

// Validate checks the frame's structural invariants.
func (f Frame) Validate() error {
	switch f.Kind {
	case FrameData:
		return nil
	case FrameEvent:
		if f.Event == nil {
			return fmt.Errorf("%w: event frame without event", ErrMalformedFrame)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown kind %d", ErrMalformedFrame, f.Kind)
	}
}

// Codec converts frames to and from transport messages.
type Codec interface {
	// Encode serializes a frame.
	Encode(f Frame) ([]byte, error)

	// Decode parses a transport message. Errors wrap ErrMalformedFrame.
	Decode(data []byte) (Frame, error)
}

// CBORCodec encodes frames as CBOR maps with integer keys.
type CBORCodec struct{}

// Encode implements Codec.
func (CBORCodec) Encode(f Frame) ([]byte, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return Marshal(f)
}

// Decode implements Codec.
func (CBORCodec) Decode(data []byte) (Frame, error) {
	var f Frame
	if err := Unmarshal(data, &f); err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if err := f.Validate(); err != nil {
		return Frame{}, err
	}
	return f, nil
}

// RawCodec passes payloads through untouched. Event frames cannot be
// encoded because the peer would be unable to tell them apart from data.
type RawCodec struct{}

// Encode implements Codec.
func (RawCodec) Encode(f Frame) ([]byte, error) {
	if f.Kind != FrameData {
		return nil, fmt.Errorf("raw codec cannot encode %s frames", f.Kind)
	}
	return f.Payload, nil
}

// Decode implements Codec.
func (RawCodec) Decode(data []byte) (Frame, error) {
	return DataFrame(data), nil
}

// Compile-time interface satisfaction checks.
var (
	_ Codec = CBORCodec{}
	_ Codec = RawCodec{}
)
