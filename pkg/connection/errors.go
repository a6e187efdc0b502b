package connection

import (
	"errors"
	"fmt"

	"github.com/resock/resock-go/pkg/wire"
)

// Connection errors.
var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrTerminated       = errors.New("connection terminated")
	ErrAlreadyStarted   = errors.New("connect already called")
	ErrQueueFull        = errors.New("outbound queue full")
	ErrRetriesExhausted = errors.New("reconnect attempts exhausted")
	ErrMessageDropped   = errors.New("message dropped by middleware")
	ErrInvalidConfig    = errors.New("invalid configuration")
)

// FaultKind categorizes connection faults.
type FaultKind int

const (
	// FaultTransport is a dropped or failed transport. Drives reconnects.
	FaultTransport FaultKind = iota + 1

	// FaultPipeline is a middleware failure. Does not change state.
	FaultPipeline

	// FaultPolicy is reconnect exhaustion. Terminal.
	FaultPolicy

	// FaultQueue is a queued message that was never delivered.
	FaultQueue

	// FaultInternal is an unrecoverable internal fault such as a malformed
	// inbound frame. Terminal.
	FaultInternal
)

// String returns the fault kind name.
func (k FaultKind) String() string {
	switch k {
	case FaultTransport:
		return "transport"
	case FaultPipeline:
		return "pipeline"
	case FaultPolicy:
		return "policy"
	case FaultQueue:
		return "queue"
	case FaultInternal:
		return "internal"
	default:
		return fmt.Sprintf("fault_%d", int(k))
	}
}

// Fault is a categorized connection error.
type Fault struct {
	Kind FaultKind
	Code wire.CloseCode
	Err  error
}

// Error implements the error interface.
func (f *Fault) Error() string {
	if f.Code != wire.CodeNone {
		return fmt.Sprintf("%s fault (%s): %v", f.Kind, f.Code, f.Err)
	}
	return fmt.Sprintf("%s fault: %v", f.Kind, f.Err)
}

// Unwrap returns the underlying error.
func (f *Fault) Unwrap() error {
	return f.Err
}

// Is matches any Fault of the same kind, so errors.Is(err, &Fault{Kind:
// FaultPipeline}) identifies pipeline faults.
func (f *Fault) Is(target error) bool {
	t, ok := target.(*Fault)
	if !ok {
		return false
	}
	return f.Kind == t.Kind
}

func newFault(kind FaultKind, code wire.CloseCode, err error) *Fault {
	return &Fault{Kind: kind, Code: code, Err: err}
}

// IsPipelineFault reports whether err is a middleware failure.
func IsPipelineFault(err error) bool {
	return errors.Is(err, &Fault{Kind: FaultPipeline})
}

// IsTransportFault reports whether err is a transport failure.
func IsTransportFault(err error) bool {
	return errors.Is(err, &Fault{Kind: FaultTransport})
}

// IsQueueFault reports whether err reports an undelivered queued message.
func IsQueueFault(err error) bool {
	return errors.Is(err, &Fault{Kind: FaultQueue})
}
