package transport

import (
	"context"
	"errors"
	"net/http"

	"github.com/resock/resock-go/pkg/wire"
)

// Transport errors.
var (
	ErrClosed      = errors.New("transport closed")
	ErrInvalidCode = errors.New("close code cannot be sent on the wire")
)

// Transport is one established socket.
type Transport interface {
	// Send writes one message. It honors the context deadline.
	Send(ctx context.Context, data []byte) error

	// Close starts the closing handshake with the given code. The listener
	// still receives OnClose once the socket is gone.
	Close(code wire.CloseCode, reason string) error
}

// Listener receives the events of one transport. Calls are serialized and
// OnClose is the last call made.
type Listener interface {
	// OnOpen is called once before any message is delivered.
	OnOpen()

	// OnMessage is called for each inbound text or binary message.
	OnMessage(data []byte)

	// OnClose is called exactly once when the socket is gone.
	OnClose(code wire.CloseCode, reason string)

	// OnError reports a non-fatal transport error.
	OnError(err error)
}

// Dialer establishes client transports.
type Dialer interface {
	// Dial connects to target. On success the returned transport reports
	// to l; on failure l is never called.
	Dial(ctx context.Context, target Target, l Listener) (Transport, error)
}

// Target describes the remote endpoint.
type Target struct {
	// URL is the ws:// or wss:// endpoint.
	URL string

	// Protocols are the subprotocols offered during the handshake.
	Protocols []string

	// AuthToken is sent as a bearer token when not empty.
	AuthToken string

	// Header holds extra handshake headers.
	Header http.Header
}

// RequestHeader returns the handshake headers for t.
func (t Target) RequestHeader() http.Header {
	h := http.Header{}
	for k, v := range t.Header {
		h[k] = append([]string(nil), v...)
	}
	if t.AuthToken != "" {
		h.Set("Authorization", "Bearer "+t.AuthToken)
	}
	return h
}

// ListenerFuncs adapts plain functions to Listener. Nil fields are ignored.
type ListenerFuncs struct {
	Open    func()
	Message func(data []byte)
	Closed  func(code wire.CloseCode, reason string)
	Error   func(err error)
}

// OnOpen implements Listener.
func (f ListenerFuncs) OnOpen() {
	if f.Open != nil {
		f.Open()
	}
}

// OnMessage implements Listener.
func (f ListenerFuncs) OnMessage(data []byte) {
	if f.Message != nil {
		f.Message(data)
	}
}

// OnClose implements Listener.
func (f ListenerFuncs) OnClose(code wire.CloseCode, reason string) {
	if f.Closed != nil {
		f.Closed(code, reason)
	}
}

// OnError implements Listener.
func (f ListenerFuncs) OnError(err error) {
	if f.Error != nil {
		f.Error(err)
	}
}

// Compile-time interface satisfaction checks.
var (
	_ Transport = (*GorillaTransport)(nil)
	_ Transport = (*CoderTransport)(nil)
	_ Dialer    = (*GorillaDialer)(nil)
	_ Dialer    = (*CoderDialer)(nil)
	_ Listener  = ListenerFuncs{}
)
