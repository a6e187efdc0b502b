package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	resocklog "github.com/resock/resock-go/pkg/log"
	"github.com/resock/resock-go/pkg/middleware"
	"github.com/resock/resock-go/pkg/transport"
	"github.com/resock/resock-go/pkg/wire"
)

// Session is one accepted WebSocket connection.
type Session struct {
	id     string
	srv    *Server
	remote string
	header http.Header
	logger *slog.Logger

	ready       chan struct{}
	tr          transport.Transport
	subprotocol string

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu     sync.Mutex
	params map[string]any
	idle   *time.Timer
	closed bool
}

func newSession(srv *Server, r *http.Request) *Session {
	id := uuid.NewString()
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		id:     id,
		srv:    srv,
		remote: r.RemoteAddr,
		header: r.Header.Clone(),
		logger: srv.logger.With("session_id", id, "remote", r.RemoteAddr),
		ready:  make(chan struct{}),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
		params: make(map[string]any),
	}
}

// attach hands the transport to the session and releases its read loop.
func (s *Session) attach(tr transport.Transport, subprotocol string) {
	s.tr = tr
	s.subprotocol = subprotocol
	close(s.ready)
}

// ID returns the session ID.
func (s *Session) ID() string { return s.id }

// RemoteAddr returns the client address.
func (s *Session) RemoteAddr() string { return s.remote }

// Header returns the handshake request headers.
func (s *Session) Header() http.Header { return s.header }

// Subprotocol returns the negotiated subprotocol.
func (s *Session) Subprotocol() string { return s.subprotocol }

// Done is closed after the session ended and OnClose ran.
func (s *Session) Done() <-chan struct{} { return s.done }

// Set stores a per-session parameter. Parameters are visible to middleware
// through the context params bag.
func (s *Session) Set(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.params[key] = value
}

// Get returns a per-session parameter.
func (s *Session) Get(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.params[key]
	return v, ok
}

// Params returns a copy of the per-session parameters.
func (s *Session) Params() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]any, len(s.params))
	for k, v := range s.params {
		out[k] = v
	}
	return out
}

// Send runs payload through the outgoing chain and writes it as a data
// frame.
func (s *Session) Send(ctx context.Context, payload []byte) error {
	if s.isClosed() {
		return ErrSessionClosed
	}

	mc, err := s.run(ctx, middleware.Outgoing, payload)
	if err != nil {
		return err
	}
	if mc.Dropped() {
		return ErrMessageDropped
	}
	return s.write(ctx, wire.DataFrame(mc.Message))
}

// Emit pushes a lifecycle event to the client as an event frame.
func (s *Session) Emit(ctx context.Context, ev wire.Event) error {
	if s.isClosed() {
		return ErrSessionClosed
	}
	if ev.ConnID == "" {
		ev = ev.WithConn(s.id)
	}
	return s.write(ctx, wire.EventFrame(ev))
}

// Close starts the closing handshake. Codes that cannot be put on the wire
// are sent as 1000.
func (s *Session) Close(code wire.CloseCode, reason string) error {
	if !code.Sendable() {
		code = wire.CloseNormalClosure
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	<-s.ready
	s.logger.Debug("closing session", "code", code, "reason", reason)
	return s.tr.Close(code, reason)
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Session) write(ctx context.Context, f wire.Frame) error {
	data, err := s.srv.codec.Encode(f)
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	<-s.ready
	if err := s.tr.Send(ctx, data); err != nil {
		return err
	}
	s.srv.plog.Log(resocklog.FrameRec(s.id, resocklog.RoleServer, resocklog.DirectionOut, data))
	return nil
}

// run passes payload through the shared chain with the session params
// seeded into the context. Params set by middleware are kept.
func (s *Session) run(ctx context.Context, dir middleware.Direction, payload []byte) (*middleware.Context, error) {
	mc := middleware.NewContext(ctx, dir, s.id, payload)
	if s.srv.chain == nil {
		return mc, nil
	}
	for k, v := range s.Params() {
		mc.Set(k, v)
	}
	mc, err := s.srv.chain(mc)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	for k, v := range mc.Params() {
		s.params[k] = v
	}
	s.mu.Unlock()
	return mc, nil
}

func (s *Session) emit(typ wire.EventType, code wire.CloseCode, reason string, payload []byte) {
	s.srv.emit(wire.NewEvent(typ, code, reason).WithConn(s.id).WithPayload(payload))
}

// touch restarts the idle timer.
func (s *Session) touch() {
	timeout := s.srv.cfg.IdleTimeout
	if timeout <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.idle == nil {
		s.idle = time.AfterFunc(timeout, func() {
			s.logger.Info("session idle", "timeout", timeout)
			_ = s.Close(wire.CloseInactivity, "idle timeout")
		})
		return
	}
	s.idle.Reset(timeout)
}

// OnOpen implements transport.Listener.
func (s *Session) OnOpen() {
	<-s.ready
	s.touch()
	s.logger.Info("session opened", "subprotocol", s.subprotocol)
	s.emit(wire.EventNewConnection, wire.CodeNone, "", nil)
	if h := s.srv.handlers.OnConnect; h != nil {
		h(s)
	}
}

// OnMessage implements transport.Listener.
func (s *Session) OnMessage(data []byte) {
	s.touch()
	s.srv.plog.Log(resocklog.FrameRec(s.id, resocklog.RoleServer, resocklog.DirectionIn, data))

	frame, err := s.srv.codec.Decode(data)
	if err != nil {
		s.logger.Warn("malformed frame", "error", err)
		s.srv.plog.Log(resocklog.ErrorRec(s.id, resocklog.RoleServer, err, wire.CloseUnsupportedData, "decode"))
		s.emit(wire.EventError, wire.CloseUnsupportedData, err.Error(), nil)
		_ = s.Close(wire.CloseUnsupportedData, "malformed frame")
		return
	}

	switch frame.Kind {
	case wire.FrameEvent:
		if h := s.srv.handlers.OnEvent; h != nil {
			h(s, *frame.Event)
		}
	case wire.FrameData:
		mc, err := s.run(s.ctx, middleware.Incoming, frame.Payload)
		if err != nil {
			if errors.Is(err, middleware.ErrPolicy) {
				s.logger.Warn("policy violation", "error", err)
				s.emit(wire.EventError, wire.ClosePolicyViolation, err.Error(), nil)
				_ = s.Close(wire.ClosePolicyViolation, "policy violation")
				return
			}
			s.logger.Warn("incoming middleware failed", "error", err)
			s.emit(wire.EventWarning, wire.CodePipelineFault, err.Error(), nil)
			return
		}
		if mc.Dropped() {
			return
		}
		s.emit(wire.EventMessage, wire.CodeNone, "", mc.Message)
		if h := s.srv.handlers.OnMessage; h != nil {
			h(s, mc.Message)
		}
	}
}

// OnClose implements transport.Listener.
func (s *Session) OnClose(code wire.CloseCode, reason string) {
	s.mu.Lock()
	s.closed = true
	if s.idle != nil {
		s.idle.Stop()
	}
	s.mu.Unlock()
	s.cancel()

	s.srv.remove(s)
	s.logger.Info("session closed", "code", code, "reason", reason)
	s.emit(wire.EventClose, code, reason, nil)
	if h := s.srv.handlers.OnClose; h != nil {
		h(s, code, reason)
	}
	close(s.done)
}

// OnError implements transport.Listener.
func (s *Session) OnError(err error) {
	s.logger.Debug("transport error", "error", err)
	s.srv.plog.Log(resocklog.ErrorRec(s.id, resocklog.RoleServer, err, wire.CodeNone, "transport"))
	s.emit(wire.EventError, wire.CodeNone, err.Error(), nil)
}

func deadline(d time.Duration) time.Time {
	return time.Now().Add(d)
}

var _ transport.Listener = (*Session)(nil)
