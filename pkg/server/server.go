package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	resocklog "github.com/resock/resock-go/pkg/log"
	"github.com/resock/resock-go/pkg/middleware"
	"github.com/resock/resock-go/pkg/plugin"
	"github.com/resock/resock-go/pkg/transport"
	"github.com/resock/resock-go/pkg/wire"
)

// Server errors.
var (
	ErrShuttingDown    = errors.New("server shutting down")
	ErrSessionClosed   = errors.New("session closed")
	ErrMessageDropped  = errors.New("message dropped by middleware")
	ErrTooManySessions = errors.New("too many sessions")
)

// Server upgrades HTTP requests to resock sessions.
type Server struct {
	cfg         Config
	upgrader    websocket.Upgrader
	chain       middleware.Chain
	codec       wire.Codec
	broadcaster *plugin.Broadcaster
	handlers    Handlers
	logger      *slog.Logger
	plog        resocklog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
	closing  bool
	wg       sync.WaitGroup
}

// New creates a server. The pipeline, if any, is frozen.
func New(cfg Config, opts ...Option) *Server {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.codec == nil {
		o.codec = wire.CBORCodec{}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	plog := cfg.ProtocolLogger
	if plog == nil {
		plog = resocklog.NoopLogger{}
	}

	s := &Server{
		cfg: cfg,
		upgrader: websocket.Upgrader{
			HandshakeTimeout: transport.DefaultHandshakeTimeout,
			Subprotocols:     cfg.Protocols,
			CheckOrigin:      cfg.CheckOrigin,
		},
		codec:       o.codec,
		broadcaster: o.broadcaster,
		handlers:    o.handlers,
		logger:      logger.With("component", "server"),
		plog:        plog,
		sessions:    make(map[string]*Session),
	}
	if o.pipeline != nil {
		o.pipeline.Freeze()
		s.chain = o.pipeline.Compose()
	}
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := s.admit(); err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already answered the request.
		s.logger.Debug("upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	sess := newSession(s, r)
	if !s.add(sess) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(int(wire.CloseGoingAway), ErrShuttingDown.Error()),
			deadline(transport.DefaultControlTimeout))
		_ = conn.Close()
		return
	}

	tr := transport.NewGorillaTransport(conn, sess, transport.GorillaOptions{
		Text:      s.cfg.Text,
		ReadLimit: s.cfg.ReadLimit,
		KeepAlive: s.cfg.KeepAlive,
		Logger:    sess.logger,
	})
	sess.attach(tr, conn.Subprotocol())
}

// admit rejects requests while shutting down or at capacity.
func (s *Server) admit() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closing {
		return ErrShuttingDown
	}
	if s.cfg.MaxSessions > 0 && len(s.sessions) >= s.cfg.MaxSessions {
		return ErrTooManySessions
	}
	return nil
}

func (s *Server) add(sess *Session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.sessions[sess.id] = sess
	s.wg.Add(1)
	return true
}

func (s *Server) remove(sess *Session) {
	s.mu.Lock()
	_, ok := s.sessions[sess.id]
	delete(s.sessions, sess.id)
	s.mu.Unlock()
	if ok {
		s.wg.Done()
	}
}

// Session returns the session with the given ID.
func (s *Server) Session(id string) (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

// Sessions returns a snapshot of the live sessions.
func (s *Server) Sessions() []*Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess)
	}
	return out
}

// Count returns the number of live sessions.
func (s *Server) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Broadcast sends payload to every live session. It returns the number of
// sessions that accepted the message and the joined send errors.
func (s *Server) Broadcast(ctx context.Context, payload []byte) (int, error) {
	var (
		sent int
		errs []error
	)
	for _, sess := range s.Sessions() {
		if err := sess.Send(ctx, payload); err != nil {
			errs = append(errs, fmt.Errorf("session %s: %w", sess.id, err))
			continue
		}
		sent++
	}
	return sent, errors.Join(errs...)
}

// Shutdown stops accepting sessions, closes the live ones with 1001 and
// waits for their close handshakes or ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()

	sessions := s.Sessions()
	s.logger.Info("shutting down", "sessions", len(sessions))
	for _, sess := range sessions {
		_ = sess.Close(wire.CloseGoingAway, "server shutdown")
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// emit records ev and hands it to the broadcaster.
func (s *Server) emit(ev wire.Event) {
	s.plog.Log(resocklog.EventRec(resocklog.RoleServer, ev))
	if s.broadcaster == nil {
		return
	}
	if failed := s.broadcaster.Emit(ev); failed > 0 {
		warn := wire.NewEvent(wire.EventWarning, wire.CodeObserverFault,
			fmt.Sprintf("%d observers failed on %s", failed, ev.Type)).WithConn(ev.ConnID)
		s.plog.Log(resocklog.EventRec(resocklog.RoleServer, warn))
	}
}
