package server

import (
	"log/slog"
	"net/http"
	"time"

	resocklog "github.com/resock/resock-go/pkg/log"
	"github.com/resock/resock-go/pkg/middleware"
	"github.com/resock/resock-go/pkg/plugin"
	"github.com/resock/resock-go/pkg/transport"
	"github.com/resock/resock-go/pkg/wire"
)

// Server defaults.
const (
	// DefaultIdleTimeout closes sessions that sent nothing for this long.
	DefaultIdleTimeout = 5 * time.Minute

	// DefaultReadLimit caps inbound messages.
	DefaultReadLimit = 1 << 20

	// DefaultSubprotocol is offered when no protocols are configured.
	DefaultSubprotocol = "resock.v1"
)

// Config configures a Server.
type Config struct {
	// Protocols are the subprotocols the server accepts, in preference
	// order.
	Protocols []string `yaml:"protocols,omitempty"`

	// IdleTimeout closes a session with 4001 when no message arrived for
	// this long. Zero disables it.
	IdleTimeout time.Duration `yaml:"idleTimeout,omitempty"`

	// ReadLimit caps inbound message size. Larger messages close the
	// session with 1009.
	ReadLimit int64 `yaml:"readLimit,omitempty"`

	// MaxSessions rejects upgrades beyond this many sessions. Zero means
	// unlimited.
	MaxSessions int `yaml:"maxSessions,omitempty"`

	// Text sends text frames instead of binary frames.
	Text bool `yaml:"text,omitempty"`

	// KeepAlive enables ping/pong monitoring of each session.
	KeepAlive *transport.KeepAliveConfig `yaml:"keepAlive,omitempty"`

	// CheckOrigin validates the Origin header. Nil uses gorilla's
	// same-origin check.
	CheckOrigin func(r *http.Request) bool `yaml:"-"`

	// Logger is used for operational logging. Nil disables it.
	Logger *slog.Logger `yaml:"-"`

	// ProtocolLogger captures frames and events. Nil disables capture.
	ProtocolLogger resocklog.Logger `yaml:"-"`
}

// DefaultConfig returns a configuration with default limits.
func DefaultConfig() Config {
	return Config{
		Protocols:   []string{DefaultSubprotocol},
		IdleTimeout: DefaultIdleTimeout,
		ReadLimit:   DefaultReadLimit,
	}
}

// Handlers are the application callbacks. They run on the session's read
// goroutine; a slow handler delays that session only. Nil fields are skipped.
type Handlers struct {
	// OnConnect is called once the session is registered.
	OnConnect func(s *Session)

	// OnMessage is called for each inbound data message after the incoming
	// middleware chain.
	OnMessage func(s *Session, payload []byte)

	// OnEvent is called for event frames sent by the client.
	OnEvent func(s *Session, ev wire.Event)

	// OnClose is called after the session was removed.
	OnClose func(s *Session, code wire.CloseCode, reason string)
}

type options struct {
	pipeline    *middleware.Pipeline
	broadcaster *plugin.Broadcaster
	codec       wire.Codec
	handlers    Handlers
}

// Option configures optional collaborators.
type Option func(*options)

// WithPipeline sets the middleware pipeline. It is frozen and composed by
// New and shared by every session.
func WithPipeline(p *middleware.Pipeline) Option {
	return func(o *options) { o.pipeline = p }
}

// WithBroadcaster sets the lifecycle broadcaster.
func WithBroadcaster(b *plugin.Broadcaster) Option {
	return func(o *options) { o.broadcaster = b }
}

// WithCodec sets the frame codec. Defaults to wire.CBORCodec.
func WithCodec(c wire.Codec) Option {
	return func(o *options) { o.codec = c }
}

// WithHandlers sets the application callbacks.
func WithHandlers(h Handlers) Option {
	return func(o *options) { o.handlers = h }
}
