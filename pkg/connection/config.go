package connection

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/url"

	resocklog "github.com/resock/resock-go/pkg/log"
	"github.com/resock/resock-go/pkg/middleware"
	"github.com/resock/resock-go/pkg/plugin"
	"github.com/resock/resock-go/pkg/transport"
	"github.com/resock/resock-go/pkg/wire"
)

// Config configures a Connection.
type Config struct {
	// URL is the ws:// or wss:// endpoint.
	URL string `yaml:"url"`

	// Protocols are the subprotocols offered during the handshake.
	Protocols []string `yaml:"protocols,omitempty"`

	// AuthToken is sent as a bearer token when not empty.
	AuthToken string `yaml:"authToken,omitempty"`

	// Header holds extra handshake headers.
	Header http.Header `yaml:"-"`

	// Reconnect overrides reconnect policy defaults.
	Reconnect ReconnectConfig `yaml:"reconnect,omitempty"`

	// MaxQueued caps the outbound queue. Zero means unbounded.
	MaxQueued int `yaml:"maxQueued,omitempty"`

	// Logger is used for operational logging. Nil disables it.
	Logger *slog.Logger `yaml:"-"`

	// ProtocolLogger captures frames, transitions and events. Nil disables
	// capture.
	ProtocolLogger resocklog.Logger `yaml:"-"`
}

// Validate checks the configuration.
func (c Config) Validate() error {
	var errs []error
	if c.URL == "" {
		errs = append(errs, errors.New("url is required"))
	} else if u, err := url.Parse(c.URL); err != nil {
		errs = append(errs, fmt.Errorf("url: %w", err))
	} else if u.Scheme != "ws" && u.Scheme != "wss" {
		errs = append(errs, fmt.Errorf("url scheme must be ws or wss, got %q", u.Scheme))
	}
	if c.MaxQueued < 0 {
		errs = append(errs, fmt.Errorf("max queued must not be negative, got %d", c.MaxQueued))
	}
	if err := c.Reconnect.Resolve().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("reconnect: %w", err))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// Target returns the transport target described by c.
func (c Config) Target() transport.Target {
	return transport.Target{
		URL:       c.URL,
		Protocols: c.Protocols,
		AuthToken: c.AuthToken,
		Header:    c.Header,
	}
}

// Handlers are the owner callbacks. They run in order on a dedicated
// goroutine and may call back into the connection. Nil fields are skipped.
type Handlers struct {
	// OnOpen is called each time the connection reaches Connected.
	OnOpen func()

	// OnMessage is called for each inbound data message after the incoming
	// middleware chain.
	OnMessage func(payload []byte)

	// OnClose is called when the transport closes or Close is called.
	OnClose func(code wire.CloseCode, reason string)

	// OnError is called with a *Fault for transport, pipeline, policy and
	// internal failures.
	OnError func(err error)

	// OnServerEvent is called for event frames pushed by the server.
	OnServerEvent func(ev wire.Event)

	// OnStateChange is called for every state transition.
	OnStateChange func(ev StateEvent)
}

type options struct {
	dialer      transport.Dialer
	codec       wire.Codec
	pipeline    *middleware.Pipeline
	broadcaster *plugin.Broadcaster
	rng         Rand
	handlers    Handlers
	id          string
}

// Option configures optional collaborators.
type Option func(*options)

// WithDialer sets the transport dialer. Defaults to a GorillaDialer.
func WithDialer(d transport.Dialer) Option {
	return func(o *options) { o.dialer = d }
}

// WithCodec sets the frame codec. Defaults to wire.CBORCodec.
func WithCodec(c wire.Codec) Option {
	return func(o *options) { o.codec = c }
}

// WithPipeline attaches a middleware pipeline. It is frozen and composed
// the first time the connection reaches Connected.
func WithPipeline(p *middleware.Pipeline) Option {
	return func(o *options) { o.pipeline = p }
}

// WithBroadcaster attaches the lifecycle broadcaster.
func WithBroadcaster(b *plugin.Broadcaster) Option {
	return func(o *options) { o.broadcaster = b }
}

// WithRand sets the jitter source.
func WithRand(r Rand) Option {
	return func(o *options) { o.rng = r }
}

// WithHandlers sets the owner callbacks.
func WithHandlers(h Handlers) Option {
	return func(o *options) { o.handlers = h }
}

// WithID overrides the generated connection ID.
func WithID(id string) Option {
	return func(o *options) { o.id = id }
}

// SendOption configures one Send call.
type SendOption func(*QueuedMessage)

// OnAck registers fn to run once the message was handed to the transport.
func OnAck(fn func()) SendOption {
	return func(m *QueuedMessage) { m.OnAck = fn }
}

// OnFail registers fn to run if the message is never delivered.
func OnFail(fn func(err error)) SendOption {
	return func(m *QueuedMessage) { m.OnFail = fn }
}

// globalRand draws from the concurrency-safe top-level math/rand/v2 source.
type globalRand struct{}

func (globalRand) Float64() float64 { return rand.Float64() }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
