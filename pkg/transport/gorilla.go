package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/resock/resock-go/pkg/wire"
)

const (
	// DefaultHandshakeTimeout bounds the opening handshake.
	DefaultHandshakeTimeout = 10 * time.Second

	// DefaultControlTimeout bounds control frame writes.
	DefaultControlTimeout = 5 * time.Second

	// DefaultCloseWait is how long Close waits for the peer's close frame
	// before dropping the socket.
	DefaultCloseWait = 2 * time.Second

	// maxCloseReason is the longest reason that fits a close frame.
	maxCloseReason = 123
)

// GorillaOptions tune a gorilla transport.
type GorillaOptions struct {
	// Text sends messages as text frames instead of binary frames.
	Text bool

	// ReadLimit caps inbound message size. Zero means no limit.
	ReadLimit int64

	// ControlTimeout bounds ping and close writes.
	ControlTimeout time.Duration

	// CloseWait bounds the closing handshake.
	CloseWait time.Duration

	// KeepAlive enables ping/pong monitoring when not nil.
	KeepAlive *KeepAliveConfig

	// Logger for debug output. Nil discards.
	Logger *slog.Logger
}

func (o GorillaOptions) withDefaults() GorillaOptions {
	if o.ControlTimeout <= 0 {
		o.ControlTimeout = DefaultControlTimeout
	}
	if o.CloseWait <= 0 {
		o.CloseWait = DefaultCloseWait
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return o
}

// GorillaTransport wraps a gorilla/websocket connection.
type GorillaTransport struct {
	conn   *websocket.Conn
	l      Listener
	opts   GorillaOptions
	logger *slog.Logger
	ka     *KeepAlive

	writeMu sync.Mutex

	// listenerMu serializes listener calls.
	listenerMu sync.Mutex
	finished   bool

	closeMu     sync.Mutex
	closing     bool
	localCode   wire.CloseCode
	localReason string

	dropped atomic.Bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewGorillaTransport takes ownership of conn and starts reading from it.
// The listener sees OnOpen first.
func NewGorillaTransport(conn *websocket.Conn, l Listener, opts GorillaOptions) *GorillaTransport {
	opts = opts.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	t := &GorillaTransport{
		conn:   conn,
		l:      l,
		opts:   opts,
		logger: opts.Logger,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	if opts.ReadLimit > 0 {
		conn.SetReadLimit(opts.ReadLimit)
	}
	if opts.KeepAlive != nil {
		t.ka = NewKeepAlive(*opts.KeepAlive, t.ping, t.drop)
		conn.SetPongHandler(func(appData string) error {
			if seq, ok := DecodePing([]byte(appData)); ok {
				t.ka.Pong(seq)
			}
			return nil
		})
	}
	go t.readLoop(ctx)
	return t
}

// Subprotocol returns the negotiated subprotocol.
func (t *GorillaTransport) Subprotocol() string {
	return t.conn.Subprotocol()
}

// RemoteAddr returns the peer address.
func (t *GorillaTransport) RemoteAddr() net.Addr {
	return t.conn.RemoteAddr()
}

// Done is closed after the listener received OnClose.
func (t *GorillaTransport) Done() <-chan struct{} {
	return t.done
}

// Send implements Transport.
func (t *GorillaTransport) Send(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.closeMu.Lock()
	closing := t.closing
	t.closeMu.Unlock()
	if closing {
		return ErrClosed
	}

	typ := websocket.BinaryMessage
	if t.opts.Text {
		typ = websocket.TextMessage
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	deadline, _ := ctx.Deadline()
	if err := t.conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	if err := t.conn.WriteMessage(typ, data); err != nil {
		// A failed write leaves the socket unusable; closing it lets
		// readLoop report an abnormal closure.
		_ = t.conn.Close()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

// Close implements Transport.
func (t *GorillaTransport) Close(code wire.CloseCode, reason string) error {
	if !code.Sendable() {
		return fmt.Errorf("%w: %d", ErrInvalidCode, code)
	}
	if len(reason) > maxCloseReason {
		reason = reason[:maxCloseReason]
	}

	t.closeMu.Lock()
	if t.closing {
		t.closeMu.Unlock()
		return nil
	}
	t.closing = true
	t.localCode = code
	t.localReason = reason
	t.closeMu.Unlock()

	msg := websocket.FormatCloseMessage(int(code), reason)
	err := t.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(t.opts.ControlTimeout))

	go func() {
		select {
		case <-t.done:
		case <-time.After(t.opts.CloseWait):
			t.logger.Debug("close handshake timed out", "code", code)
			_ = t.conn.Close()
		}
	}()

	if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		_ = t.conn.Close()
		return fmt.Errorf("write close: %w", err)
	}
	return nil
}

func (t *GorillaTransport) readLoop(ctx context.Context) {
	defer close(t.done)

	t.notify(t.l.OnOpen)
	if t.ka != nil {
		t.ka.Start(ctx)
	}

	for {
		_, data, err := t.conn.ReadMessage()
		if err != nil {
			code, reason := t.closeStatus(err)
			t.cancel()
			if t.ka != nil {
				t.ka.Stop()
			}
			_ = t.conn.Close()
			t.logger.Debug("transport closed", "code", code, "reason", reason, "error", err)

			t.listenerMu.Lock()
			t.finished = true
			t.l.OnClose(code, reason)
			t.listenerMu.Unlock()
			return
		}
		t.notify(func() { t.l.OnMessage(data) })
	}
}

// closeStatus maps a read error to the code reported to the listener.
func (t *GorillaTransport) closeStatus(err error) (wire.CloseCode, string) {
	if t.dropped.Load() {
		return wire.CloseAbnormalClosure, "keep-alive timeout"
	}
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return wire.CloseCode(ce.Code), ce.Text
	}
	if errors.Is(err, websocket.ErrReadLimit) {
		return wire.CloseMessageTooBig, err.Error()
	}

	t.closeMu.Lock()
	defer t.closeMu.Unlock()
	if t.closing {
		return t.localCode, t.localReason
	}
	return wire.CloseAbnormalClosure, err.Error()
}

// notify calls fn under the listener lock unless OnClose already ran.
func (t *GorillaTransport) notify(fn func()) {
	t.listenerMu.Lock()
	defer t.listenerMu.Unlock()
	if t.finished {
		return
	}
	fn()
}

func (t *GorillaTransport) ping(seq uint32) error {
	err := t.conn.WriteControl(websocket.PingMessage, EncodePing(seq), time.Now().Add(t.opts.ControlTimeout))
	if err != nil {
		t.notify(func() { t.l.OnError(fmt.Errorf("ping %d: %w", seq, err)) })
	}
	return err
}

// drop closes the socket without a handshake after the peer stopped
// answering pings.
func (t *GorillaTransport) drop() {
	t.logger.Debug("peer not answering pings", "missed", t.ka.Missed())
	t.dropped.Store(true)
	_ = t.conn.Close()
}

// GorillaDialer dials with gorilla/websocket.
type GorillaDialer struct {
	// Dialer is copied for each dial. Nil uses a dialer with
	// DefaultHandshakeTimeout and the environment proxy.
	Dialer *websocket.Dialer

	// Options are applied to each dialed transport.
	Options GorillaOptions
}

// Dial implements Dialer.
func (d *GorillaDialer) Dial(ctx context.Context, target Target, l Listener) (Transport, error) {
	wd := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: DefaultHandshakeTimeout,
	}
	if d.Dialer != nil {
		wd = *d.Dialer
	}
	wd.Subprotocols = target.Protocols

	conn, resp, err := wd.DialContext(ctx, target.URL, target.RequestHeader())
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", target.URL, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", target.URL, err)
	}
	return NewGorillaTransport(conn, l, d.Options), nil
}
