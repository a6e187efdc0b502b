package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/coder/websocket"

	"github.com/resock/resock-go/pkg/wire"
)

// CoderDialer dials with coder/websocket.
type CoderDialer struct {
	// HTTPClient is used for the handshake. Nil uses http.DefaultClient.
	HTTPClient *http.Client

	// Text sends messages as text frames instead of binary frames.
	Text bool

	// ReadLimit caps inbound message size. Zero keeps the library default.
	ReadLimit int64

	// Logger for debug output. Nil discards.
	Logger *slog.Logger
}

// Dial implements Dialer.
func (d *CoderDialer) Dial(ctx context.Context, target Target, l Listener) (Transport, error) {
	conn, _, err := websocket.Dial(ctx, target.URL, &websocket.DialOptions{
		HTTPClient:   d.HTTPClient,
		HTTPHeader:   target.RequestHeader(),
		Subprotocols: target.Protocols,
	})
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", target.URL, err)
	}
	if d.ReadLimit > 0 {
		conn.SetReadLimit(d.ReadLimit)
	}

	logger := d.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	typ := websocket.MessageBinary
	if d.Text {
		typ = websocket.MessageText
	}

	readCtx, cancel := context.WithCancel(context.Background())
	t := &CoderTransport{
		conn:   conn,
		l:      l,
		typ:    typ,
		logger: logger,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go t.readLoop(readCtx)
	return t, nil
}

// CoderTransport wraps a coder/websocket connection.
type CoderTransport struct {
	conn   *websocket.Conn
	l      Listener
	typ    websocket.MessageType
	logger *slog.Logger
	cancel context.CancelFunc
	done   chan struct{}

	mu          sync.Mutex
	closing     bool
	localCode   wire.CloseCode
	localReason string
}

// Subprotocol returns the negotiated subprotocol.
func (t *CoderTransport) Subprotocol() string {
	return t.conn.Subprotocol()
}

// Done is closed after the listener received OnClose.
func (t *CoderTransport) Done() <-chan struct{} {
	return t.done
}

// Send implements Transport.
func (t *CoderTransport) Send(ctx context.Context, data []byte) error {
	t.mu.Lock()
	closing := t.closing
	t.mu.Unlock()
	if closing {
		return ErrClosed
	}
	if err := t.conn.Write(ctx, t.typ, data); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

// Close implements Transport. The handshake finishes in the background.
func (t *CoderTransport) Close(code wire.CloseCode, reason string) error {
	if !code.Sendable() {
		return fmt.Errorf("%w: %d", ErrInvalidCode, code)
	}
	if len(reason) > maxCloseReason {
		reason = reason[:maxCloseReason]
	}

	t.mu.Lock()
	if t.closing {
		t.mu.Unlock()
		return nil
	}
	t.closing = true
	t.localCode = code
	t.localReason = reason
	t.mu.Unlock()

	go func() {
		if err := t.conn.Close(websocket.StatusCode(code), reason); err != nil {
			t.logger.Debug("close handshake", "code", code, "error", err)
		}
	}()
	return nil
}

func (t *CoderTransport) readLoop(ctx context.Context) {
	defer close(t.done)
	defer t.cancel()

	t.l.OnOpen()
	for {
		_, data, err := t.conn.Read(ctx)
		if err != nil {
			code, reason := t.closeStatus(err)
			t.logger.Debug("transport closed", "code", code, "reason", reason, "error", err)
			t.l.OnClose(code, reason)
			return
		}
		t.l.OnMessage(data)
	}
}

func (t *CoderTransport) closeStatus(err error) (wire.CloseCode, string) {
	var ce websocket.CloseError
	if errors.As(err, &ce) {
		return wire.CloseCode(ce.Code), ce.Reason
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closing {
		return t.localCode, t.localReason
	}
	return wire.CloseAbnormalClosure, err.Error()
}
