// Package wstest provides an in-memory Dialer and Transport for exercising
// connection state machines without sockets.
package wstest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/resock/resock-go/pkg/transport"
	"github.com/resock/resock-go/pkg/wire"
)

// DefaultTimeout bounds the Wait helpers.
const DefaultTimeout = 2 * time.Second

// ErrRefused is the default dial failure.
var ErrRefused = errors.New("wstest: connection refused")

// Dialer hands out Transports. Failures queued with FailNext are consumed
// one per dial before any dial succeeds.
type Dialer struct {
	mu       sync.Mutex
	failures []error
	targets  []transport.Target
	attempts int

	dialed    chan *Transport
	attemptCh chan int
}

// NewDialer creates a dialer whose dials succeed by default.
func NewDialer() *Dialer {
	return &Dialer{
		dialed:    make(chan *Transport, 64),
		attemptCh: make(chan int, 256),
	}
}

// FailNext makes the next len(errs) dials fail with the given errors.
func (d *Dialer) FailNext(errs ...error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failures = append(d.failures, errs...)
}

// FailAlways makes the next n dials fail with ErrRefused.
func (d *Dialer) FailAlways(n int) {
	errs := make([]error, n)
	for i := range errs {
		errs[i] = ErrRefused
	}
	d.FailNext(errs...)
}

// Dial implements transport.Dialer.
func (d *Dialer) Dial(ctx context.Context, target transport.Target, l transport.Listener) (transport.Transport, error) {
	d.mu.Lock()
	d.attempts++
	n := d.attempts
	d.targets = append(d.targets, target)
	var err error
	if len(d.failures) > 0 {
		err = d.failures[0]
		d.failures = d.failures[1:]
	}
	d.mu.Unlock()

	d.attemptCh <- n
	if err != nil {
		return nil, err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}

	t := newTransport(l)
	l.OnOpen()
	d.dialed <- t
	return t, nil
}

// Attempts returns the number of Dial calls so far.
func (d *Dialer) Attempts() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.attempts
}

// Targets returns the targets of every Dial call.
func (d *Dialer) Targets() []transport.Target {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]transport.Target(nil), d.targets...)
}

// WaitTransport returns the next successfully dialed transport.
func (d *Dialer) WaitTransport(t testing.TB) *Transport {
	t.Helper()
	select {
	case tr := <-d.dialed:
		return tr
	case <-time.After(DefaultTimeout):
		t.Fatal("wstest: timed out waiting for a dial")
		return nil
	}
}

// WaitAttempts blocks until at least n dials were attempted.
func (d *Dialer) WaitAttempts(t testing.TB, n int) {
	t.Helper()
	deadline := time.After(DefaultTimeout)
	for {
		select {
		case got := <-d.attemptCh:
			if got >= n {
				return
			}
		case <-deadline:
			t.Fatalf("wstest: timed out waiting for %d dial attempts (got %d)", n, d.Attempts())
		}
	}
}

// Transport is an in-memory transport. Tests drive the peer side with
// Deliver and Drop.
type Transport struct {
	l transport.Listener

	mu        sync.Mutex
	sent      [][]byte
	sendErr   error
	sendDelay time.Duration
	closed    bool
	code      wire.CloseCode
	reason    string
	dropOnce  sync.Once

	sentCh chan []byte
}

func newTransport(l transport.Listener) *Transport {
	return &Transport{l: l, sentCh: make(chan []byte, 256)}
}

// FailSends makes subsequent Send calls return err. Nil restores success.
func (t *Transport) FailSends(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sendErr = err
}

// SetSendDelay makes each Send take d.
func (t *Transport) SetSendDelay(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sendDelay = d
}

// Send implements transport.Transport.
func (t *Transport) Send(ctx context.Context, data []byte) error {
	t.mu.Lock()
	delay, err, closed := t.sendDelay, t.sendErr, t.closed
	t.mu.Unlock()

	if closed {
		return transport.ErrClosed
	}
	if err != nil {
		return err
	}
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	msg := append([]byte(nil), data...)
	t.mu.Lock()
	t.sent = append(t.sent, msg)
	t.mu.Unlock()
	t.sentCh <- msg
	return nil
}

// Close implements transport.Transport. Like a real socket, the listener
// sees OnClose with the same code once the handshake finished.
func (t *Transport) Close(code wire.CloseCode, reason string) error {
	if !code.Sendable() {
		return transport.ErrInvalidCode
	}
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.code = code
	t.reason = reason
	t.mu.Unlock()

	go t.Drop(code, reason)
	return nil
}

// Deliver hands data to the listener as an inbound message.
func (t *Transport) Deliver(data []byte) {
	t.l.OnMessage(data)
}

// Fail reports a non-fatal transport error.
func (t *Transport) Fail(err error) {
	t.l.OnError(err)
}

// Drop closes the socket from the peer side with code. Only the first call
// reaches the listener.
func (t *Transport) Drop(code wire.CloseCode, reason string) {
	t.dropOnce.Do(func() {
		t.mu.Lock()
		t.closed = true
		t.mu.Unlock()
		t.l.OnClose(code, reason)
	})
}

// Sent returns a copy of everything sent so far.
func (t *Transport) Sent() [][]byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([][]byte, len(t.sent))
	copy(out, t.sent)
	return out
}

// WaitSent blocks until n messages were sent and returns them.
func (t *Transport) WaitSent(tb testing.TB, n int) [][]byte {
	tb.Helper()
	deadline := time.After(DefaultTimeout)
	for {
		if s := t.Sent(); len(s) >= n {
			return s
		}
		select {
		case <-t.sentCh:
		case <-deadline:
			tb.Fatalf("wstest: timed out waiting for %d sent messages (got %d)", n, len(t.Sent()))
			return nil
		}
	}
}

// Closed reports whether Close was called and with which code.
func (t *Transport) Closed() (wire.CloseCode, string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.code == wire.CodeNone {
		return 0, "", false
	}
	return t.code, t.reason, true
}

var (
	_ transport.Dialer    = (*Dialer)(nil)
	_ transport.Transport = (*Transport)(nil)
)
