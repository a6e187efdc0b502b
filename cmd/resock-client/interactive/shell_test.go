package interactive

import (
	"bytes"
	"context"
	"testing"

	"github.com/resock/resock-go/pkg/connection"
	"github.com/resock/resock-go/pkg/wire"
)

type fakeConn struct {
	state   connection.State
	queued  int
	sent    [][]byte
	sendErr error

	closedCode   wire.CloseCode
	closedReason string
	closed       bool
}

func (f *fakeConn) ID() string { return "c0ffee00-0000" }
func (f *fakeConn) State() connection.State { return f.state }
func (f *fakeConn) Attempt() int { return 2 }
func (f *fakeConn) QueueLen() int { return f.queued }
func (f *fakeConn) Policy() connection.Policy { return connection.DefaultPolicy() }

func (f *fakeConn) Send(_ context.Context, payload []byte, _ ...connection.SendOption) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, payload)
	return nil
}

func (f *fakeConn) CloseWithCode(code wire.CloseCode, reason string) error {
	f.closed = true
	f.closedCode = code
	f.closedReason = reason
	return nil
}

func newTestShell(conn Conn) (*Shell, *bytes.Buffer) {
	var buf bytes.Buffer
	return &Shell{conn: conn, out: &buf}, &buf
}

func TestShellSend(t *testing.T) {
	conn := &fakeConn{state: connection.StateConnected}
	sh, out := newTestShell(conn)

	if quit := sh.Exec(context.Background(), "send hello world"); quit {
		t.Fatal("send must not quit")
	}
	if len(conn.sent) != 1 || string(conn.sent[0]) != "hello world" {
		t.Fatalf("sent = %q", conn.sent)
	}
	if !bytes.Contains(out.Bytes(), []byte("Sent 11 bytes")) {
		t.Errorf("unexpected output: %s", out)
	}
}

func TestShellSendWhileReconnecting(t *testing.T) {
	conn := &fakeConn{state: connection.StateReconnecting}
	sh, out := newTestShell(conn)

	sh.Exec(context.Background(), "send x")
	if !bytes.Contains(out.Bytes(), []byte("Queued 1 bytes (state RECONNECTING)")) {
		t.Errorf("unexpected output: %s", out)
	}
}

func TestShellSendHex(t *testing.T) {
	conn := &fakeConn{state: connection.StateConnected}
	sh, out := newTestShell(conn)

	sh.Exec(context.Background(), "sendhex a1 01 02")
	if len(conn.sent) != 1 || !bytes.Equal(conn.sent[0], []byte{0xa1, 0x01, 0x02}) {
		t.Fatalf("sent = %x", conn.sent)
	}

	sh.Exec(context.Background(), "sendhex zz")
	if !bytes.Contains(out.Bytes(), []byte("Invalid hex")) {
		t.Errorf("unexpected output: %s", out)
	}
}

func TestShellSendError(t *testing.T) {
	conn := &fakeConn{state: connection.StateClosed, sendErr: connection.ErrConnectionClosed}
	sh, out := newTestShell(conn)

	sh.Exec(context.Background(), "send x")
	if !bytes.Contains(out.Bytes(), []byte("Send error:")) {
		t.Errorf("unexpected output: %s", out)
	}
}

func TestShellState(t *testing.T) {
	conn := &fakeConn{state: connection.StateReconnecting, queued: 3}
	sh, out := newTestShell(conn)

	sh.Exec(context.Background(), "state")
	for _, want := range []string{"State:      RECONNECTING", "Attempt:    2", "Queued:     3"} {
		if !bytes.Contains(out.Bytes(), []byte(want)) {
			t.Errorf("output missing %q: %s", want, out)
		}
	}
}

func TestShellPolicy(t *testing.T) {
	sh, out := newTestShell(&fakeConn{})

	sh.Exec(context.Background(), "policy")
	if !bytes.Contains(out.Bytes(), []byte("Max attempts: unlimited")) {
		t.Errorf("unexpected output: %s", out)
	}
	if !bytes.Contains(out.Bytes(), []byte("Base delays: 1s, 1.5s, 2.25s")) {
		t.Errorf("unexpected output: %s", out)
	}
}

func TestShellClose(t *testing.T) {
	conn := &fakeConn{state: connection.StateConnected}
	sh, out := newTestShell(conn)

	sh.Exec(context.Background(), "close 4000 going away now")
	if !conn.closed || conn.closedCode != wire.CloseDoNotReconnect || conn.closedReason != "going away now" {
		t.Fatalf("close = %v %d %q", conn.closed, conn.closedCode, conn.closedReason)
	}

	conn.closed = false
	sh.Exec(context.Background(), "close abc")
	if conn.closed {
		t.Error("invalid code must not close")
	}
	if !bytes.Contains(out.Bytes(), []byte("Invalid close code: abc")) {
		t.Errorf("unexpected output: %s", out)
	}
}

func TestShellQuitAndUnknown(t *testing.T) {
	sh, out := newTestShell(&fakeConn{})

	if sh.Exec(context.Background(), "frobnicate") {
		t.Error("unknown command must not quit")
	}
	if !bytes.Contains(out.Bytes(), []byte("Unknown command: frobnicate")) {
		t.Errorf("unexpected output: %s", out)
	}
	if !sh.Exec(context.Background(), "QUIT") {
		t.Error("quit must quit")
	}
	if sh.Exec(context.Background(), "   ") {
		t.Error("blank line must not quit")
	}
}
