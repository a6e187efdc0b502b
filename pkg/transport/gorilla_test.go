package transport

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/resock/resock-go/pkg/wire"
)

func TestGorillaDialer(t *testing.T) {
	t.Run("EchoWithAuthAndSubprotocol", func(t *testing.T) {
		authHeader := make(chan string, 1)
		url := startServer(t, func(c *websocket.Conn, r *http.Request) {
			authHeader <- r.Header.Get("Authorization")
			echo(c, r)
		})

		rec := newRecorder()
		d := &GorillaDialer{}
		tr, err := d.Dial(context.Background(), Target{
			URL:       url,
			Protocols: []string{"resock.v1"},
			AuthToken: "secret",
		}, rec)
		require.NoError(t, err)
		defer tr.Close(wire.CloseNormalClosure, "")

		assert.Equal(t, "Bearer secret", <-authHeader)
		assert.Equal(t, "resock.v1", tr.(*GorillaTransport).Subprotocol())

		require.NoError(t, tr.Send(context.Background(), []byte("hello")))
		assert.Equal(t, []byte("hello"), rec.waitMessage(t))
		assert.True(t, rec.isOpen())
	})

	t.Run("DialFailure", func(t *testing.T) {
		rec := newRecorder()
		d := &GorillaDialer{}
		_, err := d.Dial(context.Background(), Target{URL: "ws://127.0.0.1:1/none"}, rec)
		require.Error(t, err)
		assert.False(t, rec.isOpen())
	})
}

func TestGorillaTransportClose(t *testing.T) {
	t.Run("PeerCloseCode", func(t *testing.T) {
		url := startServer(t, func(c *websocket.Conn, _ *http.Request) {
			msg := websocket.FormatCloseMessage(int(wire.CloseDoNotReconnect), "go away")
			_ = c.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
			for {
				if _, _, err := c.ReadMessage(); err != nil {
					return
				}
			}
		})

		rec := newRecorder()
		_, err := (&GorillaDialer{}).Dial(context.Background(), Target{URL: url}, rec)
		require.NoError(t, err)

		got := rec.waitClose(t)
		assert.Equal(t, wire.CloseDoNotReconnect, got.code)
		assert.Equal(t, "go away", got.reason)
	})

	t.Run("LocalClose", func(t *testing.T) {
		url := startServer(t, echo)

		rec := newRecorder()
		tr, err := (&GorillaDialer{}).Dial(context.Background(), Target{URL: url}, rec)
		require.NoError(t, err)

		require.NoError(t, tr.Close(wire.CloseNormalClosure, "done"))
		assert.Equal(t, wire.CloseNormalClosure, rec.waitClose(t).code)

		err = tr.Send(context.Background(), []byte("late"))
		assert.ErrorIs(t, err, ErrClosed)

		// Second close is a no-op.
		assert.NoError(t, tr.Close(wire.CloseNormalClosure, ""))
	})

	t.Run("AbnormalDrop", func(t *testing.T) {
		url := startServer(t, func(c *websocket.Conn, _ *http.Request) {
			_ = c.NetConn().Close()
		})

		rec := newRecorder()
		_, err := (&GorillaDialer{}).Dial(context.Background(), Target{URL: url}, rec)
		require.NoError(t, err)

		assert.Equal(t, wire.CloseAbnormalClosure, rec.waitClose(t).code)
	})

	t.Run("WriteTimeoutDropsSocket", func(t *testing.T) {
		release := make(chan struct{})
		t.Cleanup(func() { close(release) })
		url := startServer(t, func(*websocket.Conn, *http.Request) { <-release })

		rec := newRecorder()
		tr, err := (&GorillaDialer{}).Dial(context.Background(), Target{URL: url}, rec)
		require.NoError(t, err)

		payload := make([]byte, 1<<20)
		var sendErr error
		for i := 0; i < 64 && sendErr == nil; i++ {
			ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
			sendErr = tr.Send(ctx, payload)
			cancel()
		}
		require.Error(t, sendErr)

		assert.Equal(t, wire.CloseAbnormalClosure, rec.waitClose(t).code)
	})

	t.Run("ReservedCode", func(t *testing.T) {
		url := startServer(t, echo)

		rec := newRecorder()
		tr, err := (&GorillaDialer{}).Dial(context.Background(), Target{URL: url}, rec)
		require.NoError(t, err)
		defer tr.Close(wire.CloseNormalClosure, "")

		err = tr.Close(wire.CloseAbnormalClosure, "")
		assert.True(t, errors.Is(err, ErrInvalidCode))
	})
}

func TestGorillaTransportKeepAlive(t *testing.T) {
	t.Run("PeerAnswers", func(t *testing.T) {
		url := startServer(t, echo)

		rec := newRecorder()
		d := &GorillaDialer{Options: GorillaOptions{
			KeepAlive: &KeepAliveConfig{
				PingInterval:   20 * time.Millisecond,
				PongTimeout:    10 * time.Millisecond,
				MaxMissedPongs: 2,
			},
		}}
		tr, err := d.Dial(context.Background(), Target{URL: url}, rec)
		require.NoError(t, err)
		defer tr.Close(wire.CloseNormalClosure, "")

		time.Sleep(150 * time.Millisecond)
		select {
		case c := <-rec.closed:
			t.Fatalf("unexpected close %v", c.code)
		default:
		}
		assert.Equal(t, 0, tr.(*GorillaTransport).ka.Missed())
	})

	t.Run("PeerSilent", func(t *testing.T) {
		release := make(chan struct{})
		t.Cleanup(func() { close(release) })
		// Never reading means pings are never answered.
		url := startServer(t, func(*websocket.Conn, *http.Request) { <-release })

		rec := newRecorder()
		d := &GorillaDialer{Options: GorillaOptions{
			KeepAlive: &KeepAliveConfig{
				PingInterval:   20 * time.Millisecond,
				PongTimeout:    10 * time.Millisecond,
				MaxMissedPongs: 2,
			},
		}}
		_, err := d.Dial(context.Background(), Target{URL: url}, rec)
		require.NoError(t, err)

		got := rec.waitClose(t)
		assert.Equal(t, wire.CloseAbnormalClosure, got.code)
		assert.Equal(t, "keep-alive timeout", got.reason)
	})
}
