package transport

import (
	"context"
	"net/http"
	"testing"
	"time"

	gorilla "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/resock/resock-go/pkg/wire"
)

func TestCoderDialer(t *testing.T) {
	t.Run("Echo", func(t *testing.T) {
		authHeader := make(chan string, 1)
		url := startServer(t, func(c *gorilla.Conn, r *http.Request) {
			authHeader <- r.Header.Get("Authorization")
			echo(c, r)
		})

		rec := newRecorder()
		d := &CoderDialer{}
		tr, err := d.Dial(context.Background(), Target{
			URL:       url,
			Protocols: []string{"resock.v1"},
			AuthToken: "tok",
		}, rec)
		require.NoError(t, err)
		defer tr.Close(wire.CloseNormalClosure, "")

		assert.Equal(t, "Bearer tok", <-authHeader)
		assert.Equal(t, "resock.v1", tr.(*CoderTransport).Subprotocol())

		require.NoError(t, tr.Send(context.Background(), []byte{0x01, 0x02}))
		assert.Equal(t, []byte{0x01, 0x02}, rec.waitMessage(t))
	})

	t.Run("PeerCloseCode", func(t *testing.T) {
		url := startServer(t, func(c *gorilla.Conn, _ *http.Request) {
			msg := gorilla.FormatCloseMessage(int(wire.ClosePolicyViolation), "policy")
			_ = c.WriteControl(gorilla.CloseMessage, msg, time.Now().Add(time.Second))
			for {
				if _, _, err := c.ReadMessage(); err != nil {
					return
				}
			}
		})

		rec := newRecorder()
		_, err := (&CoderDialer{}).Dial(context.Background(), Target{URL: url}, rec)
		require.NoError(t, err)

		got := rec.waitClose(t)
		assert.Equal(t, wire.ClosePolicyViolation, got.code)
		assert.Equal(t, "policy", got.reason)
	})

	t.Run("LocalClose", func(t *testing.T) {
		url := startServer(t, echo)

		rec := newRecorder()
		tr, err := (&CoderDialer{}).Dial(context.Background(), Target{URL: url}, rec)
		require.NoError(t, err)

		require.NoError(t, tr.Close(wire.CloseDoNotReconnect, "bye"))
		assert.Equal(t, wire.CloseDoNotReconnect, rec.waitClose(t).code)
		assert.ErrorIs(t, tr.Send(context.Background(), []byte("x")), ErrClosed)
	})
}
