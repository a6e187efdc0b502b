package transport

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/resock/resock-go/pkg/wire"
)

type closeInfo struct {
	code   wire.CloseCode
	reason string
}

// recorder is a Listener that records everything it sees.
type recorder struct {
	mu     sync.Mutex
	opened bool
	errs   []error

	messages chan []byte
	closed   chan closeInfo
}

func newRecorder() *recorder {
	return &recorder{
		messages: make(chan []byte, 16),
		closed:   make(chan closeInfo, 1),
	}
}

func (r *recorder) OnOpen() {
	r.mu.Lock()
	r.opened = true
	r.mu.Unlock()
}

func (r *recorder) OnMessage(data []byte) { r.messages <- data }

func (r *recorder) OnClose(code wire.CloseCode, reason string) {
	r.closed <- closeInfo{code: code, reason: reason}
}

func (r *recorder) OnError(err error) {
	r.mu.Lock()
	r.errs = append(r.errs, err)
	r.mu.Unlock()
}

func (r *recorder) isOpen() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.opened
}

func (r *recorder) waitMessage(t *testing.T) []byte {
	t.Helper()
	select {
	case m := <-r.messages:
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for message")
		return nil
	}
}

func (r *recorder) waitClose(t *testing.T) closeInfo {
	t.Helper()
	select {
	case c := <-r.closed:
		return c
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for close")
		return closeInfo{}
	}
}

// startServer runs handler for each upgraded socket and returns the ws URL.
func startServer(t *testing.T, handler func(c *websocket.Conn, r *http.Request)) string {
	t.Helper()
	up := websocket.Upgrader{
		Subprotocols: []string{"resock.v1"},
		CheckOrigin:  func(*http.Request) bool { return true },
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		handler(c, r)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func echo(c *websocket.Conn, _ *http.Request) {
	for {
		mt, data, err := c.ReadMessage()
		if err != nil {
			return
		}
		if err := c.WriteMessage(mt, data); err != nil {
			return
		}
	}
}
