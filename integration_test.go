package resock_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/resock/resock-go/pkg/connection"
	"github.com/resock/resock-go/pkg/discovery"
	resocklog "github.com/resock/resock-go/pkg/log"
	"github.com/resock/resock-go/pkg/metrics"
	"github.com/resock/resock-go/pkg/plugin"
	"github.com/resock/resock-go/pkg/server"
	"github.com/resock/resock-go/pkg/wire"
)

// echoServer serves an echoing resock server on ln until stop is called.
type echoServer struct {
	srv  *server.Server
	http *http.Server
	done chan struct{}
}

func startEchoServer(t *testing.T, ln net.Listener, cfg server.Config, opts ...server.Option) *echoServer {
	t.Helper()

	opts = append(opts, server.WithHandlers(server.Handlers{
		OnMessage: func(s *server.Session, payload []byte) {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			if err := s.Send(ctx, payload); err != nil {
				t.Logf("echo failed: %v", err)
			}
		},
	}))
	srv := server.New(cfg, opts...)

	mux := http.NewServeMux()
	mux.Handle("/ws", srv)
	es := &echoServer{srv: srv, http: &http.Server{Handler: mux}, done: make(chan struct{})}
	go func() {
		defer close(es.done)
		_ = es.http.Serve(ln)
	}()
	return es
}

func (es *echoServer) stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = es.srv.Shutdown(ctx)
	_ = es.http.Close()
	<-es.done
}

// clientEvents collects connection callbacks on channels.
type clientEvents struct {
	opened   chan struct{}
	messages chan string
	closes   chan wire.CloseCode
}

func newClientEvents() *clientEvents {
	return &clientEvents{
		opened:   make(chan struct{}, 10),
		messages: make(chan string, 10),
		closes:   make(chan wire.CloseCode, 10),
	}
}

func (e *clientEvents) handlers() connection.Handlers {
	return connection.Handlers{
		OnOpen:    func() { e.opened <- struct{}{} },
		OnMessage: func(p []byte) { e.messages <- string(p) },
		OnClose:   func(code wire.CloseCode, _ string) { e.closes <- code },
	}
}

func fastReconnect() connection.ReconnectConfig {
	base := 50 * time.Millisecond
	decay := 1.0
	jitter := 0.0
	return connection.ReconnectConfig{BaseDelay: &base, DecayFactor: &decay, JitterFraction: &jitter}
}

func expectMessage(t *testing.T, ch <-chan string, want string) {
	t.Helper()
	select {
	case got := <-ch:
		if got != want {
			t.Fatalf("message mismatch: expected %q, got %q", want, got)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("timeout waiting for %q", want)
	}
}

// TestE2E_ReconnectAcrossServerRestart stops the server under a connected
// client, queues a message while it is gone and checks that the message is
// delivered once the server is back on the same address.
func TestE2E_ReconnectAcrossServerRestart(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}
	addr := ln.Addr().String()

	es := startEchoServer(t, ln, server.DefaultConfig())
	var restarted *echoServer
	defer func() {
		if restarted != nil {
			restarted.stop()
		}
	}()

	events := newClientEvents()
	conn, err := connection.New(connection.Config{
		URL:       "ws://" + addr + "/ws",
		Reconnect: fastReconnect(),
	}, connection.WithHandlers(events.handlers()))
	if err != nil {
		t.Fatalf("Failed to create connection: %v", err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := conn.Connect(ctx); err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	if err := conn.Send(ctx, []byte("before")); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	expectMessage(t, events.messages, "before")

	// Server going away is reconnect-eligible
	es.stop()
	select {
	case code := <-events.closes:
		if code != wire.CloseGoingAway {
			t.Fatalf("expected close %d, got %d", wire.CloseGoingAway, code)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for close")
	}
	if s := conn.State(); s == connection.StateConnected || s.IsTerminal() {
		t.Fatalf("unexpected state after server stop: %s", s)
	}

	acked := make(chan struct{})
	if err := conn.Send(ctx, []byte("while-down"), connection.OnAck(func() { close(acked) })); err != nil {
		t.Fatalf("Send while down failed: %v", err)
	}
	if conn.QueueLen() != 1 {
		t.Fatalf("expected 1 queued message, got %d", conn.QueueLen())
	}

	ln2, err := net.Listen("tcp", addr)
	if err != nil {
		t.Skipf("cannot rebind %s: %v", addr, err)
	}
	restarted = startEchoServer(t, ln2, server.DefaultConfig())

	expectMessage(t, events.messages, "while-down")
	select {
	case <-acked:
	case <-time.After(5 * time.Second):
		t.Fatal("queued message was never acknowledged")
	}
	if conn.State() != connection.StateConnected {
		t.Fatalf("expected CONNECTED, got %s", conn.State())
	}
	if conn.QueueLen() != 0 {
		t.Fatalf("expected empty queue, got %d", conn.QueueLen())
	}
}

// TestE2E_ProtocolLog records a short session on both sides and reads the
// logs back.
func TestE2E_ProtocolLog(t *testing.T) {
	dir := t.TempDir()
	clientPath := filepath.Join(dir, "client.rlog")
	serverPath := filepath.Join(dir, "server.rlog")

	clientLog, err := resocklog.NewFileLogger(clientPath)
	if err != nil {
		t.Fatalf("Failed to create client log: %v", err)
	}
	serverLog, err := resocklog.NewFileLogger(serverPath)
	if err != nil {
		t.Fatalf("Failed to create server log: %v", err)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}
	cfg := server.DefaultConfig()
	cfg.ProtocolLogger = serverLog
	es := startEchoServer(t, ln, cfg)

	events := newClientEvents()
	conn, err := connection.New(connection.Config{
		URL:            "ws://" + ln.Addr().String() + "/ws",
		ProtocolLogger: clientLog,
	}, connection.WithHandlers(events.handlers()))
	if err != nil {
		t.Fatalf("Failed to create connection: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := conn.Connect(ctx); err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	if err := conn.Send(ctx, []byte("logged")); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	expectMessage(t, events.messages, "logged")

	if err := conn.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	<-conn.Done()
	es.stop()
	clientLog.Close()
	serverLog.Close()

	frames := readRecords(t, clientPath, resocklog.KindFrame)
	var in, out int
	for _, rec := range frames {
		if rec.ConnID != conn.ID() {
			t.Errorf("frame with foreign conn ID %q", rec.ConnID)
		}
		switch rec.Direction {
		case resocklog.DirectionIn:
			in++
		case resocklog.DirectionOut:
			out++
		}
	}
	if in != 1 || out != 1 {
		t.Errorf("expected 1 frame each way, got %d in, %d out", in, out)
	}

	var states []string
	for _, rec := range readRecords(t, clientPath, resocklog.KindState) {
		states = append(states, rec.State.New)
	}
	want := []string{"CONNECTING", "CONNECTED", "CLOSED"}
	if strings.Join(states, ",") != strings.Join(want, ",") {
		t.Errorf("state records: expected %v, got %v", want, states)
	}

	serverEvents := readRecords(t, serverPath, resocklog.KindEvent)
	var types []string
	for _, rec := range serverEvents {
		if rec.Role != resocklog.RoleServer {
			t.Errorf("expected SERVER role, got %s", rec.Role)
		}
		types = append(types, rec.Event.Type.String())
	}
	for _, w := range []string{"NEW_CONNECTION", "MESSAGE", "CLOSE"} {
		if !strings.Contains(strings.Join(types, ","), w) {
			t.Errorf("server log missing %s event: %v", w, types)
		}
	}
}

func readRecords(t *testing.T, path string, kind resocklog.Kind) []resocklog.Record {
	t.Helper()
	r, err := resocklog.NewFilteredReader(path, resocklog.Filter{Kind: &kind})
	if err != nil {
		t.Fatalf("Failed to open %s: %v", path, err)
	}
	defer r.Close()

	var out []resocklog.Record
	for {
		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			return out
		}
		if err != nil {
			t.Fatalf("Failed to read %s: %v", path, err)
		}
		out = append(out, rec)
	}
}

// TestE2E_Metrics checks the server-side Prometheus observer after one
// message round trip.
func TestE2E_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	observer, err := metrics.NewObserver(reg)
	if err != nil {
		t.Fatalf("Failed to create observer: %v", err)
	}
	b := plugin.NewBroadcaster(plugin.Config{})
	if err := b.Register(observer); err != nil {
		t.Fatalf("Failed to register observer: %v", err)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}
	es := startEchoServer(t, ln, server.DefaultConfig(), server.WithBroadcaster(b))
	defer es.stop()

	events := newClientEvents()
	conn, err := connection.New(connection.Config{URL: "ws://" + ln.Addr().String() + "/ws"},
		connection.WithHandlers(events.handlers()))
	if err != nil {
		t.Fatalf("Failed to create connection: %v", err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := conn.Connect(ctx); err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	if err := conn.Send(ctx, []byte("count me")); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	expectMessage(t, events.messages, "count me")

	scrape := httptest.NewServer(metrics.Handler(reg))
	defer scrape.Close()

	resp, err := http.Get(scrape.URL)
	if err != nil {
		t.Fatalf("Scrape failed: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}

	for _, want := range []string{
		"resock_connections_active 1",
		`resock_events_total{code="0",type="NEW_CONNECTION"} 1`,
		`resock_events_total{code="0",type="MESSAGE"} 1`,
		"resock_message_size_bytes_count 1",
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics missing %q\n%s", want, body)
		}
	}
}

// TestE2E_Discovery advertises a server over mDNS and connects to it by
// instance name.
func TestE2E_Discovery(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}
	es := startEchoServer(t, ln, server.DefaultConfig())
	defer es.stop()

	instance := fmt.Sprintf("resock-e2e-%d", time.Now().UnixNano()%100000)
	advertiser := discovery.NewAdvertiser(discovery.AdvertiserConfig{})
	if err := advertiser.Advertise(&discovery.ServiceInfo{
		Instance: instance,
		Port:     uint16(ln.Addr().(*net.TCPAddr).Port),
		Path:     "/ws",
	}); err != nil {
		t.Skipf("mDNS not available: %v", err)
	}
	defer advertiser.Stop()

	// Give mDNS time to propagate
	time.Sleep(500 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	svc, err := discovery.NewBrowser(discovery.DefaultBrowserConfig()).Find(ctx, instance)
	if err != nil {
		t.Skipf("instance not found (multicast unavailable?): %v", err)
	}

	// Prefer loopback since the server only listens there
	svc.Addresses = []string{"127.0.0.1"}
	url := svc.URL()
	if !strings.HasSuffix(url, "/ws") {
		t.Fatalf("unexpected URL %q", url)
	}

	var mu sync.Mutex
	var got []string
	done := make(chan struct{})
	conn, err := connection.New(connection.Config{URL: url}, connection.WithHandlers(connection.Handlers{
		OnMessage: func(p []byte) {
			mu.Lock()
			got = append(got, string(p))
			mu.Unlock()
			close(done)
		},
	}))
	if err != nil {
		t.Fatalf("Failed to create connection: %v", err)
	}
	defer conn.Close()

	if err := conn.Connect(ctx); err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	if err := conn.Send(ctx, []byte("found")); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	select {
	case <-done:
	case <-ctx.Done():
		t.Fatal("timeout waiting for echo")
	}
	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 || got[0] != "found" {
		t.Fatalf("unexpected messages: %v", got)
	}
}
