package transport

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeepAliveConfig(t *testing.T) {
	cfg := DefaultKeepAliveConfig()
	assert.Equal(t, DefaultPingInterval, cfg.PingInterval)
	assert.Equal(t, DefaultPongTimeout, cfg.PongTimeout)
	assert.Equal(t, DefaultMaxMissedPongs, cfg.MaxMissedPongs)
	assert.Equal(t, 95*time.Second, cfg.DetectionDelay())

	// Zero fields fall back to defaults.
	assert.Equal(t, 95*time.Second, KeepAliveConfig{}.DetectionDelay())
}

func TestKeepAliveTimeout(t *testing.T) {
	var pings atomic.Int32
	dead := make(chan struct{})

	ka := NewKeepAlive(KeepAliveConfig{
		PingInterval:   20 * time.Millisecond,
		PongTimeout:    10 * time.Millisecond,
		MaxMissedPongs: 2,
	}, func(uint32) error {
		pings.Add(1)
		return nil
	}, func() { close(dead) })

	ka.Start(context.Background())
	defer ka.Stop()

	select {
	case <-dead:
	case <-time.After(time.Second):
		t.Fatal("peer not declared dead")
	}
	assert.Equal(t, 2, ka.Missed())
	assert.GreaterOrEqual(t, pings.Load(), int32(2))
}

func TestKeepAlivePongResets(t *testing.T) {
	var ka *KeepAlive
	var dead atomic.Bool

	ka = NewKeepAlive(KeepAliveConfig{
		PingInterval:   15 * time.Millisecond,
		PongTimeout:    10 * time.Millisecond,
		MaxMissedPongs: 2,
	}, func(seq uint32) error {
		ka.Pong(seq)
		return nil
	}, func() { dead.Store(true) })

	ka.Start(context.Background())
	time.Sleep(120 * time.Millisecond)
	ka.Stop()

	assert.False(t, dead.Load())
	assert.Equal(t, 0, ka.Missed())
}

func TestKeepAliveStaleSequenceIgnored(t *testing.T) {
	dead := make(chan struct{})
	var ka *KeepAlive
	ka = NewKeepAlive(KeepAliveConfig{
		PingInterval:   15 * time.Millisecond,
		PongTimeout:    5 * time.Millisecond,
		MaxMissedPongs: 2,
	}, func(seq uint32) error {
		ka.Pong(seq + 100)
		return nil
	}, func() { close(dead) })

	ka.Start(context.Background())
	defer ka.Stop()

	select {
	case <-dead:
	case <-time.After(time.Second):
		t.Fatal("mismatched pongs must not keep the peer alive")
	}
}

func TestKeepAliveStop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ka := NewKeepAlive(KeepAliveConfig{PingInterval: time.Hour}, func(uint32) error { return nil }, nil)
	ka.Start(ctx)
	ka.Start(ctx)
	ka.Stop()
	ka.Stop()
}

func TestPingPayload(t *testing.T) {
	seq, ok := DecodePing(EncodePing(0xDEADBEEF))
	require.True(t, ok)
	assert.Equal(t, uint32(0xDEADBEEF), seq)

	_, ok = DecodePing([]byte("keepalive"))
	assert.False(t, ok)
}
