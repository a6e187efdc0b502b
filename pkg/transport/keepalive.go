package transport

import (
	"context"
	"encoding/binary"
	"sync"
	"sync/atomic"
	"time"
)

// Keep-alive defaults.
const (
	DefaultPingInterval   = 30 * time.Second
	DefaultPongTimeout    = 5 * time.Second
	DefaultMaxMissedPongs = 3
)

// KeepAliveConfig configures ping/pong liveness checks.
type KeepAliveConfig struct {
	PingInterval   time.Duration `yaml:"pingInterval,omitempty"`
	PongTimeout    time.Duration `yaml:"pongTimeout,omitempty"`
	MaxMissedPongs int           `yaml:"maxMissedPongs,omitempty"`
}

// DefaultKeepAliveConfig returns the default keep-alive configuration.
func DefaultKeepAliveConfig() KeepAliveConfig {
	return KeepAliveConfig{
		PingInterval:   DefaultPingInterval,
		PongTimeout:    DefaultPongTimeout,
		MaxMissedPongs: DefaultMaxMissedPongs,
	}
}

func (c KeepAliveConfig) withDefaults() KeepAliveConfig {
	if c.PingInterval <= 0 {
		c.PingInterval = DefaultPingInterval
	}
	if c.PongTimeout <= 0 {
		c.PongTimeout = DefaultPongTimeout
	}
	if c.MaxMissedPongs <= 0 {
		c.MaxMissedPongs = DefaultMaxMissedPongs
	}
	return c
}

// DetectionDelay is the longest time a dead peer can go unnoticed.
func (c KeepAliveConfig) DetectionDelay() time.Duration {
	c = c.withDefaults()
	return c.PingInterval*time.Duration(c.MaxMissedPongs) + c.PongTimeout
}

// KeepAlive sends numbered pings and declares the peer dead after too many
// unanswered ones.
type KeepAlive struct {
	cfg    KeepAliveConfig
	ping   func(seq uint32) error
	onDead func()

	pongs    chan uint32
	stop     chan struct{}
	stopOnce sync.Once
	started  atomic.Bool

	seq    atomic.Uint32
	missed atomic.Int32
	rtt    atomic.Int64
}

// NewKeepAlive creates a monitor. ping writes a ping carrying seq; onDead
// is called once from the monitor goroutine when the peer is declared dead.
func NewKeepAlive(cfg KeepAliveConfig, ping func(seq uint32) error, onDead func()) *KeepAlive {
	return &KeepAlive{
		cfg:    cfg.withDefaults(),
		ping:   ping,
		onDead: onDead,
		pongs:  make(chan uint32, 1),
		stop:   make(chan struct{}),
	}
}

// Start runs the monitor in a new goroutine. Only the first call has an
// effect.
func (k *KeepAlive) Start(ctx context.Context) {
	if !k.started.CompareAndSwap(false, true) {
		return
	}
	go k.run(ctx)
}

// Stop ends the monitor. It is safe to call more than once.
func (k *KeepAlive) Stop() {
	k.stopOnce.Do(func() { close(k.stop) })
}

// Pong records a pong carrying seq.
func (k *KeepAlive) Pong(seq uint32) {
	select {
	case k.pongs <- seq:
	default:
	}
}

// Missed returns the number of consecutive unanswered pings.
func (k *KeepAlive) Missed() int {
	return int(k.missed.Load())
}

// RTT returns the round-trip time of the last answered ping.
func (k *KeepAlive) RTT() time.Duration {
	return time.Duration(k.rtt.Load())
}

func (k *KeepAlive) run(ctx context.Context) {
	ticker := time.NewTicker(k.cfg.PingInterval)
	defer ticker.Stop()

	var (
		pending  uint32
		sentAt   time.Time
		awaiting bool
	)
	send := func() {
		pending = k.seq.Add(1)
		sentAt = time.Now()
		awaiting = true
		// A failed write counts as a miss on the next tick.
		_ = k.ping(pending)
	}

	send()
	for {
		select {
		case <-ctx.Done():
			return
		case <-k.stop:
			return
		case <-ticker.C:
			if awaiting && time.Since(sentAt) >= k.cfg.PongTimeout {
				awaiting = false
				if int(k.missed.Add(1)) >= k.cfg.MaxMissedPongs {
					if k.onDead != nil {
						k.onDead()
					}
					return
				}
			}
			send()
		case seq := <-k.pongs:
			if awaiting && seq == pending {
				awaiting = false
				k.missed.Store(0)
				k.rtt.Store(int64(time.Since(sentAt)))
			}
		}
	}
}

// EncodePing returns the ping payload for seq.
func EncodePing(seq uint32) []byte {
	return binary.BigEndian.AppendUint32(nil, seq)
}

// DecodePing parses a ping or pong payload.
func DecodePing(payload []byte) (uint32, bool) {
	if len(payload) != 4 {
		return 0, false
	}
	return binary.BigEndian.Uint32(payload), true
}
