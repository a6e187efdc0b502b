package connection

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Reconnect defaults.
const (
	// DefaultBaseDelay is the delay before the first reconnect attempt.
	DefaultBaseDelay = 1000 * time.Millisecond

	// DefaultDecayFactor is the factor by which the delay grows per attempt.
	DefaultDecayFactor = 1.5

	// DefaultJitterFraction is the maximum jitter as a fraction of the delay.
	DefaultJitterFraction = 0.5

	// DefaultMaxDelay caps the reconnect delay.
	DefaultMaxDelay = 30000 * time.Millisecond

	// DefaultMaxAttempts is zero: retry forever.
	DefaultMaxAttempts = 0
)

// Rand is the random source used for jitter. *math/rand.Rand satisfies it.
type Rand interface {
	// Float64 returns a number in [0.0, 1.0).
	Float64() float64
}

// Policy computes reconnect delays. It is immutable; NextDelay is a pure
// function of its arguments.
type Policy struct {
	BaseDelay      time.Duration
	DecayFactor    float64
	JitterFraction float64

	// MaxAttempts is the number of retries allowed. Zero means unlimited.
	MaxAttempts int

	MaxDelay time.Duration
	Enabled  bool
}

// DefaultPolicy returns the default reconnect policy.
func DefaultPolicy() Policy {
	return Policy{
		BaseDelay:      DefaultBaseDelay,
		DecayFactor:    DefaultDecayFactor,
		JitterFraction: DefaultJitterFraction,
		MaxAttempts:    DefaultMaxAttempts,
		MaxDelay:       DefaultMaxDelay,
		Enabled:        true,
	}
}

// Validate checks the policy invariants.
func (p Policy) Validate() error {
	var errs []error
	if p.BaseDelay <= 0 {
		errs = append(errs, fmt.Errorf("base delay must be positive, got %v", p.BaseDelay))
	}
	if p.JitterFraction < 0 || p.JitterFraction > 1 {
		errs = append(errs, fmt.Errorf("jitter fraction must be in [0, 1], got %v", p.JitterFraction))
	}
	if p.MaxDelay < p.BaseDelay {
		errs = append(errs, fmt.Errorf("max delay %v is below base delay %v", p.MaxDelay, p.BaseDelay))
	}
	if p.DecayFactor <= 0 {
		errs = append(errs, fmt.Errorf("decay factor must be positive, got %v", p.DecayFactor))
	}
	if p.MaxAttempts < 0 {
		errs = append(errs, fmt.Errorf("max attempts must not be negative, got %d", p.MaxAttempts))
	}
	return errors.Join(errs...)
}

// Exhausted reports whether no retry is allowed for the given attempt.
func (p Policy) Exhausted(attempt int) bool {
	if !p.Enabled {
		return true
	}
	return p.MaxAttempts > 0 && attempt >= p.MaxAttempts
}

// BaseFor returns the un-jittered delay for an attempt.
func (p Policy) BaseFor(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := float64(p.BaseDelay) * math.Pow(p.DecayFactor, float64(attempt))
	if d > float64(p.MaxDelay) || math.IsInf(d, 1) || math.IsNaN(d) {
		return p.MaxDelay
	}
	return time.Duration(d)
}

// NextDelay returns the delay before retry number attempt (0 for the first
// retry) and true, or zero and false when the policy is exhausted.
// rng may be nil only when JitterFraction is zero.
func (p Policy) NextDelay(attempt int, rng Rand) (time.Duration, bool) {
	if p.Exhausted(attempt) {
		return 0, false
	}

	delay := p.BaseFor(attempt)
	if p.JitterFraction <= 0 || rng == nil {
		return delay, true
	}

	// Multiplicative jitter in [1-j, 1+j].
	factor := 1 - p.JitterFraction + 2*p.JitterFraction*rng.Float64()
	jittered := float64(delay) * factor

	if jittered < 0 {
		jittered = 0
	}
	if jittered > float64(p.MaxDelay) {
		jittered = float64(p.MaxDelay)
	}
	return time.Duration(jittered), true
}

// Sequence returns the first n un-jittered delays. Useful for diagnostics
// and documentation.
func (p Policy) Sequence(n int) []time.Duration {
	seq := make([]time.Duration, 0, n)
	for i := 0; i < n; i++ {
		seq = append(seq, p.BaseFor(i))
	}
	return seq
}

// ReconnectConfig is the partial form of Policy used in configuration.
// Nil fields take their defaults.
type ReconnectConfig struct {
	BaseDelay      *time.Duration `yaml:"baseDelay,omitempty"`
	DecayFactor    *float64       `yaml:"decayFactor,omitempty"`
	JitterFraction *float64       `yaml:"jitterFraction,omitempty"`
	MaxAttempts    *int           `yaml:"maxAttempts,omitempty"`
	MaxDelay       *time.Duration `yaml:"maxDelay,omitempty"`
	Enabled        *bool          `yaml:"enabled,omitempty"`
}

// Resolve fills unset fields with defaults and returns the policy.
func (c ReconnectConfig) Resolve() Policy {
	p := DefaultPolicy()
	if c.BaseDelay != nil {
		p.BaseDelay = *c.BaseDelay
	}
	if c.DecayFactor != nil {
		p.DecayFactor = *c.DecayFactor
	}
	if c.JitterFraction != nil {
		p.JitterFraction = *c.JitterFraction
	}
	if c.MaxAttempts != nil {
		p.MaxAttempts = *c.MaxAttempts
	}
	if c.MaxDelay != nil {
		p.MaxDelay = *c.MaxDelay
	}
	if c.Enabled != nil {
		p.Enabled = *c.Enabled
	}
	return p
}
