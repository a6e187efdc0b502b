package plugin

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"sync"

	"github.com/resock/resock-go/pkg/wire"
)

// Registry errors.
var (
	ErrNilObserver        = errors.New("observer is nil")
	ErrAlreadyRegistered  = errors.New("observer already registered")
	ErrDuplicateSingleton = errors.New("singleton observer type already registered")
	ErrNotComparable      = errors.New("observer type is not comparable")
)

// Registry discovers lifecycle observers at runtime.
type Registry interface {
	// Register appends an observer.
	Register(o Observer) error

	// Unregister removes an observer. It reports whether it was registered.
	Unregister(o Observer) bool

	// List returns the registered observers in order.
	List() []Observer
}

// FaultHandler is told about observers that failed.
type FaultHandler func(name string, ev wire.Event, err error)

// Config configures a Broadcaster.
type Config struct {
	// Catalog supplies observer metadata. Defaults to DefaultCatalog.
	Catalog *Catalog

	// Logger receives observer failures as warnings. Nil discards.
	Logger *slog.Logger

	// OnFault is called after an observer failed (optional).
	OnFault FaultHandler
}

type registration struct {
	observer Observer
	name     string
	meta     Meta
	tagged   bool
}

// Broadcaster is a Registry that fans events out to its observers. It is
// safe for concurrent use; observers registered during an Emit are not seen
// by that Emit.
type Broadcaster struct {
	mu      sync.RWMutex
	regs    []registration
	catalog *Catalog
	logger  *slog.Logger
	onFault FaultHandler
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster(cfg Config) *Broadcaster {
	if cfg.Catalog == nil {
		cfg.Catalog = DefaultCatalog
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Broadcaster{
		catalog: cfg.Catalog,
		logger:  cfg.Logger,
		onFault: cfg.OnFault,
	}
}

// nameOf returns the display name of o.
func nameOf(o Observer, c *Catalog) string {
	if c != nil {
		if m, ok := c.Lookup(o); ok && m.Name != "" {
			return m.Name
		}
	}
	if n, ok := o.(Named); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", o)
}

// Register implements Registry.
func (b *Broadcaster) Register(o Observer) error {
	if o == nil {
		return ErrNilObserver
	}
	t := reflect.TypeOf(o)
	if !t.Comparable() {
		return fmt.Errorf("%w: %s", ErrNotComparable, t)
	}

	meta, tagged := b.catalog.Lookup(o)
	reg := registration{
		observer: o,
		name:     nameOf(o, b.catalog),
		meta:     meta,
		tagged:   tagged,
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, r := range b.regs {
		if r.observer == o {
			return fmt.Errorf("%w: %s", ErrAlreadyRegistered, reg.name)
		}
		if tagged && meta.Singleton && reflect.TypeOf(r.observer) == t {
			return fmt.Errorf("%w: %s", ErrDuplicateSingleton, reg.name)
		}
	}
	b.regs = append(b.regs, reg)
	b.logger.Debug("observer registered", "observer", reg.name, "count", len(b.regs))
	return nil
}

// Unregister implements Registry.
func (b *Broadcaster) Unregister(o Observer) bool {
	if o == nil || !reflect.TypeOf(o).Comparable() {
		return false
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for i, r := range b.regs {
		if r.observer == o {
			// Copy so that in-flight Emit snapshots stay intact.
			regs := make([]registration, 0, len(b.regs)-1)
			regs = append(regs, b.regs[:i]...)
			regs = append(regs, b.regs[i+1:]...)
			b.regs = regs
			b.logger.Debug("observer unregistered", "observer", r.name)
			return true
		}
	}
	return false
}

// List implements Registry.
func (b *Broadcaster) List() []Observer {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Observer, len(b.regs))
	for i, r := range b.regs {
		out[i] = r.observer
	}
	return out
}

// Len returns the number of registered observers.
func (b *Broadcaster) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.regs)
}

// Emit delivers ev to every observer in registration order and returns the
// number of observers that failed.
func (b *Broadcaster) Emit(ev wire.Event) int {
	b.mu.RLock()
	regs := b.regs
	b.mu.RUnlock()

	failed := 0
	for _, r := range regs {
		if err := b.deliver(r, ev); err != nil {
			failed++
			b.logger.Warn("observer failed",
				"observer", r.name,
				"event", ev.Type.String(),
				"conn", ev.ConnID,
				"error", err,
			)
			if b.onFault != nil {
				b.onFault(r.name, ev, err)
			}
		}
	}
	return failed
}

// deliver calls one observer, converting a panic into an error.
func (b *Broadcaster) deliver(r registration, ev wire.Event) (err error) {
	defer func() {
		if v := recover(); v != nil {
			err = fmt.Errorf("observer panicked: %v", v)
		}
	}()
	return r.observer.Observe(ev)
}

// Compile-time interface satisfaction check.
var _ Registry = (*Broadcaster)(nil)
