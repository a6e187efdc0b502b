package middleware

import (
	"errors"
	"fmt"
	"slices"
	"sync"
)

// Pipeline errors.
var (
	// ErrPipelineFrozen is returned by Use once the pipeline serves a live
	// connection.
	ErrPipelineFrozen = errors.New("pipeline frozen")

	// ErrNilHandler is returned by Use for an entry without handler.
	ErrNilHandler = errors.New("middleware handler is nil")

	// ErrPolicy may be returned by handlers to reject a message on policy
	// grounds. Servers close the session with 1008 when they see it.
	ErrPolicy = errors.New("policy violation")
)

// Next advances to the following handler.
type Next func() error

// Handler processes one message. Calling next runs the rest of the chain.
type Handler func(c *Context, next Next) error

// Entry is a registered middleware step.
type Entry struct {
	Name      string
	Handler   Handler
	Direction Direction

	// Priority orders entries; lower runs first. Ties keep registration order.
	Priority int
}

// Chain runs one message through the composed handlers and returns the
// final context.
type Chain func(c *Context) (*Context, error)

// PanicError is returned when a handler panics.
type PanicError struct {
	Entry string
	Value any
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("middleware %q panicked: %v", e.Entry, e.Value)
}

// Pipeline holds the ordered middleware entries.
type Pipeline struct {
	mu      sync.Mutex
	entries []Entry
	frozen  bool
}

// New creates an empty pipeline.
func New() *Pipeline {
	return &Pipeline{}
}

// Use registers an entry. Entries with no direction default to Both.
func (p *Pipeline) Use(e Entry) error {
	if e.Handler == nil {
		return ErrNilHandler
	}
	if e.Direction&Both == 0 {
		e.Direction = Both
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.frozen {
		return ErrPipelineFrozen
	}
	p.entries = append(p.entries, e)
	return nil
}

// UseFunc registers a handler for direction with priority 0.
func (p *Pipeline) UseFunc(name string, dir Direction, h Handler) error {
	return p.Use(Entry{Name: name, Direction: dir, Handler: h})
}

// Freeze rejects further Use calls. Connections freeze their pipeline when
// they first reach Connected.
func (p *Pipeline) Freeze() {
	p.mu.Lock()
	p.frozen = true
	p.mu.Unlock()
}

// Len returns the number of registered entries.
func (p *Pipeline) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// ordered returns the entries for dir in execution order.
func ordered(entries []Entry, dir Direction) []Entry {
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if e.Direction.matches(dir) {
			out = append(out, e)
		}
	}
	slices.SortStableFunc(out, func(a, b Entry) int {
		switch {
		case a.Priority < b.Priority:
			return -1
		case a.Priority > b.Priority:
			return 1
		default:
			return 0
		}
	})
	return out
}

// Compose snapshots the registered entries into a Chain. The chain is
// immutable and safe for concurrent use by many connections.
func (p *Pipeline) Compose() Chain {
	p.mu.Lock()
	incoming := ordered(p.entries, Incoming)
	outgoing := ordered(p.entries, Outgoing)
	p.mu.Unlock()

	return func(c *Context) (*Context, error) {
		entries := outgoing
		if c.Direction == Incoming {
			entries = incoming
		}
		return c, run(c, entries, 0)
	}
}

// run invokes entries[i] with a next that continues at i+1.
func run(c *Context, entries []Entry, i int) (err error) {
	if i >= len(entries) {
		return nil
	}
	e := entries[i]

	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Entry: e.Name, Value: r}
		}
	}()

	called := false
	next := func() error {
		if called {
			return fmt.Errorf("middleware %q called next more than once", e.Name)
		}
		called = true
		return run(c, entries, i+1)
	}
	return e.Handler(c, next)
}
