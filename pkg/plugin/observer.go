package plugin

import "github.com/resock/resock-go/pkg/wire"

// Observer receives connection events.
type Observer interface {
	// Observe handles one event. Returned errors are logged, never
	// propagated.
	Observe(ev wire.Event) error
}

// Named is implemented by observers that provide their own display name.
type Named interface {
	Name() string
}

// FuncObserver adapts a function to Observer. Use Func to create one; the
// pointer identity is what Unregister matches.
type FuncObserver struct {
	name string
	fn   func(wire.Event) error
}

// Func wraps fn as a named observer.
func Func(name string, fn func(wire.Event) error) *FuncObserver {
	return &FuncObserver{name: name, fn: fn}
}

// Observe implements Observer.
func (f *FuncObserver) Observe(ev wire.Event) error {
	return f.fn(ev)
}

// Name implements Named.
func (f *FuncObserver) Name() string {
	return f.name
}

// filtered forwards only selected event types.
type filtered struct {
	inner Observer
	types map[wire.EventType]struct{}
}

// Filter returns an observer that forwards only events of the given types
// to inner.
func Filter(inner Observer, types ...wire.EventType) Observer {
	f := &filtered{inner: inner, types: make(map[wire.EventType]struct{}, len(types))}
	for _, t := range types {
		f.types[t] = struct{}{}
	}
	return f
}

// Observe implements Observer.
func (f *filtered) Observe(ev wire.Event) error {
	if _, ok := f.types[ev.Type]; !ok {
		return nil
	}
	return f.inner.Observe(ev)
}

// Name implements Named.
func (f *filtered) Name() string {
	return nameOf(f.inner, nil)
}

// Compile-time interface satisfaction checks.
var (
	_ Observer = (*FuncObserver)(nil)
	_ Observer = (*filtered)(nil)
)
