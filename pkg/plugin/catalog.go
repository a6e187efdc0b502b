package plugin

import (
	"reflect"
	"sync"
)

// Meta is metadata attached to an observer type.
type Meta struct {
	// Name is the display name used in logs.
	Name string

	// Singleton allows at most one registered instance per broadcaster.
	Singleton bool
}

// Catalog maps types to metadata. It is safe for concurrent use.
type Catalog struct {
	mu      sync.RWMutex
	entries map[reflect.Type]Meta
}

// DefaultCatalog is the process-wide catalog used when a Broadcaster is not
// given one explicitly.
var DefaultCatalog = NewCatalog()

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{entries: make(map[reflect.Type]Meta)}
}

// Tag attaches meta to the dynamic type of v. A typed nil pointer is enough:
//
//	c.Tag((*MyObserver)(nil), Meta{Name: "mine"})
func (c *Catalog) Tag(v any, meta Meta) {
	t := reflect.TypeOf(v)
	if t == nil {
		return
	}
	c.mu.Lock()
	c.entries[t] = meta
	c.mu.Unlock()
}

// Untag removes the metadata for the dynamic type of v.
func (c *Catalog) Untag(v any) {
	t := reflect.TypeOf(v)
	if t == nil {
		return
	}
	c.mu.Lock()
	delete(c.entries, t)
	c.mu.Unlock()
}

// Lookup returns the metadata for the dynamic type of v.
func (c *Catalog) Lookup(v any) (Meta, bool) {
	t := reflect.TypeOf(v)
	if t == nil {
		return Meta{}, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.entries[t]
	return m, ok
}
