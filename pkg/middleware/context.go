package middleware

import (
	"context"
	"sync"
)

// Direction selects which messages an entry applies to.
type Direction uint8

const (
	// Incoming entries run for messages received from the peer.
	Incoming Direction = 1 << iota

	// Outgoing entries run for messages sent to the peer.
	Outgoing

	// Both entries run in either direction.
	Both = Incoming | Outgoing
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case Incoming:
		return "incoming"
	case Outgoing:
		return "outgoing"
	case Both:
		return "both"
	default:
		return "none"
	}
}

// matches reports whether an entry tagged d runs for a message flowing in msg.
func (d Direction) matches(msg Direction) bool {
	return d&msg != 0
}

// Context carries one in-flight message through a chain. It is passed by
// pointer; handlers may replace Message.
type Context struct {
	// Direction of the message, Incoming or Outgoing.
	Direction Direction

	// ConnID identifies the connection or session.
	ConnID string

	// Message is the payload. Handlers may rewrite it.
	Message []byte

	ctx     context.Context
	mu      sync.Mutex
	params  map[string]any
	dropped bool
}

// NewContext creates a pipeline context for one message.
func NewContext(ctx context.Context, dir Direction, connID string, msg []byte) *Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return &Context{
		Direction: dir,
		ConnID:    connID,
		Message:   msg,
		ctx:       ctx,
	}
}

// Context returns the Go context of the operation that produced the message.
func (c *Context) Context() context.Context {
	if c.ctx == nil {
		return context.Background()
	}
	return c.ctx
}

// Set stores a value in the params bag.
func (c *Context) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.params == nil {
		c.params = make(map[string]any)
	}
	c.params[key] = value
}

// Get returns a value from the params bag.
func (c *Context) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.params[key]
	return v, ok
}

// Params returns a copy of the params bag.
func (c *Context) Params() map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]any, len(c.params))
	for k, v := range c.params {
		out[k] = v
	}
	return out
}

// Drop marks the message as consumed. The caller of the chain will neither
// deliver nor transmit it.
func (c *Context) Drop() {
	c.mu.Lock()
	c.dropped = true
	c.mu.Unlock()
}

// Dropped reports whether a handler called Drop.
func (c *Context) Dropped() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropped
}
