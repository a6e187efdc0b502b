package connection

import (
	"log/slog"
	"sync"
)

// notifier runs callbacks in order on its own goroutine. The queue is
// unbounded so the event loop never blocks on slow callbacks.
type notifier struct {
	logger *slog.Logger

	mu     sync.Mutex
	cond   *sync.Cond
	items  []func()
	closed bool
	done   chan struct{}
}

func newNotifier(logger *slog.Logger) *notifier {
	n := &notifier{logger: logger, done: make(chan struct{})}
	n.cond = sync.NewCond(&n.mu)
	go n.run()
	return n
}

// push schedules fn. Calls after close are dropped.
func (n *notifier) push(fn func()) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return
	}
	n.items = append(n.items, fn)
	n.cond.Signal()
}

// close lets the goroutine exit once the pending callbacks have run.
func (n *notifier) close() {
	n.mu.Lock()
	n.closed = true
	n.cond.Signal()
	n.mu.Unlock()
}

func (n *notifier) run() {
	defer close(n.done)
	for {
		n.mu.Lock()
		for len(n.items) == 0 && !n.closed {
			n.cond.Wait()
		}
		if len(n.items) == 0 {
			n.mu.Unlock()
			return
		}
		fn := n.items[0]
		n.items[0] = nil
		n.items = n.items[1:]
		n.mu.Unlock()

		n.call(fn)
	}
}

func (n *notifier) call(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			n.logger.Error("callback panicked", "panic", r)
		}
	}()
	fn()
}
