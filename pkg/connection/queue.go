package connection

import (
	"context"
	"errors"
	"sync"
	"time"
)

// QueuedMessage is an outbound message waiting for a connected transport.
type QueuedMessage struct {
	Payload    []byte
	EnqueuedAt time.Time

	// OnAck is called once the message was handed to the transport.
	OnAck func()

	// OnFail is called if the message is never delivered.
	OnFail func(err error)
}

func (m *QueuedMessage) ack() {
	if m.OnAck != nil {
		m.OnAck()
	}
}

func (m *QueuedMessage) fail(err error) {
	if m.OnFail != nil {
		m.OnFail(err)
	}
}

// SendFunc delivers one queued message. It must return only after the
// transport accepted the message. Returning an error created by Discard
// drops the message instead of stopping the drain.
type SendFunc func(ctx context.Context, msg *QueuedMessage) error

// discardError marks a message that can never be delivered.
type discardError struct {
	err error
}

func (e *discardError) Error() string { return "discarded: " + e.err.Error() }
func (e *discardError) Unwrap() error { return e.err }

// Discard wraps err so that Drain fails the current message with err and
// continues with the next one.
func Discard(err error) error {
	return &discardError{err: err}
}

// Queue is an unbounded FIFO of outbound messages. It is safe for concurrent
// use, but Drain calls must not overlap.
type Queue struct {
	mu    sync.Mutex
	items []*QueuedMessage
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Enqueue appends a message.
func (q *Queue) Enqueue(msg *QueuedMessage) {
	if msg.EnqueuedAt.IsZero() {
		msg.EnqueuedAt = time.Now()
	}
	q.mu.Lock()
	q.items = append(q.items, msg)
	q.mu.Unlock()
}

// Len returns the number of pending messages.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// peek returns the oldest message without removing it.
func (q *Queue) peek() *QueuedMessage {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil
	}
	return q.items[0]
}

// pop removes the oldest message if it is still msg.
func (q *Queue) pop(msg *QueuedMessage) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) > 0 && q.items[0] == msg {
		q.items[0] = nil
		q.items = q.items[1:]
	}
}

// Drain sends pending messages in enqueue order, waiting for each send to
// complete before starting the next. It stops at the first error and leaves
// the failed message and everything behind it queued. It returns the number
// of messages delivered. Messages rejected with Discard are failed and
// removed without stopping the drain.
func (q *Queue) Drain(ctx context.Context, send SendFunc) (int, error) {
	sent := 0
	for {
		if err := ctx.Err(); err != nil {
			return sent, err
		}

		msg := q.peek()
		if msg == nil {
			return sent, nil
		}

		if err := send(ctx, msg); err != nil {
			var d *discardError
			if errors.As(err, &d) {
				q.pop(msg)
				msg.fail(d.err)
				continue
			}
			return sent, err
		}

		q.pop(msg)
		msg.ack()
		sent++
	}
}

// FailAll fails every pending message with reason and clears the queue.
// It returns the number of failed messages.
func (q *Queue) FailAll(reason error) int {
	q.mu.Lock()
	items := q.items
	q.items = nil
	q.mu.Unlock()

	for _, msg := range items {
		msg.fail(reason)
	}
	return len(items)
}
