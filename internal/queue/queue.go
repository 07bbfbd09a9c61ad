// Package queue provides the unbounded FIFO hand-off queue that connects the
// pipeline stages.
//
// Push never blocks: the backing slice grows as needed, so a slow consumer can
// never stall the capture device. Pop blocks until an item is available, the
// queue is closed and drained, or the context is cancelled.
package queue

import (
	"context"
	"errors"
	"sync"
)

// ErrQueueClosed is returned by Pop once the queue has been closed and every
// buffered item has been consumed, and by Push after Close.
var ErrQueueClosed = errors.New("queue: closed")

// Queue is an unbounded FIFO safe for concurrent use by any number of
// producers and consumers. The zero value is not usable; call [New].
type Queue[T any] struct {
	mu     sync.Mutex
	items  []T
	head   int
	closed bool

	// ready holds one token while items are buffered or the queue is closed.
	ready chan struct{}

	onLen func(int)
}

// Option configures a [Queue].
type Option func(*options)

type options struct {
	onLen func(int)
}

// WithLenObserver registers fn to be called with the new length after every
// Push and Pop. fn runs with the queue lock held and must not call back into
// the queue.
func WithLenObserver(fn func(n int)) Option {
	return func(o *options) { o.onLen = fn }
}

// New returns an empty queue.
func New[T any](opts ...Option) *Queue[T] {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return &Queue[T]{
		ready: make(chan struct{}, 1),
		onLen: o.onLen,
	}
}

// Push appends v to the tail of the queue. It never blocks. Returns
// [ErrQueueClosed] if the queue has been closed.
func (q *Queue[T]) Push(v T) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	q.items = append(q.items, v)
	q.signal()
	q.observe()
	return nil
}

// Pop removes and returns the item at the head of the queue, blocking while
// the queue is empty. Buffered items are still returned after Close; once the
// queue is closed and empty Pop returns [ErrQueueClosed]. If ctx is cancelled
// first, ctx.Err() is returned.
func (q *Queue[T]) Pop(ctx context.Context) (T, error) {
	var zero T
	for {
		q.mu.Lock()
		if n := len(q.items) - q.head; n > 0 {
			v := q.items[q.head]
			q.items[q.head] = zero
			q.head++
			q.compact()
			if len(q.items)-q.head > 0 {
				q.signal()
			}
			q.observe()
			q.mu.Unlock()
			return v, nil
		}
		if q.closed {
			q.signal()
			q.mu.Unlock()
			return zero, ErrQueueClosed
		}
		q.mu.Unlock()

		select {
		case <-q.ready:
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
}

// Close marks the queue closed. Pending and future Pop calls drain the
// remaining items and then return [ErrQueueClosed]. Safe to call more than once.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.signal()
}

// Len returns the number of buffered items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) - q.head
}

// signal leaves a wake-up token for one waiting consumer. Caller holds q.mu.
func (q *Queue[T]) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// compact releases the consumed prefix once it dominates the backing slice.
// Caller holds q.mu.
func (q *Queue[T]) compact() {
	if q.head == len(q.items) {
		q.items = q.items[:0]
		q.head = 0
		return
	}
	if q.head > 64 && q.head*2 >= len(q.items) {
		n := copy(q.items, q.items[q.head:])
		clear(q.items[n:])
		q.items = q.items[:n]
		q.head = 0
	}
}

func (q *Queue[T]) observe() {
	if q.onLen != nil {
		q.onLen(len(q.items) - q.head)
	}
}
