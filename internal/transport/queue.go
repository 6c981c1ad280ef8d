package transport

import "sync"

// queue is a thread-safe unbounded FIFO.
//
// It backs the per-connection outbox (drained by the write pump) and the
// per-request inbox (drained by ResponseStream.Recv). Producers never
// block, so the read pump cannot be stalled by a slow consumer.
//
// Waiting is signalled through a channel of capacity one so consumers can
// select on it together with ctx.Done().
type queue[T any] struct {
	mu     sync.Mutex
	items  []T
	closed bool
	signal chan struct{}
}

func newQueue[T any]() *queue[T] {
	return &queue[T]{
		items:  make([]T, 0, 16),
		signal: make(chan struct{}, 1),
	}
}

// Push appends v. Returns false if the queue is closed.
func (q *queue[T]) Push(v T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.items = append(q.items, v)

	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// Poll removes and returns the front item. When the queue is empty ok is
// false and closed reports whether more items can still arrive. Both
// answers are taken under one lock, so an item pushed before Close is
// never missed.
func (q *queue[T]) Poll() (v T, ok bool, closed bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return v, false, q.closed
	}

	v = q.items[0]
	var zero T
	q.items[0] = zero // release references held by the backing array
	if len(q.items) == 1 {
		q.items = q.items[:0]
	} else {
		q.items = q.items[1:]
	}
	return v, true, false
}

// Wait returns a channel that fires when items may be available. It is
// closed once the queue is closed.
func (q *queue[T]) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the number of queued items.
func (q *queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close stops further pushes and wakes all waiters. Items already queued
// can still be polled.
func (q *queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}
