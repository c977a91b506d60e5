package registry

import (
	"context"
	"errors"
	"sync"
)

var errQueueClosed = errors.New("queue closed")

// queue is an unbounded FIFO that doubles its capacity when it reaches 70%
// full. Producers never block; consumers wait on a context.
type queue[T any] struct {
	mu       sync.Mutex
	notify   chan struct{} // capacity 1, signalled on push and close
	buf      []T
	head     int
	tail     int
	count    int
	capacity int
	closed   bool
}

func newQueue[T any](initialCapacity int) *queue[T] {
	if initialCapacity < 1 {
		initialCapacity = 1
	}
	return &queue[T]{
		notify:   make(chan struct{}, 1),
		buf:      make([]T, initialCapacity),
		capacity: initialCapacity,
	}
}

// push appends an item. Returns false if the queue is closed.
func (q *queue[T]) push(item T) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}

	threshold := (q.capacity * 70) / 100
	if threshold < 1 {
		threshold = 1
	}
	if q.count+1 >= threshold {
		q.grow()
	}

	q.buf[q.tail] = item
	q.tail = (q.tail + 1) % q.capacity
	q.count++
	q.mu.Unlock()

	q.signal()
	return true
}

// pop removes the oldest item, waiting until one is available, the queue
// is closed and drained (errQueueClosed), or ctx is done.
func (q *queue[T]) pop(ctx context.Context) (T, error) {
	for {
		if item, ok, closed := q.tryPop(); ok {
			return item, nil
		} else if closed {
			q.signal()
			var zero T
			return zero, errQueueClosed
		}

		select {
		case <-q.notify:
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		}
	}
}

func (q *queue[T]) tryPop() (item T, ok bool, closed bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.count == 0 {
		return item, false, q.closed
	}

	item = q.buf[q.head]
	var zero T
	q.buf[q.head] = zero
	q.head = (q.head + 1) % q.capacity
	q.count--

	// More items remain: keep the next waiter awake.
	if q.count > 0 {
		q.signal()
	}
	return item, true, false
}

// close stops further pushes. Queued items remain poppable.
func (q *queue[T]) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.signal()
}

// discard closes the queue and drops everything in it.
func (q *queue[T]) discard() {
	q.mu.Lock()
	q.closed = true
	clear(q.buf)
	q.head, q.tail, q.count = 0, 0, 0
	q.mu.Unlock()
	q.signal()
}

func (q *queue[T]) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func (q *queue[T]) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// grow doubles the capacity. Must be called with lock held.
func (q *queue[T]) grow() {
	newCapacity := q.capacity * 2
	newBuf := make([]T, newCapacity)

	if q.count > 0 {
		if q.head < q.tail {
			copy(newBuf, q.buf[q.head:q.tail])
		} else {
			n := copy(newBuf, q.buf[q.head:])
			copy(newBuf[n:], q.buf[:q.tail])
		}
	}

	q.buf = newBuf
	q.head = 0
	q.tail = q.count
	q.capacity = newCapacity
}
