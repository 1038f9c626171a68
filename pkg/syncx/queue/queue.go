package queue

import (
	"context"
	"sync"
)

// Queue is a thread-safe FIFO queue. The zero max size means the queue is
// unbounded and Put never blocks.
type Queue[T any] struct {
	mu       sync.Mutex
	notEmpty *sync.Cond // signaled when elements become available
	notFull  *sync.Cond // signaled when space becomes available
	maxSize  int
	elems    []T
}

// Opt is an option for configuring a queue.
type Opt[T any] func(q *Queue[T])

// WithMaxSize bounds the queue to the given number of elements; Put blocks
// while the queue is full.
func WithMaxSize[T any](maxSize int) Opt[T] {
	return func(q *Queue[T]) {
		q.maxSize = maxSize
	}
}

// New creates a new queue.
func New[T any](opts ...Opt[T]) *Queue[T] {
	q := &Queue[T]{elems: make([]T, 0)}
	q.notEmpty = sync.NewCond(&q.mu)
	q.notFull = sync.NewCond(&q.mu)
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Put adds an element to the queue. If the queue has a max size and is full,
// Put blocks until space is available.
func (q *Queue[T]) Put(t T) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.full() {
		q.notFull.Wait()
	}
	q.elems = append(q.elems, t)
	q.notEmpty.Signal()
}

// Get removes and returns an element from the queue. If the queue is empty,
// then Get will block until an element is available.
func (q *Queue[T]) Get() T {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.empty() {
		q.notEmpty.Wait()
	}
	return q.pop()
}

// TryGet removes and returns an element from the queue, if one is available.
func (q *Queue[T]) TryGet() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.empty() {
		var t T
		return t, false
	}
	return q.pop(), true
}

// GetWithContext removes and returns an element from the queue. If the queue is empty, then Get
// will block until an element is available or the context is canceled. This routine is relatively
// expensive---don't use it for a high throughput queue. Instead, you should probably just use a
// channel.
func (q *Queue[T]) GetWithContext(ctx context.Context) (T, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			q.mu.Lock()
			defer q.mu.Unlock()
			q.notEmpty.Broadcast()
		case <-done:
		}
	}()

	for q.empty() && ctx.Err() == nil {
		q.notEmpty.Wait()
	}
	if ctx.Err() != nil {
		var t T
		return t, ctx.Err()
	}
	return q.pop(), nil
}

// Len returns the number of elements in the queue.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.elems)
}

func (q *Queue[T]) pop() T {
	res := q.elems[0]
	q.elems = q.elems[1:]
	q.notFull.Signal()
	return res
}

func (q *Queue[T]) empty() bool {
	return len(q.elems) == 0
}

func (q *Queue[T]) full() bool {
	return q.maxSize > 0 && len(q.elems) >= q.maxSize
}
