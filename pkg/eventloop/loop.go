// Package eventloop provides the single-threaded callback dispatch loop that
// the store client attaches to. All continuations registered with the client
// execute on the goroutine driving the loop, one at a time.
package eventloop

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/strand-sched/strand/pkg/syncx/queue"
)

// ErrClosed is returned by Post once the loop has been closed.
var ErrClosed = errors.New("event loop is closed")

// Loop is an unbounded run queue of callbacks. Post may be called from any
// goroutine; Run must be driven by exactly one.
type Loop struct {
	mu     sync.Mutex
	closed bool

	// A nil callback is the close sentinel; Post never enqueues one.
	tasks *queue.Queue[func()]
}

// New creates a new loop.
func New() *Loop {
	return &Loop{tasks: queue.New[func()]()}
}

// Post schedules fn to run on the loop goroutine. It never blocks.
func (l *Loop) Post(fn func()) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrClosed
	}
	l.tasks.Put(fn)
	return nil
}

// Run executes posted callbacks in order on the calling goroutine until the
// context is canceled or the loop is closed. On Close, every callback posted
// beforehand still runs before Run returns.
func (l *Loop) Run(ctx context.Context) error {
	for {
		fn, err := l.tasks.GetWithContext(ctx)
		if err != nil {
			return err
		}
		if fn == nil {
			return nil
		}
		fn()
	}
}

// Close stops the loop after all previously posted callbacks have run.
// Subsequent posts fail with ErrClosed.
func (l *Loop) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return
	}
	l.closed = true
	l.tasks.Put(nil)
}
