// Package dispatch provides a thread-safe task queue drained by a single
// owning goroutine. Worker goroutines post closures; the owner runs them in
// posting order, so state touched only from posted tasks needs no locking.
package dispatch

import "context"

// Queue is a FIFO of pending tasks. Post may be called from any goroutine;
// Run must be called from exactly one.
type Queue struct {
	tasks chan func()
}

// New returns a queue buffering up to size pending tasks.
func New(size int) *Queue {
	return &Queue{tasks: make(chan func(), size)}
}

// Post enqueues fn for execution on the owning goroutine. It blocks only when
// the buffer is full.
func (q *Queue) Post(fn func()) {
	q.tasks <- fn
}

// Run executes posted tasks until ctx is cancelled.
func (q *Queue) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case fn := <-q.tasks:
			fn()
		}
	}
}

// Drain runs all currently queued tasks and returns. Intended for tests and
// synchronous harnesses.
func (q *Queue) Drain() {
	for {
		select {
		case fn := <-q.tasks:
			fn()
		default:
			return
		}
	}
}
