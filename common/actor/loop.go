// Package actor implements a single-consumer task loop: each of the
// data-plane handle, the node agent, the orchestrator, and the controller
// owns one goroutine that serializes every request it receives through a
// buffered queue of fixed capacity (NewLoop's bufferSize), so no shared
// mutable state ever spans components. The queue is not unbounded: once it
// is full, submitting blocks the caller until the loop takes a task. It
// collapses a channel-per-topic broadcast queue into a single ordered
// mailbox per component, since cross-component calls here are
// point-to-point, never broadcast.
package actor

import (
	"context"
	"sync"
)

// Logger is the minimal logging interface this package depends on.
type Logger interface {
	Warn(msg string, keysAndValues ...interface{})
	Info(msg string, keysAndValues ...interface{})
}

// Loop is a single-consumer task queue. All state belonging to the owning
// component must only be touched from inside tasks submitted to the Loop;
// that is what makes the component single-threaded from its own
// perspective even though sub-tasks (transport calls, runtime calls) may
// run concurrently in their own goroutines and report back via a task.
type Loop struct {
	tasks  chan func()
	log    Logger
	name   string
	once   sync.Once
	closed chan struct{}
}

// NewLoop creates a Loop with an unbounded-in-practice buffered mailbox.
// Once bufferSize is exceeded, Submit blocks the caller rather than
// silently dropping a request: a dropped Start/Stop/Patch would break a
// control-plane durability expectation a fire-and-forget queue can't afford.
func NewLoop(name string, bufferSize int, log Logger) *Loop {
	return &Loop{
		tasks:  make(chan func(), bufferSize),
		log:    log,
		name:   name,
		closed: make(chan struct{}),
	}
}

// Run drains the mailbox until ctx is cancelled or Close is called. Callers
// start it with `go l.Run(ctx)` once, at component construction time.
func (l *Loop) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-l.closed:
			return
		case task, ok := <-l.tasks:
			if !ok {
				return
			}
			task()
		}
	}
}

// Submit enqueues a fire-and-forget task (cast semantics): the caller does
// not wait for it to run.
func (l *Loop) Submit(task func()) {
	select {
	case l.tasks <- task:
	case <-l.closed:
		l.log.Warn("submit to closed actor loop dropped", "loop", l.name)
	}
}

// Do enqueues a task and blocks until it has run (call semantics): the
// suspension point described in §5 — the calling goroutine does not
// proceed until the owning loop has serialized and executed this request.
func (l *Loop) Do(ctx context.Context, task func()) bool {
	done := make(chan struct{})
	wrapped := func() {
		defer close(done)
		task()
	}
	select {
	case l.tasks <- wrapped:
	case <-l.closed:
		return false
	case <-ctx.Done():
		return false
	}
	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	case <-l.closed:
		return false
	}
}

// Close stops the loop from accepting further work. Already-queued tasks
// already handed to Run may still complete; pending Do/Submit callers are
// unblocked.
func (l *Loop) Close() {
	l.once.Do(func() { close(l.closed) })
}
