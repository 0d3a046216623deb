// Package dispatch provides serial execution queues: the UI context that owns
// all screen state, and the single camera worker.
package dispatch

import (
	"errors"
	"fmt"
	"runtime/debug"
	"sync"

	dbg "github.com/cjeanneret/SnapGo/internal/debug"
)

// ErrStopped is returned when posting to a queue that was shut down.
var ErrStopped = errors.New("dispatch: queue stopped")

// Queue runs posted tasks one at a time, in order, on a single goroutine.
type Queue struct {
	name  string
	tasks chan func()
	done  chan struct{}

	mu      sync.RWMutex
	stopped bool
	once    sync.Once
}

// NewQueue starts a queue buffering up to size pending tasks.
func NewQueue(name string, size int) *Queue {
	if size <= 0 {
		size = 16
	}
	q := &Queue{
		name:  name,
		tasks: make(chan func(), size),
		done:  make(chan struct{}),
	}
	go q.loop()
	return q
}

// Name returns the queue name.
func (q *Queue) Name() string { return q.name }

func (q *Queue) loop() {
	defer close(q.done)
	for task := range q.tasks {
		q.run(task)
	}
	dbg.Verbose("Queue %s: drained", q.name)
}

func (q *Queue) run(task func()) {
	defer func() {
		if r := recover(); r != nil {
			dbg.Error(fmt.Errorf("queue %s: task panic: %v\n%s", q.name, r, debug.Stack()))
		}
	}()
	task()
}

// Post enqueues fn. It blocks while the buffer is full.
func (q *Queue) Post(fn func()) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.stopped {
		return ErrStopped
	}
	q.tasks <- fn
	return nil
}

// Do enqueues fn and waits until it has run.
// Calling Do from a task of the same queue deadlocks.
func (q *Queue) Do(fn func()) error {
	ran := make(chan struct{})
	if err := q.Post(func() {
		defer close(ran)
		fn()
	}); err != nil {
		return err
	}
	// Queued tasks always run, even across Shutdown, and ran is closed on panic.
	<-ran
	return nil
}

// Shutdown stops accepting tasks, runs what is already queued and waits for
// the worker goroutine to exit. Safe to call more than once.
func (q *Queue) Shutdown() {
	q.once.Do(func() {
		q.mu.Lock()
		q.stopped = true
		close(q.tasks)
		q.mu.Unlock()
		dbg.Verbose("Queue %s: shutting down", q.name)
	})
	<-q.done
}

// Stopped reports whether Shutdown was called.
func (q *Queue) Stopped() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.stopped
}
