package persistence

import (
	"sync"

	"github.com/jittakal/replayintake/internal/errors"
)

// Queue executes submitted tasks one at a time in submission order on a
// single goroutine. Every operation touching a queue directory runs on that
// directory's Queue, so writes, rotations, reads and deletions never overlap.
type Queue struct {
	tasks  chan func()
	done   chan struct{}
	mu     sync.RWMutex
	closed bool
}

// NewQueue starts a queue with room for capacity pending tasks.
func NewQueue(capacity int) *Queue {
	q := &Queue{
		tasks: make(chan func(), capacity),
		done:  make(chan struct{}),
	}
	go q.run()
	return q
}

func (q *Queue) run() {
	defer close(q.done)
	for task := range q.tasks {
		task()
	}
}

// Async schedules task without waiting for it.
func (q *Queue) Async(task func()) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return errors.ErrQueueClosed
	}
	q.tasks <- task
	return nil
}

// Sync schedules task and waits until it has run. Must not be called from
// within a task running on the same queue.
func (q *Queue) Sync(task func()) error {
	finished := make(chan struct{})
	if err := q.Async(func() {
		defer close(finished)
		task()
	}); err != nil {
		return err
	}
	<-finished
	return nil
}

// Close stops accepting tasks, runs the pending ones and waits for them.
func (q *Queue) Close() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.tasks)
	}
	q.mu.Unlock()
	<-q.done
}
