package commands

import "sync"

// Queue is a FIFO command queue with drain-point consumption semantics:
// producers may Enqueue at any time, but the scheduler only calls Drain at
// the boundary between layers, so a command submitted mid-layer is visible
// but not acted upon until the next boundary (spec §4.2, §4.4 "deferred
// decision pattern" companion on the inbound side).
type Queue struct {
	mu      sync.Mutex
	pending []Command
}

// NewQueue constructs an empty command queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Enqueue validates and appends a command, returning the validation error
// (if any) without modifying the queue.
func (q *Queue) Enqueue(c Command) error {
	if err := c.Validate(); err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = append(q.pending, c)
	return nil
}

// Drain removes and returns every command enqueued since the last Drain, in
// FIFO order. Called only at layer boundaries by the scheduler.
func (q *Queue) Drain() []Command {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return nil
	}
	out := q.pending
	q.pending = nil
	return out
}

// Len reports the number of commands currently pending, for diagnostics.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}
