// Package queue serializes operations in FIFO order.
package queue

import (
	"context"
	"sync"
)

type op struct {
	run  func()
	done chan struct{}
}

// Queue runs submitted operations one at a time in submission order. The
// goroutine that finds the queue idle runs its own operation and then drains
// whatever was queued behind it.
type Queue struct {
	mu      sync.Mutex
	running bool
	pending []*op
}

// Do runs fn once all earlier operations have finished. If ctx ends while
// fn is still waiting, Do returns ctx.Err() but fn still runs in turn.
func (q *Queue) Do(ctx context.Context, fn func()) error {
	o := &op{run: fn, done: make(chan struct{})}

	q.mu.Lock()
	if q.running {
		q.pending = append(q.pending, o)
		q.mu.Unlock()
		select {
		case <-o.done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	q.running = true
	q.mu.Unlock()

	q.exec(o)
	for {
		q.mu.Lock()
		if len(q.pending) == 0 {
			q.running = false
			q.mu.Unlock()
			return nil
		}
		next := q.pending[0]
		q.pending = q.pending[1:]
		q.mu.Unlock()
		q.exec(next)
	}
}

func (q *Queue) exec(o *op) {
	defer close(o.done)
	o.run()
}

// Busy reports whether an operation is in flight.
func (q *Queue) Busy() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.running
}

// Pending returns the number of queued operations.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}
