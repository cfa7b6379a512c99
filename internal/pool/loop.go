package pool

import (
	"context"
	"sync"
)

// Loop is the foreground domain. Everything the pool hands back to the
// foreground, change-set merges and job completions, is posted here and
// runs one function at a time in post order.
type Loop struct {
	mu    sync.Mutex
	queue []func()
	wake  chan struct{}
	run   sync.Mutex
}

// NewLoop creates an idle loop.
func NewLoop() *Loop {
	return &Loop{wake: make(chan struct{}, 1)}
}

// Post schedules fn on the loop. It never blocks.
func (l *Loop) Post(fn func()) {
	l.mu.Lock()
	l.queue = append(l.queue, fn)
	l.mu.Unlock()
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Pending returns the number of functions waiting to run.
func (l *Loop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

// Drain runs posted functions on the calling goroutine until the queue is
// empty, and returns how many ran. Concurrent drains take turns.
func (l *Loop) Drain() int {
	l.run.Lock()
	defer l.run.Unlock()
	n := 0
	for {
		l.mu.Lock()
		if len(l.queue) == 0 {
			l.mu.Unlock()
			return n
		}
		fn := l.queue[0]
		l.queue[0] = nil
		l.queue = l.queue[1:]
		l.mu.Unlock()

		fn()
		n++
	}
}

// Run drains the loop whenever work is posted, until ctx is done.
func (l *Loop) Run(ctx context.Context) error {
	for {
		l.Drain()
		select {
		case <-l.wake:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
