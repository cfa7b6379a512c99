package pool

import (
	"context"
	"fmt"
	"sync"
)

// Worker names one background domain.
type Worker int

const (
	// General runs short jobs: activities, favorites, thumbnails.
	General Worker = iota
	// Video runs video list and detail refreshes.
	Video
	// LongRunning runs jobs that may take a while, such as the address
	// book import.
	LongRunning
)

var workerNames = [...]string{"general", "video", "long-running"}

func (w Worker) String() string {
	if w >= 0 && int(w) < len(workerNames) {
		return workerNames[w]
	}
	return fmt.Sprintf("worker(%d)", int(w))
}

func (w Worker) valid() bool {
	return w >= General && w <= LongRunning
}

type task struct {
	ctx    context.Context
	job    Job
	done   func(error)
	result chan error
}

// queue is an unbounded FIFO of tasks drained by one goroutine, so posting
// work never blocks the foreground.
type queue struct {
	mu     sync.Mutex
	tasks  []*task
	closed bool
	wake   chan struct{}
}

func newQueue() *queue {
	return &queue{wake: make(chan struct{}, 1)}
}

func (q *queue) push(t *task) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	q.tasks = append(q.tasks, t)
	q.mu.Unlock()
	q.signal()
	return nil
}

func (q *queue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.signal()
}

func (q *queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// drain runs tasks until the queue is closed and empty.
func (q *queue) drain(exec func(*task)) {
	for {
		q.mu.Lock()
		if len(q.tasks) == 0 {
			closed := q.closed
			q.mu.Unlock()
			if closed {
				return
			}
			<-q.wake
			continue
		}
		t := q.tasks[0]
		q.tasks[0] = nil
		q.tasks = q.tasks[1:]
		q.mu.Unlock()
		exec(t)
	}
}
