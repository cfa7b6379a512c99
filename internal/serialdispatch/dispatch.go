// Package serialdispatch runs functions one at a time on a dedicated
// goroutine. The pool uses one Dispatcher per store so that every write
// transaction has a single writer.
package serialdispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrClosed is returned by Dispatch after Close.
var ErrClosed = errors.New("serialdispatch: closed")

type request struct {
	fn   func() error
	done chan error
}

// Dispatcher executes submitted functions in submission order.
type Dispatcher struct {
	reqs    chan request
	mu      sync.RWMutex
	closed  bool
	stopped chan struct{}
}

// New starts a dispatcher whose queue holds up to backlog waiting calls.
func New(backlog int) *Dispatcher {
	d := &Dispatcher{
		reqs:    make(chan request, backlog),
		stopped: make(chan struct{}),
	}
	go d.loop()
	return d
}

func (d *Dispatcher) loop() {
	defer close(d.stopped)
	for req := range d.reqs {
		req.done <- run(req.fn)
	}
}

func run(fn func() error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			if e, ok := p.(error); ok {
				err = fmt.Errorf("serialdispatch: panic: %w", e)
				return
			}
			err = fmt.Errorf("serialdispatch: panic: %v", p)
		}
	}()
	return fn()
}

// Dispatch runs fn on the dispatcher goroutine and waits for its result.
// If ctx ends while fn is still queued, Dispatch returns ctx.Err() and fn
// still runs later; fn should check ctx itself.
func (d *Dispatcher) Dispatch(ctx context.Context, fn func() error) error {
	req := request{fn: fn, done: make(chan error, 1)}

	d.mu.RLock()
	if d.closed {
		d.mu.RUnlock()
		return ErrClosed
	}
	select {
	case d.reqs <- req:
		d.mu.RUnlock()
	case <-ctx.Done():
		d.mu.RUnlock()
		return ctx.Err()
	}

	select {
	case err := <-req.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting work and waits for queued calls to finish.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.reqs)
	}
	d.mu.Unlock()
	<-d.stopped
}
