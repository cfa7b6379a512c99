package pool

import "errors"

var (
	// ErrNotOpen is returned when work is submitted while no store is open.
	ErrNotOpen = errors.New("pool: no store open")
	// ErrClosed is returned when work is submitted to a store being closed.
	ErrClosed = errors.New("pool: store closed")
	// ErrContextDone is returned when a Context is used after its job
	// returned.
	ErrContextDone = errors.New("pool: context used after its job returned")
)
