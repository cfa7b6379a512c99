package store

import (
	"errors"
	"fmt"
)

var (
	// ErrPersistence matches every PersistenceError via errors.Is.
	ErrPersistence = errors.New("persistence i/o failure")
	// ErrTxDone is returned when a Tx is used after its transaction finished.
	ErrTxDone = errors.New("store: transaction already finished")
	// ErrNotFound is returned by single-row lookups.
	ErrNotFound = errors.New("store: not found")
)

// PersistenceError reports that the store file could not be opened,
// migrated, committed or closed. The operation failed but a fresh store can
// be opened again.
type PersistenceError struct {
	Op   string
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("store %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("store %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }
