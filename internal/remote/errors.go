package remote

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrUnauthorized matches errors caused by a rejected token.
	ErrUnauthorized = errors.New("remote: unauthorized")
	// ErrNotFound matches errors caused by a missing server object.
	ErrNotFound = errors.New("remote: not found")
)

// Error is a failed remote call.
type Error struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("remote %s: status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("remote %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	}
	return false
}
