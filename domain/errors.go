package domain

import "errors"

var (
	// ErrInvalidArgument marks malformed input such as an unknown status or an empty title.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrNotFound is returned both for missing tasks and for tasks owned by someone else.
	ErrNotFound = errors.New("task not found")
	// ErrConflict indicates that the underlying storage rejected a write because the row
	// changed after it was read.
	ErrConflict = errors.New("concurrency conflict")
	// ErrTransient covers network, timeout and server failures during a call.
	ErrTransient = errors.New("transient failure")
	// ErrUnauthenticated is returned when the caller identity could not be established.
	ErrUnauthenticated = errors.New("unauthenticated")
)

// IsRetryable reports whether re-issuing the same call may succeed.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransient) || errors.Is(err, ErrConflict)
}
