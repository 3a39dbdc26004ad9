package store

import "errors"

var (
	// ErrStoreUnavailable means no backend connection has been established.
	ErrStoreUnavailable = errors.New("database not connected")

	// ErrNotFound means the chat does not exist or belongs to another user.
	// The two cases are deliberately indistinguishable.
	ErrNotFound = errors.New("chat not found")

	// ErrStoreClosed is returned by Connect when the store was closed
	// while the backend was still connecting.
	ErrStoreClosed = errors.New("store closed")
)

// ValidationError reports a missing or malformed required field.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }
