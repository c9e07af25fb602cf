package store

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownContext    = errors.New("store: unknown execution context")
	ErrMissingCapability = errors.New("store: missing capability")
	ErrMissingID         = errors.New("store: record without id")
	// ErrReadOnly is returned by backends that may not write a collection.
	ErrReadOnly = errors.New("store: collection is read-only here")
)

// WriteError is returned when a mutation could not be made durable. The
// in-memory state is discarded when it happens; the next call reloads.
type WriteError struct {
	Op         string
	Collection string
	Err        error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("store: %s %s: durable write failed: %v", e.Op, e.Collection, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// IsWriteError reports whether err carries a *WriteError.
func IsWriteError(err error) bool {
	var we *WriteError
	return errors.As(err, &we)
}
