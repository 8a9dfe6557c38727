package vfs

import (
	"errors"
	"fmt"
)

// Sentinel errors for file set operations. Match them with errors.Is.
var (
	// ErrNotFound indicates an unknown filename.
	ErrNotFound = errors.New("file not found")

	// ErrDuplicateFilename indicates an insert collided with an existing filename.
	ErrDuplicateFilename = errors.New("duplicate filename")

	// ErrLastFile indicates a removal would leave the file set empty.
	ErrLastFile = errors.New("cannot remove the last file")

	// ErrInvariant indicates an inconsistent initial state.
	ErrInvariant = errors.New("invariant violation")
)

// Operation names used in Error.
const (
	OpCreate    = "create"
	OpGet       = "get"
	OpUpdate    = "update"
	OpSetActive = "set_active"
	OpAdd       = "add"
	OpRemove    = "remove"
)

// Error wraps a sentinel with the operation and filename that caused it.
type Error struct {
	Op       string
	Filename string
	Err      error
}

func (e *Error) Error() string {
	if e.Filename == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %q: %v", e.Op, e.Filename, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(op, filename string, err error) error {
	return &Error{Op: op, Filename: filename, Err: err}
}
