package vfs

import (
	"errors"
	"fmt"
)

// Errors returned by [FileSystem]. Use [errors.Is] to check.
var (
	// ErrNotFound means the path does not exist in the staged or committed
	// state.
	ErrNotFound = errors.New("file not found")

	// ErrReadOnly means a mutation was attempted on a read-only instance.
	ErrReadOnly = errors.New("file system is read-only")

	// ErrIO wraps failures of the backing storage during save, autosave and
	// export. The committed state is unchanged when it is returned.
	ErrIO = errors.New("i/o error")

	// ErrBreakout means a relative path escapes the file system root.
	ErrBreakout = errors.New("path escapes file system root")

	// ErrNoPersistentStorage is returned by [FileSystem.Autosave] for
	// instances without a backing store.
	ErrNoPersistentStorage = errors.New("file system has no persistent storage")
)

// PathError records an error and the operation and relative path that caused
// it.
type PathError struct {
	Op   string
	Path string
	Err  error
}

func (e *PathError) Error() string {
	if e.Path == "" {
		return e.Op + ": " + e.Err.Error()
	}

	return fmt.Sprintf("%s %q: %v", e.Op, e.Path, e.Err)
}

func (e *PathError) Unwrap() error { return e.Err }

func pathErr(op, path string, err error) error {
	return &PathError{Op: op, Path: path, Err: err}
}

// ioErr wraps a backend failure so callers can match both [ErrIO] and the
// underlying cause.
func ioErr(op, path string, err error) error {
	return &PathError{Op: op, Path: path, Err: fmt.Errorf("%w: %w", ErrIO, err)}
}
