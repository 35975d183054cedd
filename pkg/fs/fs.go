// Package fs is the operating system filesystem seam used by the disk backend
// of the virtual file system.
//
// The main types are:
//   - [FS]: interface for the filesystem operations the disk backend needs
//   - [File]: interface for open files (satisfied by [os.File])
//   - [Real]: production implementation using the [os] package
//   - [Faulty]: testing implementation that fails selected operations
//   - [AtomicWriter]: write-temp-then-rename file replacement on top of an [FS]
//
// Example usage:
//
//	fsys := fs.NewReal()
//	w := fs.NewAtomicWriter(fsys)
//
//	err := w.WriteFile("project/board.lp", data, 0o644)
package fs

import (
	"io"
	"os"
)

// File is an open file handle.
//
// [os.File] satisfies it. Implementations must behave like [os.File]: Fd
// returns a real descriptor, Sync flushes to stable storage, and Write on a
// handle opened read-only returns an error.
type File interface {
	io.ReadWriteCloser

	// Fd returns the file descriptor. See [os.File.Fd].
	Fd() uintptr

	// Stat returns the [os.FileInfo] for this file. See [os.File.Stat].
	Stat() (os.FileInfo, error)

	// Sync commits the file's contents to disk. See [os.File.Sync].
	Sync() error

	// Chmod changes the mode of the file. See [os.File.Chmod].
	Chmod(mode os.FileMode) error
}

// FS is the set of filesystem operations used to read and commit documents.
//
// Paths use OS semantics like the [os] package, not the slash separated paths
// of [io/fs]. Methods mirror their [os] equivalents so that [Faulty] can stand
// in for [Real] in tests.
type FS interface {
	// Open opens a file or directory for reading. See [os.Open].
	Open(path string) (File, error)

	// OpenFile opens a file with the given flags and permissions. See [os.OpenFile].
	OpenFile(path string, flag int, perm os.FileMode) (File, error)

	// ReadFile reads a whole file. See [os.ReadFile].
	ReadFile(path string) ([]byte, error)

	// ReadDir returns the entries of a directory sorted by name. See [os.ReadDir].
	ReadDir(path string) ([]os.DirEntry, error)

	// MkdirAll creates a directory with all parents. See [os.MkdirAll].
	MkdirAll(path string, perm os.FileMode) error

	// Stat returns file info. See [os.Stat].
	Stat(path string) (os.FileInfo, error)

	// Exists reports whether path exists.
	// Returns (false, nil) if not found, (false, err) on other errors.
	Exists(path string) (bool, error)

	// Remove deletes a file or empty directory. See [os.Remove].
	Remove(path string) error

	// RemoveAll deletes path and its children. See [os.RemoveAll].
	// No error if path doesn't exist.
	RemoveAll(path string) error

	// Rename moves a file or directory. See [os.Rename].
	// Atomic on the same filesystem.
	Rename(oldpath, newpath string) error
}

var (
	_ FS = (*Real)(nil)
	_ FS = (*Faulty)(nil)
)
