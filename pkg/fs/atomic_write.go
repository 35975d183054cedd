package fs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
)

// ErrDirSync indicates the parent directory could not be synced after the
// rename. The new content is in place but may not survive a power loss.
var ErrDirSync = errors.New("dir sync")

// AtomicWriter replaces files by writing a temp file next to the target,
// syncing it and renaming it over the target.
//
// Readers see either the old or the new content, never a mix. The temp file
// is removed if any step before the rename fails.
type AtomicWriter struct {
	fs      FS
	syncDir bool
}

// NewAtomicWriter returns a writer that syncs the parent directory after each
// rename. Panics if fs is nil.
func NewAtomicWriter(fs FS) *AtomicWriter {
	if fs == nil {
		panic("fs is nil")
	}

	return &AtomicWriter{fs: fs, syncDir: true}
}

// WithoutDirSync returns a copy of w that skips the directory sync. Use it
// when many files of the same directory are written and the caller syncs once
// at the end.
func (w *AtomicWriter) WithoutDirSync() *AtomicWriter {
	return &AtomicWriter{fs: w.fs, syncDir: false}
}

// WriteFile atomically replaces path with data. Missing parent directories are
// created. perm must be non-zero and is applied regardless of umask.
func (w *AtomicWriter) WriteFile(path string, data []byte, perm os.FileMode) error {
	if perm == 0 {
		return errors.New("perm must be non-zero")
	}

	dir, base := filepath.Split(path)
	if base == "" || base == "." {
		return fmt.Errorf("path is invalid: %q", path)
	}

	if dir == "" {
		dir = "."
	}

	dir = filepath.Clean(dir)

	err := w.fs.MkdirAll(dir, 0o755)
	if err != nil {
		return fmt.Errorf("create parent dir: %w", err)
	}

	tmp, tmpPath, err := w.createTemp(dir, base, perm)
	if err != nil {
		return err
	}

	cleanup := func() error {
		return errors.Join(closeFile(tmpPath, tmp), w.removeTemp(tmpPath))
	}

	err = tmp.Chmod(perm)
	if err != nil {
		return errors.Join(fmt.Errorf("chmod temp file %q: %w", tmpPath, err), cleanup())
	}

	_, err = tmp.Write(data)
	if err != nil {
		return errors.Join(fmt.Errorf("write temp file %q: %w", tmpPath, err), cleanup())
	}

	err = tmp.Sync()
	if err != nil {
		return errors.Join(fmt.Errorf("sync temp file %q: %w", tmpPath, err), cleanup())
	}

	err = closeFile(tmpPath, tmp)
	if err != nil {
		return errors.Join(err, w.removeTemp(tmpPath))
	}

	err = w.fs.Rename(tmpPath, path)
	if err != nil {
		return errors.Join(fmt.Errorf("rename: %w", err), w.removeTemp(tmpPath))
	}

	if w.syncDir {
		return SyncDir(w.fs, dir)
	}

	return nil
}

var tempCounter atomic.Uint64

const maxTempAttempts = 10000

func (w *AtomicWriter) createTemp(dir, base string, perm os.FileMode) (File, string, error) {
	for range maxTempAttempts {
		path := filepath.Join(dir, fmt.Sprintf(".%s.tmp-%d", base, tempCounter.Add(1)))

		file, err := w.fs.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
		if err == nil {
			return file, path, nil
		}

		if errors.Is(err, os.ErrExist) {
			continue
		}

		return nil, "", fmt.Errorf("create temp file: %w", err)
	}

	return nil, "", fmt.Errorf("exhausted temp file attempts in %q", dir)
}

func (w *AtomicWriter) removeTemp(path string) error {
	err := w.fs.Remove(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove temp file %q: %w", path, err)
	}

	return nil
}

// SyncDir fsyncs a directory so that renames and removals inside it are
// durable. Errors satisfy errors.Is(err, [ErrDirSync]).
func SyncDir(fs FS, dir string) error {
	d, err := fs.Open(dir)
	if err != nil {
		return errors.Join(ErrDirSync, fmt.Errorf("open dir %q: %w", dir, err))
	}

	syncErr := d.Sync()
	closeErr := closeFile(dir, d)

	if syncErr != nil {
		return errors.Join(ErrDirSync, fmt.Errorf("%q: %w", dir, syncErr), closeErr)
	}

	return closeErr
}

func closeFile(path string, f File) error {
	err := f.Close()
	if err != nil {
		return fmt.Errorf("close %q: %w", path, err)
	}

	return nil
}
