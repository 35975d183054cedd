package vfs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/calvinalkan/lpdoc/internal/logging"
	"github.com/calvinalkan/lpdoc/pkg/dirlock"
	"github.com/calvinalkan/lpdoc/pkg/fs"
)

// Options configure [OpenDir] and [OpenZip].
type Options struct {
	// Writable opens the file system for writing. Disk directories are
	// created if missing and locked.
	Writable bool

	// RestoreAutosave is asked whether an autosave found while opening a
	// writable instance should be restored. nil declines.
	RestoreAutosave func(path string) bool

	// LockOverride is asked whether a directory locked by someone else may be
	// taken over. nil declines, and opening fails with [dirlock.ErrLocked].
	LockOverride dirlock.OverrideFunc

	// Logger receives diagnostics. Defaults to a logger that discards
	// everything.
	Logger logrus.FieldLogger

	// FS is the OS file system used for the directory and diffs. Defaults to
	// [fs.NewReal].
	FS fs.FS
}

func (o Options) logger() logrus.FieldLogger {
	return logging.OrDiscard(o.Logger)
}

func (o Options) osFS() fs.FS {
	if o.FS != nil {
		return o.FS
	}

	return fs.NewReal()
}

// OpenDir opens a directory on disk.
//
// A read-only open requires an existing directory and fails with
// [ErrNotFound] otherwise. A writable open creates the directory, takes the
// directory lock and offers to restore an autosave. A backup diff left by an
// interrupted save is rolled forward in both modes; writable instances commit
// it right away.
func OpenDir(path string, opts Options) (*FileSystem, error) {
	fsys := opts.osFS()
	log := opts.logger().WithField("path", path)

	info, err := fsys.Stat(path)

	switch {
	case err == nil && !info.IsDir():
		return nil, pathErr("open", path, fmt.Errorf("%w: not a directory", ErrNotFound))
	case errors.Is(err, os.ErrNotExist) && !opts.Writable:
		return nil, pathErr("open", path, ErrNotFound)
	case err != nil && !errors.Is(err, os.ErrNotExist):
		return nil, ioErr("open", path, err)
	}

	if opts.Writable {
		err = fsys.MkdirAll(path, 0o755)
		if err != nil {
			return nil, ioErr("open", path, err)
		}
	}

	s := newDiskStore(fsys, path, log)
	f := newFileSystem(s, path, opts.Writable, log)
	f.diffs = s

	if opts.Writable {
		f.lock, err = lockDir(path, opts, log)
		if err != nil {
			return nil, pathErr("open", path, err)
		}
	}

	err = f.recover(opts, log)
	if err != nil {
		return nil, errors.Join(err, f.ReleaseLock())
	}

	return f, nil
}

// OpenZip opens a zip archive. The archive is loaded into memory. A writable
// instance rewrites the archive on save and keeps its lock and autosave in a
// hidden directory next to it: "dir/.board.lppz/". A missing archive is an
// error for read-only opens and an empty file system otherwise.
func OpenZip(path string, opts Options) (*FileSystem, error) {
	fsys := opts.osFS()
	log := opts.logger().WithField("path", path)

	var (
		lock *dirlock.Lock
		err  error
	)

	sidecar := sidecarDir(path)

	if opts.Writable {
		err = fsys.MkdirAll(sidecar, 0o755)
		if err != nil {
			return nil, ioErr("open", path, err)
		}

		lock, err = lockDir(sidecar, opts, log)
		if err != nil {
			_ = fsys.Remove(sidecar)

			return nil, pathErr("open", path, err)
		}
	}

	f, err := openZipLocked(path, sidecar, opts, fsys, log)
	if err != nil {
		if lock != nil {
			err = errors.Join(err, lock.Unlock())
			_ = fsys.Remove(sidecar)
		}

		return nil, err
	}

	f.lock = lock

	if opts.Writable {
		err = f.recover(opts, log)
		if err != nil {
			return nil, errors.Join(err, f.ReleaseLock())
		}
	}

	return f, nil
}

func openZipLocked(path, sidecar string, opts Options, fsys fs.FS, log logrus.FieldLogger) (*FileSystem, error) {
	files := map[string][]byte{}

	data, err := fsys.ReadFile(path)

	switch {
	case errors.Is(err, os.ErrNotExist) && !opts.Writable:
		return nil, pathErr("open", path, ErrNotFound)
	case err != nil && !errors.Is(err, os.ErrNotExist):
		return nil, ioErr("open", path, err)
	case err == nil:
		files, err = decodeZip(data)
		if err != nil {
			return nil, pathErr("open", path, err)
		}
	}

	s, err := newMemStore(files, path)
	if err != nil {
		return nil, ioErr("open", path, err)
	}

	f := newFileSystem(s, path, opts.Writable, log)

	if opts.Writable {
		f.diffs = newDiskStore(fsys, sidecar, log)
		f.sidecar = true
	}

	return f, nil
}

// sidecarDir is the hidden directory next to an archive holding its lock and
// diffs.
func sidecarDir(archive string) string {
	dir, base := filepath.Split(archive)

	return filepath.Join(dir, "."+base)
}

// lockDir takes the directory lock of dir for a writable instance.
func lockDir(dir string, opts Options, log logrus.FieldLogger) (*dirlock.Lock, error) {
	lock := dirlock.New(dir)

	status, err := lock.TryLock(opts.LockOverride)
	if err != nil {
		return nil, err
	}

	if status == dirlock.StaleLock {
		log.Warn("found stale lock, the previous session did not exit cleanly")
	} else if status.IsLocked() {
		log.WithField("status", status.String()).Warn("took over directory lock")
	}

	return lock, nil
}

// OpenZipBytes returns a read-only file system holding the content of a zip
// archive.
func OpenZipBytes(data []byte) (*FileSystem, error) {
	files, err := decodeZip(data)
	if err != nil {
		return nil, err
	}

	s, err := newMemStore(files, "")
	if err != nil {
		return nil, ioErr("open", "", err)
	}

	return newFileSystem(s, "", false, logging.Discard()), nil
}

// NewMemory returns an empty writable file system without backing storage.
// Save folds the overlay into memory; Autosave fails with
// [ErrNoPersistentStorage].
func NewMemory() *FileSystem {
	s, _ := newMemStore(nil, "")

	return newFileSystem(s, "", true, logging.Discard())
}

// recover rolls forward a pending backup and offers to restore an autosave.
func (f *FileSystem) recover(opts Options, log logrus.FieldLogger) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.hasDiffLocked(kindBackup) {
		err := f.loadDiffLocked(kindBackup)
		if err != nil {
			return fmt.Errorf("load backup: %w", err)
		}

		if f.writable {
			err = f.saveLocked()
			if err != nil {
				log.WithError(err).Warn("failed to roll forward interrupted save, changes stay staged")
			} else {
				log.Info("rolled forward interrupted save")
			}
		}
	}

	if !f.writable || !f.hasDiffLocked(kindAutosave) {
		return nil
	}

	if opts.RestoreAutosave == nil || !opts.RestoreAutosave(f.root) {
		log.Info("autosave found but not restored")

		return nil
	}

	err := f.loadDiffLocked(kindAutosave)
	if err != nil {
		return fmt.Errorf("load autosave: %w", err)
	}

	f.restoredFromAutosave = true

	log.Info("restored autosave")

	return nil
}
