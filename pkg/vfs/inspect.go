package vfs

import (
	"errors"
	"os"
	"time"

	"github.com/calvinalkan/lpdoc/internal/logging"
	"github.com/calvinalkan/lpdoc/pkg/dirlock"
	"github.com/calvinalkan/lpdoc/pkg/fs"
	"github.com/calvinalkan/lpdoc/pkg/sexpr"
)

// Pending describes the recovery data and lock of a document on disk.
type Pending struct {
	// Backup is set if a save was interrupted. The next open rolls it
	// forward.
	Backup bool

	// Autosave is set if autosave data exists.
	Autosave bool

	// AutosaveCreated is when the autosave was written. Zero if unknown.
	AutosaveCreated time.Time

	// AutosaveEntries counts modified files, removed files and removed
	// directories in the autosave.
	AutosaveEntries int

	// Lock is the lock of the directory, or of the hidden directory next to a
	// zip archive.
	Lock  dirlock.Status
	Owner dirlock.Owner
}

// Inspect reports pending recovery data of the directory or zip archive at
// path without opening it. osfs may be nil.
func Inspect(path string, osfs fs.FS) (Pending, error) {
	if osfs == nil {
		osfs = fs.NewReal()
	}

	info, err := osfs.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return Pending{}, pathErr("inspect", path, ErrNotFound)
	}

	if err != nil {
		return Pending{}, ioErr("inspect", path, err)
	}

	var p Pending

	root := path

	if !info.IsDir() {
		root = sidecarDir(path)
	}

	p.Lock, p.Owner, err = dirlock.New(root).Status()
	if err != nil {
		return Pending{}, ioErr("inspect", path, err)
	}

	d := newDiskStore(osfs, root, logging.Discard())
	p.Backup = d.isFile(diffIndex(kindBackup))

	if !d.isFile(diffIndex(kindAutosave)) {
		return p, nil
	}

	p.Autosave = true

	data, err := d.readFile(diffIndex(kindAutosave))
	if err != nil {
		return Pending{}, ioErr("inspect", d.abs(diffIndex(kindAutosave)), err)
	}

	index, err := sexpr.Parse(data, d.abs(diffIndex(kindAutosave)))
	if err != nil {
		return Pending{}, pathErr("inspect", d.abs(diffIndex(kindAutosave)), err)
	}

	if created := index.TryChild("created/@0"); created != nil {
		p.AutosaveCreated, _ = time.Parse(time.RFC3339, created.Value())
	}

	for _, name := range []string{"modified_file", "removed_file", "removed_directory"} {
		p.AutosaveEntries += len(index.ChildrenNamed(name))
	}

	return p, nil
}
