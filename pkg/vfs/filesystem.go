// Package vfs provides a transactional file system for LibrePCB documents.
//
// A [FileSystem] combines committed storage (a directory on disk, a zip
// archive or nothing at all) with a staged overlay of pending writes and
// removals. Reads see the overlay first. Nothing reaches the committed storage
// until [FileSystem.Save], which applies the whole overlay atomically:
// afterwards either every staged change has landed or none has.
//
// Disk instances additionally support crash recovery. Before a save, the
// overlay is written to a backup diff in ".backup/"; an interrupted save is
// rolled forward the next time the directory is opened. [FileSystem.Autosave]
// writes the overlay to ".autosave/" so unsaved work survives a crash.
//
// All paths are relative, slash separated and cleaned with [CleanPath]. Paths
// escaping the root fail with [ErrBreakout].
//
// A FileSystem is safe for concurrent use, but the order of concurrent
// mutations is up to the caller.
package vfs

import (
	"bytes"
	"errors"
	"maps"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/natefinch/atomic"
	"github.com/sirupsen/logrus"

	"github.com/calvinalkan/lpdoc/pkg/dirlock"
)

// ReadOnly is the read capability of a file system.
type ReadOnly interface {
	// AbsPath returns the storage path of rel without any I/O. It returns ""
	// for paths escaping the root.
	AbsPath(rel string) string

	// Dirs returns the sorted names of the directories directly below rel.
	Dirs(rel string) []string

	// Files returns the sorted names of the files directly below rel.
	Files(rel string) []string

	// Exists reports whether rel is a file.
	Exists(rel string) bool

	// Read returns the content of rel or an error wrapping [ErrNotFound].
	Read(rel string) ([]byte, error)

	// ReadIfExists is like Read but returns nil, nil for missing files.
	ReadIfExists(rel string) ([]byte, error)

	IsWritable() bool
	IsRestoredFromAutosave() bool
}

// ReadWrite is the full capability of a writable file system. Mutations fail
// with [ErrReadOnly] on read-only instances.
type ReadWrite interface {
	ReadOnly

	Write(rel string, data []byte) error
	RemoveFile(rel string) error
	RemoveDirRecursively(rel string) error
	RenameFile(from, to string) error
	Save() error
	Autosave() error
	ExportZip(path string, filter Filter) error
}

var (
	_ ReadWrite = (*FileSystem)(nil)
	_ ReadOnly  = readOnlyView{}
)

// FileSystem is a staged overlay over committed storage. Create one with
// [OpenDir], [OpenZip] or [NewMemory].
type FileSystem struct {
	mu sync.Mutex

	store store
	root  string

	// diffs holds backup and autosave diffs. nil for in-memory instances.
	diffs *diskStore
	// sidecar is set when diffs live in a directory of their own next to an
	// archive.
	sidecar bool
	lock    *dirlock.Lock

	log                  logrus.FieldLogger
	now                  func() time.Time
	writable             bool
	restoredFromAutosave bool

	modified     map[string][]byte
	removedFiles map[string]struct{}
	// removedDirs entries end with "/"; "" is the root.
	removedDirs map[string]struct{}
}

func newFileSystem(s store, root string, writable bool, log logrus.FieldLogger) *FileSystem {
	f := &FileSystem{
		store:    s,
		root:     root,
		log:      log,
		now:      time.Now,
		writable: writable,
	}
	f.discardLocked()

	return f
}

// Path returns the directory or archive path, or "" for in-memory instances.
func (f *FileSystem) Path() string { return f.root }

// IsWritable reports whether mutations are allowed.
func (f *FileSystem) IsWritable() bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.writable
}

// IsRestoredFromAutosave reports whether the overlay was restored from an
// autosave when the file system was opened. Saving resets it.
func (f *FileSystem) IsRestoredFromAutosave() bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.restoredFromAutosave
}

// View returns a read-only view. Type assertions on the view cannot recover
// write access.
func (f *FileSystem) View() ReadOnly { return readOnlyView{fs: f} }

func (f *FileSystem) AbsPath(rel string) string {
	p := CleanPath(rel)
	if IsBreakout(p) {
		return ""
	}

	return f.store.absPath(p)
}

func (f *FileSystem) Dirs(rel string) []string {
	dirs, _ := f.entries(rel)

	return dirs
}

func (f *FileSystem) Files(rel string) []string {
	_, files := f.entries(rel)

	return files
}

func (f *FileSystem) entries(rel string) ([]string, []string) {
	p := CleanPath(rel)
	if IsBreakout(p) {
		return []string{}, []string{}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	prefix := dirPrefix(p)
	dirSet := make(map[string]struct{})
	fileSet := make(map[string]struct{})

	committedDirs, committedFiles := f.store.list(p)

	for _, name := range committedDirs {
		if !f.isRemovedLocked(prefix + name + "/") {
			dirSet[name] = struct{}{}
		}
	}

	for _, name := range committedFiles {
		if !f.isRemovedLocked(prefix + name) {
			fileSet[name] = struct{}{}
		}
	}

	for path := range f.modified {
		rest, ok := strings.CutPrefix(path, prefix)
		if !ok {
			continue
		}

		if name, _, deeper := strings.Cut(rest, "/"); deeper {
			dirSet[name] = struct{}{}
		} else {
			fileSet[name] = struct{}{}
		}
	}

	return slices.Sorted(maps.Keys(dirSet)), slices.Sorted(maps.Keys(fileSet))
}

func (f *FileSystem) Exists(rel string) bool {
	p := CleanPath(rel)
	if p == "" || IsBreakout(p) {
		return false
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	return f.existsLocked(p)
}

func (f *FileSystem) existsLocked(p string) bool {
	if _, ok := f.modified[p]; ok {
		return true
	}

	return !f.isRemovedLocked(p) && f.store.isFile(p)
}

func (f *FileSystem) Read(rel string) ([]byte, error) {
	data, err := f.ReadIfExists(rel)
	if err != nil {
		return nil, err
	}

	if data == nil {
		return nil, pathErr("read", CleanPath(rel), ErrNotFound)
	}

	return data, nil
}

func (f *FileSystem) ReadIfExists(rel string) ([]byte, error) {
	p := CleanPath(rel)
	if IsBreakout(p) {
		return nil, pathErr("read", rel, ErrBreakout)
	}

	if p == "" {
		return nil, nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if data, ok := f.modified[p]; ok {
		return cloneBytes(data), nil
	}

	if f.isRemovedLocked(p) || !f.store.isFile(p) {
		return nil, nil
	}

	data, err := f.store.readFile(p)
	if err != nil {
		return nil, ioErr("read", p, err)
	}

	if data == nil {
		data = []byte{}
	}

	return data, nil
}

// Write stages data for rel. A pending removal of rel is undone.
func (f *FileSystem) Write(rel string, data []byte) error {
	p, err := f.mutablePath("write", rel)
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.writable {
		return pathErr("write", p, ErrReadOnly)
	}

	f.modified[p] = cloneBytes(data)
	delete(f.removedFiles, p)

	return nil
}

// RemoveFile stages the removal of rel.
func (f *FileSystem) RemoveFile(rel string) error {
	p, err := f.mutablePath("remove", rel)
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.writable {
		return pathErr("remove", p, ErrReadOnly)
	}

	if !f.existsLocked(p) {
		return pathErr("remove", p, ErrNotFound)
	}

	delete(f.modified, p)
	f.removedFiles[p] = struct{}{}

	return nil
}

// RemoveDirRecursively stages the removal of everything below rel. "" removes
// the whole content of the file system. Files written afterwards below rel
// are visible again.
func (f *FileSystem) RemoveDirRecursively(rel string) error {
	p := CleanPath(rel)

	if !f.IsWritable() {
		return pathErr("remove dir", rel, ErrReadOnly)
	}

	if IsBreakout(p) {
		return pathErr("remove dir", rel, ErrBreakout)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.writable {
		return pathErr("remove dir", p, ErrReadOnly)
	}

	prefix := dirPrefix(p)

	for path := range f.modified {
		if strings.HasPrefix(path, prefix) {
			delete(f.modified, path)
		}
	}

	for path := range f.removedFiles {
		if strings.HasPrefix(path, prefix) {
			delete(f.removedFiles, path)
		}
	}

	for path := range f.removedDirs {
		if strings.HasPrefix(path, prefix) {
			delete(f.removedDirs, path)
		}
	}

	f.removedDirs[prefix] = struct{}{}

	return nil
}

// RenameFile moves a file within the overlay.
func (f *FileSystem) RenameFile(from, to string) error {
	if _, err := f.mutablePath("rename", from); err != nil {
		return err
	}

	if _, err := f.mutablePath("rename", to); err != nil {
		return err
	}

	data, err := f.Read(from)
	if err != nil {
		return err
	}

	err = f.Write(to, data)
	if err != nil {
		return err
	}

	return f.RemoveFile(from)
}

// mutablePath validates rel for a mutation. Read-only instances reject every
// mutation with [ErrReadOnly], whatever the path.
func (f *FileSystem) mutablePath(op, rel string) (string, error) {
	p := CleanPath(rel)

	switch {
	case !f.IsWritable():
		return "", pathErr(op, rel, ErrReadOnly)
	case IsBreakout(p):
		return "", pathErr(op, rel, ErrBreakout)
	case p == "":
		return "", pathErr(op, rel, ErrNotFound)
	default:
		return p, nil
	}
}

// DiscardChanges drops the staged overlay.
func (f *FileSystem) DiscardChanges() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.discardLocked()
}

func (f *FileSystem) discardLocked() {
	f.modified = make(map[string][]byte)
	f.removedFiles = make(map[string]struct{})
	f.removedDirs = make(map[string]struct{})
}

func (f *FileSystem) isRemovedLocked(path string) bool {
	if _, ok := f.removedFiles[path]; ok {
		return true
	}

	for dir := range f.removedDirs {
		if strings.HasPrefix(path, dir) {
			return true
		}
	}

	return false
}

// CheckForModifications returns the staged changes that differ from the
// committed state: removed directories and files that still exist, and
// written files that are new or have different content. Removed directories
// end with "/".
func (f *FileSystem) CheckForModifications() ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []string

	for dir := range f.removedDirs {
		if f.store.isDir(strings.TrimSuffix(dir, "/")) {
			out = append(out, dir)
		}
	}

	for path := range f.removedFiles {
		if f.store.isFile(path) {
			out = append(out, path)
		}
	}

	for path, data := range f.modified {
		if !f.store.isFile(path) {
			out = append(out, path)

			continue
		}

		committed, err := f.store.readFile(path)
		if err != nil {
			return nil, ioErr("read", path, err)
		}

		if !bytes.Equal(committed, data) {
			out = append(out, path)
		}
	}

	slices.Sort(out)

	return out, nil
}

func (f *FileSystem) changesLocked() *changeset {
	return &changeset{
		modified:     f.modified,
		removedFiles: slices.Sorted(maps.Keys(f.removedFiles)),
		removedDirs:  slices.Sorted(maps.Keys(f.removedDirs)),
	}
}

// Save commits the staged overlay. On failure the error wraps [ErrIO] and the
// committed state and the overlay are unchanged.
func (f *FileSystem) Save() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.saveLocked()
}

func (f *FileSystem) saveLocked() error {
	if !f.writable {
		return pathErr("save", f.root, ErrReadOnly)
	}

	log := f.log.WithField("action", "save")
	changes := f.changesLocked()

	_, onDisk := f.store.(*diskStore)
	if onDisk {
		err := f.saveDiffLocked(kindBackup)
		if err != nil {
			return ioErr("save", f.root, err)
		}
	}

	err := f.store.commit(changes)
	if err != nil {
		if onDisk && !errors.Is(err, errRollback) {
			// Nothing changed on disk, the backup must not be rolled forward.
			if rmErr := f.removeDiffLocked(kindBackup); rmErr != nil {
				log.WithError(rmErr).Warn("failed to remove backup after failed save")
			}
		}

		log.WithError(err).Error("save failed")

		return ioErr("save", f.root, err)
	}

	f.restoredFromAutosave = false

	if f.diffs != nil {
		err = f.removeDiffLocked(kindAutosave)
		if err != nil {
			log.WithError(err).Warn("failed to remove autosave")
		}
	}

	if onDisk {
		err = f.removeDiffLocked(kindBackup)
		if err != nil {
			return ioErr("save", f.root, err)
		}
	}

	log.WithFields(logrus.Fields{
		"modified": len(changes.modified),
		"removed":  len(changes.removedFiles) + len(changes.removedDirs),
	}).Debug("saved")

	f.discardLocked()

	return nil
}

// Autosave writes the staged overlay to the autosave diff without touching
// the committed state.
func (f *FileSystem) Autosave() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.writable {
		return pathErr("autosave", f.root, ErrReadOnly)
	}

	if f.diffs == nil {
		return pathErr("autosave", f.root, ErrNoPersistentStorage)
	}

	err := f.saveDiffLocked(kindAutosave)
	if err != nil {
		return ioErr("autosave", f.root, err)
	}

	return nil
}

// ExportZip writes the committed state to a zip archive at path. Hidden
// directories, the lock file and the archive itself are skipped. The archive
// is replaced atomically; no partial file is left on failure.
func (f *FileSystem) ExportZip(path string, filter Filter) error {
	skip := f.relativeTo(path)

	data, err := f.exportZip(func(rel string) bool {
		return rel != skip && (filter == nil || filter(rel))
	})
	if err != nil {
		return err
	}

	err = atomic.WriteFile(path, bytes.NewReader(data))
	if err != nil {
		return ioErr("export", path, err)
	}

	f.log.WithFields(logrus.Fields{"action": "export", "path": path, "bytes": len(data)}).Debug("exported zip")

	return nil
}

// relativeTo returns the path of an OS path inside a disk instance, or "".
func (f *FileSystem) relativeTo(path string) string {
	if _, ok := f.store.(*diskStore); !ok {
		return ""
	}

	root, err := filepath.Abs(f.root)
	if err != nil {
		return ""
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return ""
	}

	rel, err := filepath.Rel(root, abs)
	if err != nil || IsBreakout(filepath.ToSlash(rel)) {
		return ""
	}

	return filepath.ToSlash(rel)
}

// ExportZipBytes is like [FileSystem.ExportZip] but returns the archive.
func (f *FileSystem) ExportZipBytes(filter Filter) ([]byte, error) {
	return f.exportZip(filter)
}

func (f *FileSystem) exportZip(filter Filter) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	files := make(map[string][]byte)

	for _, rel := range walkFiles(f.store, "", isHidden) {
		if filter != nil && !filter(rel) {
			continue
		}

		data, err := f.store.readFile(rel)
		if err != nil {
			return nil, ioErr("export", rel, err)
		}

		files[rel] = data
	}

	data, err := encodeZip(files, nil)
	if err != nil {
		return nil, ioErr("export", f.root, err)
	}

	return data, nil
}

// LoadZip stages every file of a zip archive.
func (f *FileSystem) LoadZip(data []byte) error {
	files, err := decodeZip(data)
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.writable {
		return pathErr("load zip", f.root, ErrReadOnly)
	}

	for rel, content := range files {
		f.modified[rel] = content
		delete(f.removedFiles, rel)
	}

	return nil
}

// ReleaseLock releases the directory lock. The file system is read-only
// afterwards. Calling it again does nothing.
func (f *FileSystem) ReleaseLock() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.releaseLockLocked()
}

func (f *FileSystem) releaseLockLocked() error {
	if f.lock == nil {
		return nil
	}

	f.writable = false
	lock := f.lock
	f.lock = nil

	err := lock.Unlock()

	if f.sidecar && f.diffs != nil {
		// Fails while diffs remain, which keeps them.
		_ = f.diffs.remove("")
	}

	return err
}

// Close removes the autosave of a writable instance, unless the content was
// restored from it and not saved since, and releases the directory lock.
// Staged changes are dropped.
func (f *FileSystem) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	var errs []error

	if f.writable && f.diffs != nil && !f.restoredFromAutosave {
		errs = append(errs, f.removeDiffLocked(kindAutosave))
	}

	errs = append(errs, f.releaseLockLocked())
	f.writable = false
	f.discardLocked()

	return errors.Join(errs...)
}

// cloneBytes copies b and never returns nil, since nil means "missing" to
// ReadIfExists callers.
func cloneBytes(b []byte) []byte {
	return append([]byte{}, b...)
}

type readOnlyView struct {
	fs *FileSystem
}

func (v readOnlyView) AbsPath(rel string) string { return v.fs.AbsPath(rel) }

func (v readOnlyView) Dirs(rel string) []string { return v.fs.Dirs(rel) }

func (v readOnlyView) Files(rel string) []string { return v.fs.Files(rel) }

func (v readOnlyView) Exists(rel string) bool { return v.fs.Exists(rel) }

func (v readOnlyView) Read(rel string) ([]byte, error) { return v.fs.Read(rel) }

func (v readOnlyView) ReadIfExists(rel string) ([]byte, error) { return v.fs.ReadIfExists(rel) }

func (v readOnlyView) IsWritable() bool { return false }

func (v readOnlyView) IsRestoredFromAutosave() bool { return v.fs.IsRestoredFromAutosave() }
