// Package txdir provides views on a sub directory of a [vfs.FileSystem].
//
// A [Dir] is a writable view: every path is translated to the file system
// root by prefixing the view's path, so a library element or a project can be
// loaded, upgraded and saved without knowing where it lives. A [View] exposes
// only the read operations.
//
// Views are cheap values. Several views may share one file system; changes
// made through any of them are visible to all, and committed by a single
// save of the file system.
package txdir

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/calvinalkan/lpdoc/pkg/vfs"
)

var (
	// ErrMoveCleanup is returned by [Dir.MoveTo] when the content was copied
	// to the destination but the source could not be removed. The Dir is
	// rebound to the destination anyway.
	ErrMoveCleanup = errors.New("source not removed after move")

	// ErrOverlap is returned by [Dir.MoveTo] when source and destination
	// share a file system and one contains the other.
	ErrOverlap = errors.New("source and destination overlap")
)

// Dir is a writable view on path within a file system. Writes fail with
// [vfs.ErrReadOnly] if the file system is read-only.
type Dir struct {
	fs   vfs.ReadWrite
	path string
}

// New returns a view on path within fsys. Trailing slashes are removed.
func New(fsys vfs.ReadWrite, path string) *Dir {
	return &Dir{fs: fsys, path: vfs.CleanPath(path)}
}

// NewBlank returns a view on the root of a new, empty in-memory file system.
func NewBlank() *Dir {
	return New(vfs.NewMemory(), "")
}

// Sub returns a view on subpath below d, sharing d's file system.
func (d *Dir) Sub(subpath string) *Dir {
	return &Dir{fs: d.fs, path: vfs.Join(d.path, subpath)}
}

// View returns a read-only view on the same directory.
func (d *Dir) View() View {
	return NewView(d.fs, d.path)
}

// FileSystem returns the file system d points into.
func (d *Dir) FileSystem() vfs.ReadWrite { return d.fs }

// Path returns the path of d relative to the file system root.
func (d *Dir) Path() string { return d.path }

func (d *Dir) join(rel string) string { return vfs.Join(d.path, rel) }

func (d *Dir) AbsPath(rel string) string { return d.fs.AbsPath(d.join(rel)) }
func (d *Dir) Dirs(rel string) []string { return d.fs.Dirs(d.join(rel)) }
func (d *Dir) Files(rel string) []string { return d.fs.Files(d.join(rel)) }
func (d *Dir) Exists(rel string) bool { return d.fs.Exists(d.join(rel)) }
func (d *Dir) Read(rel string) ([]byte, error) { return d.fs.Read(d.join(rel)) }
func (d *Dir) IsWritable() bool { return d.fs.IsWritable() }
func (d *Dir) IsRestoredFromAutosave() bool { return d.fs.IsRestoredFromAutosave() }

func (d *Dir) ReadIfExists(rel string) ([]byte, error) {
	return d.fs.ReadIfExists(d.join(rel))
}

func (d *Dir) Write(rel string, data []byte) error {
	return d.fs.Write(d.join(rel), data)
}

func (d *Dir) RemoveFile(rel string) error {
	return d.fs.RemoveFile(d.join(rel))
}

// RemoveDirRecursively removes rel below d. "" removes the whole content of d.
func (d *Dir) RemoveDirRecursively(rel string) error {
	return d.fs.RemoveDirRecursively(d.join(rel))
}

func (d *Dir) RenameFile(from, to string) error {
	return d.fs.RenameFile(d.join(from), d.join(to))
}

// Save commits the whole file system, including changes made through other
// views.
func (d *Dir) Save() error {
	return d.fs.Save()
}

// CopyTo replaces the content of dest with the content of d. The source is
// read completely before dest is cleared, so copying a directory onto itself
// or into one of its own sub directories is safe. Nothing is saved.
func (d *Dir) CopyTo(dest *Dir) error {
	files, err := snapshot(d.fs, d.path)
	if err != nil {
		return fmt.Errorf("copy %q: %w", d.path, err)
	}

	err = dest.RemoveDirRecursively("")
	if err != nil {
		return fmt.Errorf("copy %q: clear destination: %w", d.path, err)
	}

	for _, rel := range slices.Sorted(maps.Keys(files)) {
		err = dest.Write(rel, files[rel])
		if err != nil {
			return fmt.Errorf("copy %q: %w", d.path, err)
		}
	}

	return nil
}

// SaveTo copies d to dest, rebinds d to dest and saves dest's file system.
// The source file system is left untouched.
func (d *Dir) SaveTo(dest *Dir) error {
	err := d.CopyTo(dest)
	if err != nil {
		return err
	}

	d.fs, d.path = dest.fs, dest.path

	return d.fs.Save()
}

// MoveTo copies d to dest, removes the source directory and rebinds d to
// dest. Nothing is saved. The move is not atomic: if the source removal fails
// the copy is kept, d is rebound and the error wraps [ErrMoveCleanup].
func (d *Dir) MoveTo(dest *Dir) error {
	if d.fs == dest.fs {
		if d.path == dest.path {
			return nil
		}

		if contains(d.path, dest.path) || contains(dest.path, d.path) {
			return fmt.Errorf("move %q to %q: %w", d.path, dest.path, ErrOverlap)
		}
	}

	err := d.CopyTo(dest)
	if err != nil {
		return err
	}

	src, srcPath := d.fs, d.path
	d.fs, d.path = dest.fs, dest.path

	err = src.RemoveDirRecursively(srcPath)
	if err != nil {
		return fmt.Errorf("%w: %q: %w", ErrMoveCleanup, srcPath, err)
	}

	return nil
}

// contains reports whether dir contains path. The root contains everything.
func contains(dir, path string) bool {
	return dir == "" || strings.HasPrefix(path, dir+"/")
}

// snapshot reads every file below dir, keyed by path relative to dir.
func snapshot(fsys vfs.ReadOnly, dir string) (map[string][]byte, error) {
	files := make(map[string][]byte)

	var walk func(rel string) error

	walk = func(rel string) error {
		for _, name := range fsys.Files(vfs.Join(dir, rel)) {
			data, err := fsys.Read(vfs.Join(dir, rel, name))
			if err != nil {
				return err
			}

			files[vfs.Join(rel, name)] = data
		}

		for _, name := range fsys.Dirs(vfs.Join(dir, rel)) {
			err := walk(vfs.Join(rel, name))
			if err != nil {
				return err
			}
		}

		return nil
	}

	return files, walk("")
}
