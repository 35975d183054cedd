package txdir

import (
	"github.com/calvinalkan/lpdoc/pkg/vfs"
)

// View is a read-only view on path within a file system.
type View struct {
	fs   vfs.ReadOnly
	path string
}

// viewer is implemented by file systems that can hand out a read-only
// wrapper of themselves.
type viewer interface {
	View() vfs.ReadOnly
}

// NewView returns a read-only view on path within fsys. If fsys can hand out
// a read-only wrapper, the view keeps the wrapper so that write access cannot
// be recovered from [View.FileSystem].
func NewView(fsys vfs.ReadOnly, path string) View {
	if v, ok := fsys.(viewer); ok {
		fsys = v.View()
	}

	return View{fs: fsys, path: vfs.CleanPath(path)}
}

// Sub returns a view on subpath below v.
func (v View) Sub(subpath string) View {
	return View{fs: v.fs, path: vfs.Join(v.path, subpath)}
}

func (v View) FileSystem() vfs.ReadOnly { return v.fs }

func (v View) Path() string { return v.path }

func (v View) AbsPath(rel string) string { return v.fs.AbsPath(vfs.Join(v.path, rel)) }

func (v View) Dirs(rel string) []string { return v.fs.Dirs(vfs.Join(v.path, rel)) }

func (v View) Files(rel string) []string { return v.fs.Files(vfs.Join(v.path, rel)) }

func (v View) Exists(rel string) bool { return v.fs.Exists(vfs.Join(v.path, rel)) }

func (v View) Read(rel string) ([]byte, error) { return v.fs.Read(vfs.Join(v.path, rel)) }

func (v View) ReadIfExists(rel string) ([]byte, error) {
	return v.fs.ReadIfExists(vfs.Join(v.path, rel))
}

// IsWritable reports whether the underlying file system is writable. It is
// always false for views handed out by [Dir.View].
func (v View) IsWritable() bool { return v.fs.IsWritable() }

func (v View) IsRestoredFromAutosave() bool { return v.fs.IsRestoredFromAutosave() }
