package txdir_test

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/lpdoc/pkg/txdir"
	"github.com/calvinalkan/lpdoc/pkg/vfs"
)

// newTree returns a memory file system holding
//
//	a.txt a/b.txt a/b/c.txt a/b/c/d.txt
func newTree(t *testing.T) *vfs.FileSystem {
	t.Helper()

	fsys := vfs.NewMemory()

	for rel, content := range map[string]string{
		"a.txt":       "a",
		"a/b.txt":     "b",
		"a/b/c.txt":   "c",
		"a/b/c/d.txt": "d",
	} {
		require.NoError(t, fsys.Write(rel, []byte(content)))
	}

	return fsys
}

func Test_New_Normalizes_Path(t *testing.T) {
	t.Parallel()

	fsys := newTree(t)

	tests := []struct {
		name string
		dir  *txdir.Dir
		want string
	}{
		{name: "root", dir: txdir.New(fsys, ""), want: ""},
		{name: "subdir", dir: txdir.New(fsys, "foo"), want: "foo"},
		{name: "trailing slashes", dir: txdir.New(fsys, "foo///"), want: "foo"},
		{name: "sub of subdir", dir: txdir.New(fsys, "foo").Sub("bar"), want: "foo/bar"},
		{name: "sub without path", dir: txdir.New(fsys, "foo").Sub(""), want: "foo"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			require.Equal(t, tt.want, tt.dir.Path())
			require.Same(t, fsys, tt.dir.FileSystem())
		})
	}
}

func Test_NewBlank_Is_Empty_And_Writable(t *testing.T) {
	t.Parallel()

	dir := txdir.NewBlank()

	require.Empty(t, dir.Dirs(""))
	require.Empty(t, dir.Files(""))
	require.True(t, dir.IsWritable())
	require.NoError(t, dir.Write("x.txt", []byte("x")))
	require.NoError(t, dir.Save())
}

func Test_Dir_Translates_Paths(t *testing.T) {
	t.Parallel()

	dir, err := vfs.OpenDir(filepath.Join(t.TempDir(), "foo bar"), vfs.Options{Writable: true})
	require.NoError(t, err)

	t.Cleanup(func() { _ = dir.Close() })

	require.Equal(t, dir.AbsPath(""), txdir.New(dir, "").AbsPath(""))
	require.Equal(t, dir.AbsPath("hello"), txdir.New(dir, "").AbsPath("hello"))
	require.Equal(t, dir.AbsPath("sub dir"), txdir.New(dir, "sub dir").AbsPath(""))
	require.Equal(t, dir.AbsPath("sub dir/hello"), txdir.New(dir, "sub dir").AbsPath("hello"))

	fsys := newTree(t)
	root := txdir.New(fsys, "")
	sub := txdir.New(fsys, "a")

	require.Equal(t, []string{"a"}, root.Dirs(""))
	require.Equal(t, []string{"b"}, root.Dirs("a"))
	require.Equal(t, []string{"b"}, sub.Dirs(""))
	require.Equal(t, []string{"c"}, sub.Dirs("b"))

	require.Equal(t, []string{"a.txt"}, root.Files(""))
	require.Equal(t, []string{"b.txt"}, root.Files("a"))
	require.Equal(t, []string{"b.txt"}, sub.Files(""))
	require.Equal(t, []string{"c.txt"}, sub.Files("b"))

	require.True(t, sub.Exists("b/c.txt"))
	require.False(t, sub.Exists("b/d.txt"))

	data, err := sub.Read("b/c.txt")
	require.NoError(t, err)
	require.Equal(t, "c", string(data))

	_, err = sub.Read("b/d.txt")
	require.ErrorIs(t, err, vfs.ErrNotFound)

	require.NoError(t, sub.Write("b/c.txt", []byte("foo4")))

	data, err = fsys.Read("a/b/c.txt")
	require.NoError(t, err)
	require.Equal(t, "foo4", string(data))

	require.NoError(t, sub.RemoveFile("b.txt"))
	require.False(t, fsys.Exists("a/b.txt"))

	require.NoError(t, sub.RenameFile("b/c.txt", "moved.txt"))
	require.True(t, fsys.Exists("a/moved.txt"))
	require.False(t, fsys.Exists("a/b/c.txt"))
}

func Test_Dir_RemoveDirRecursively(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		path      string
		rel       string
		wantDirs  []string
		wantFiles []string
		wantADirs []string
	}{
		{name: "root", path: "", rel: "", wantDirs: []string{}, wantFiles: []string{}, wantADirs: []string{}},
		{name: "root path", path: "", rel: "a", wantDirs: []string{}, wantFiles: []string{"a.txt"}, wantADirs: []string{}},
		{name: "subdir", path: "a", rel: "", wantDirs: []string{}, wantFiles: []string{"a.txt"}, wantADirs: []string{}},
		{name: "subdir path", path: "a", rel: "b", wantDirs: []string{"a"}, wantFiles: []string{"a.txt"}, wantADirs: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			fsys := newTree(t)

			require.NoError(t, txdir.New(fsys, tt.path).RemoveDirRecursively(tt.rel))
			require.ElementsMatch(t, tt.wantDirs, fsys.Dirs(""))
			require.ElementsMatch(t, tt.wantFiles, fsys.Files(""))
			require.ElementsMatch(t, tt.wantADirs, fsys.Dirs("a"))
		})
	}
}

func Test_Dir_Write_Fails_When_FileSystem_Is_ReadOnly(t *testing.T) {
	t.Parallel()

	ro, err := vfs.OpenDir(t.TempDir(), vfs.Options{})
	require.NoError(t, err)

	dir := txdir.New(ro, "sub")

	require.ErrorIs(t, dir.Write("x", []byte("x")), vfs.ErrReadOnly)
	require.ErrorIs(t, dir.RemoveDirRecursively(""), vfs.ErrReadOnly)
	require.ErrorIs(t, txdir.New(newTree(t), "").CopyTo(dir), vfs.ErrReadOnly)
}

func Test_View_Cannot_Recover_Write_Access(t *testing.T) {
	t.Parallel()

	fsys := newTree(t)
	view := txdir.New(fsys, "a").View()

	require.False(t, view.IsWritable())
	require.Equal(t, []string{"b.txt"}, view.Files(""))
	require.Equal(t, []string{"c.txt"}, view.Sub("b").Files(""))

	_, ok := view.FileSystem().(vfs.ReadWrite)
	require.False(t, ok, "view file system must not implement vfs.ReadWrite")

	data, err := view.ReadIfExists("missing.txt")
	require.NoError(t, err)
	require.Nil(t, data)
}

type layout struct {
	dirs  map[string][]string
	files map[string][]string
}

func requireLayout(t *testing.T, fsys vfs.ReadOnly, want layout) {
	t.Helper()

	for rel, dirs := range want.dirs {
		require.ElementsMatch(t, dirs, fsys.Dirs(rel), "Dirs(%q)", rel)
	}

	for rel, files := range want.files {
		require.ElementsMatch(t, files, fsys.Files(rel), "Files(%q)", rel)
	}
}

var untouchedSource = layout{
	dirs:  map[string][]string{"": {"a"}, "a": {"b"}},
	files: map[string][]string{"": {"a.txt"}, "a": {"b.txt"}},
}

var copyCases = []struct {
	name    string
	src     string
	dst     string
	wantDst layout
}{
	{
		name:    "root to root",
		src:     "",
		dst:     "",
		wantDst: layout{
			dirs:  map[string][]string{"": {"a"}},
			files: map[string][]string{"": {"a.txt"}, "a": {"b.txt"}},
		},
	},
	{
		name:    "root to subdir",
		src:     "",
		dst:     "a",
		wantDst: layout{
			dirs:  map[string][]string{"": {"a"}, "a": {"a"}},
			files: map[string][]string{"": {}, "a": {"a.txt"}, "a/a": {"b.txt"}},
		},
	},
	{
		name:    "subdir to root",
		src:     "a",
		dst:     "",
		wantDst: layout{
			dirs:  map[string][]string{"": {"b"}},
			files: map[string][]string{"": {"b.txt"}, "b": {"c.txt"}},
		},
	},
	{
		name:    "subdir to subdir",
		src:     "a",
		dst:     "a",
		wantDst: layout{
			dirs:  map[string][]string{"": {"a"}, "a": {"b"}, "a/b": {"c"}},
			files: map[string][]string{"": {}, "a": {"b.txt"}, "a/b": {"c.txt"}},
		},
	},
}

func Test_Dir_CopyTo(t *testing.T) {
	t.Parallel()

	for _, tt := range copyCases {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			srcFS, dstFS := newTree(t), vfs.NewMemory()
			src := txdir.New(srcFS, tt.src)

			require.NoError(t, src.CopyTo(txdir.New(dstFS, tt.dst)))
			require.Same(t, srcFS, src.FileSystem())
			require.Equal(t, tt.src, src.Path())

			requireLayout(t, srcFS, untouchedSource)
			requireLayout(t, dstFS, tt.wantDst)
		})
	}
}

func Test_Dir_SaveTo(t *testing.T) {
	t.Parallel()

	for _, tt := range copyCases {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			srcFS, dstFS := newTree(t), vfs.NewMemory()
			src := txdir.New(srcFS, tt.src)

			require.NoError(t, src.SaveTo(txdir.New(dstFS, tt.dst)))
			require.Same(t, dstFS, src.FileSystem())
			require.Equal(t, tt.dst, src.Path())

			mods, err := dstFS.CheckForModifications()
			require.NoError(t, err)
			require.Empty(t, mods, "destination not saved")

			requireLayout(t, srcFS, untouchedSource)
			requireLayout(t, dstFS, tt.wantDst)
		})
	}
}

func Test_Dir_MoveTo(t *testing.T) {
	t.Parallel()

	for _, tt := range copyCases {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			srcFS, dstFS := newTree(t), vfs.NewMemory()
			src := txdir.New(srcFS, tt.src)

			require.NoError(t, src.MoveTo(txdir.New(dstFS, tt.dst)))
			require.Same(t, dstFS, src.FileSystem())
			require.Equal(t, tt.dst, src.Path())

			wantSrc := layout{
				dirs:  map[string][]string{"": {}},
				files: map[string][]string{"": {}},
			}
			if tt.src == "a" {
				wantSrc.files[""] = []string{"a.txt"}
			}

			requireLayout(t, srcFS, wantSrc)
			requireLayout(t, dstFS, tt.wantDst)
		})
	}
}

func Test_Dir_CopyTo_Itself_Keeps_Content(t *testing.T) {
	t.Parallel()

	fsys := newTree(t)
	dir := txdir.New(fsys, "a")

	require.NoError(t, dir.CopyTo(txdir.New(fsys, "a")))
	requireLayout(t, fsys, untouchedSource)

	data, err := fsys.Read("a/b/c/d.txt")
	require.NoError(t, err)
	require.Equal(t, "d", string(data))
}

func Test_Dir_MoveTo_Rejects_Overlapping_Paths_On_Same_FileSystem(t *testing.T) {
	t.Parallel()

	fsys := newTree(t)
	dir := txdir.New(fsys, "a")

	err := dir.MoveTo(txdir.New(fsys, "a/b/new"))
	require.ErrorIs(t, err, txdir.ErrOverlap)
	require.Equal(t, "a", dir.Path())
	requireLayout(t, fsys, untouchedSource)

	require.NoError(t, dir.MoveTo(txdir.New(fsys, "a")))
	require.NoError(t, dir.MoveTo(txdir.New(fsys, "moved")))
	require.Equal(t, "moved", dir.Path())
	require.Equal(t, []string{"moved"}, fsys.Dirs(""))
	require.True(t, fsys.Exists("moved/b/c/d.txt"))
}

func Test_Dir_MoveTo_Reports_Cleanup_Failure_After_Copy(t *testing.T) {
	t.Parallel()

	// Exports contain committed state only.
	mem := newTree(t)
	require.NoError(t, mem.Save())

	data, err := mem.ExportZipBytes(nil)
	require.NoError(t, err)

	ro, err := vfs.OpenZipBytes(data)
	require.NoError(t, err)

	dst := vfs.NewMemory()
	dir := txdir.New(ro, "a")

	err = dir.MoveTo(txdir.New(dst, ""))
	require.ErrorIs(t, err, txdir.ErrMoveCleanup)
	require.ErrorIs(t, err, vfs.ErrReadOnly)
	require.Same(t, dst, dir.FileSystem())
	require.True(t, dst.Exists("b/c/d.txt"))
	require.True(t, ro.Exists("a/b.txt"))
}

func Test_Dir_Errors_Are_Not_Swallowed(t *testing.T) {
	t.Parallel()

	err := txdir.New(newTree(t), "").Write("../escape", nil)
	require.True(t, errors.Is(err, vfs.ErrBreakout), "err=%v", err)

	err = txdir.New(newTree(t), "a").RemoveFile("missing.txt")
	require.True(t, errors.Is(err, vfs.ErrNotFound), "err=%v", err)
}
