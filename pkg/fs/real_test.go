package fs

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func Test_RealFS_Exists_Returns_False_When_Path_Does_Not_Exist(t *testing.T) {
	t.Parallel()

	fsys := NewReal()

	exists, err := fsys.Exists(filepath.Join(t.TempDir(), "does-not-exist.lp"))
	if err != nil {
		t.Fatalf("err=%v, want nil", err)
	}

	if got, want := exists, false; got != want {
		t.Fatalf("exists=%v, want=%v", got, want)
	}
}

func Test_RealFS_Exists_Returns_True_When_Path_Is_A_File_Or_Directory(t *testing.T) {
	t.Parallel()

	fsys := NewReal()
	dir := t.TempDir()
	file := filepath.Join(dir, "symbol.lp")

	if err := os.WriteFile(file, []byte("(librepcb_symbol)"), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}

	for _, path := range []string{dir, file} {
		exists, err := fsys.Exists(path)
		if err != nil {
			t.Fatalf("Exists(%q): %v", path, err)
		}

		if !exists {
			t.Fatalf("Exists(%q)=false, want true", path)
		}
	}
}

func Test_RealFS_Exists_Returns_Error_When_Parent_Is_A_File(t *testing.T) {
	t.Parallel()

	fsys := NewReal()
	file := filepath.Join(t.TempDir(), "file")

	if err := os.WriteFile(file, nil, 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}

	exists, err := fsys.Exists(filepath.Join(file, "child"))
	if exists {
		t.Fatal("exists=true, want false")
	}

	// ENOTDIR is not ErrNotExist on all platforms; either way it must not
	// report existence.
	if err != nil && errors.Is(err, os.ErrNotExist) {
		t.Fatalf("err=%v should have been mapped to (false, nil)", err)
	}
}
