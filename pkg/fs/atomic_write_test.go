package fs_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"

	"github.com/calvinalkan/lpdoc/pkg/fs"
)

func Test_AtomicWriter_WriteFile_Creates_Parents_And_Replaces_Content(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "library", "sym", "symbol.lp")
	w := fs.NewAtomicWriter(fs.NewReal())

	if err := w.WriteFile(path, []byte("old"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if err := w.WriteFile(path, []byte("new"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}

	if string(got) != "new" {
		t.Fatalf("content=%q, want %q", got, "new")
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}

	if got, want := info.Mode().Perm(), os.FileMode(0o600); got != want {
		t.Fatalf("perm=%v, want=%v", got, want)
	}

	assertNoTempFiles(t, filepath.Dir(path))
}

func Test_AtomicWriter_WriteFile_Keeps_Old_Content_When_Write_Fails(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "board.lp")

	if err := os.WriteFile(path, []byte("committed"), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}

	for _, op := range []fs.Op{fs.OpWrite, fs.OpSync, fs.OpClose, fs.OpRename, fs.OpOpenFile} {
		faulty := fs.NewFaulty(fs.NewReal(), fs.Fault{Op: op, Errno: syscall.ENOSPC})
		w := fs.NewAtomicWriter(faulty)

		err := w.WriteFile(path, []byte("partial"), 0o644)
		if err == nil {
			t.Fatalf("%s: WriteFile succeeded, want error", op)
		}

		if !fs.IsInjected(err) || !errors.Is(err, syscall.ENOSPC) {
			t.Fatalf("%s: err=%v, want injected ENOSPC", op, err)
		}

		got, _ := os.ReadFile(path)
		if string(got) != "committed" {
			t.Fatalf("%s: content=%q, want %q", op, got, "committed")
		}

		assertNoTempFiles(t, dir)
	}
}

func Test_AtomicWriter_WriteFile_Returns_ErrDirSync_When_Dir_Sync_Fails(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "board.lp")

	faulty := fs.NewFaulty(fs.NewReal(), fs.Fault{Op: fs.OpOpen, PathContains: dir})

	err := fs.NewAtomicWriter(faulty).WriteFile(path, []byte("data"), 0o644)
	if !errors.Is(err, fs.ErrDirSync) {
		t.Fatalf("err=%v, want ErrDirSync", err)
	}

	got, _ := os.ReadFile(path)
	if string(got) != "data" {
		t.Fatalf("content=%q, want the new content to be in place", got)
	}

	err = fs.NewAtomicWriter(faulty).WithoutDirSync().WriteFile(path, []byte("again"), 0o644)
	if err != nil {
		t.Fatalf("WithoutDirSync: %v", err)
	}
}

func Test_AtomicWriter_WriteFile_Rejects_Invalid_Arguments(t *testing.T) {
	t.Parallel()

	w := fs.NewAtomicWriter(fs.NewReal())

	if err := w.WriteFile(filepath.Join(t.TempDir(), "x"), nil, 0); err == nil {
		t.Fatal("expected error for zero perm")
	}

	if err := w.WriteFile(t.TempDir()+"/", nil, 0o644); err == nil {
		t.Fatal("expected error for directory path")
	}
}

func assertNoTempFiles(t *testing.T, dir string) {
	t.Helper()

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}

	for _, e := range entries {
		if strings.Contains(e.Name(), ".tmp-") {
			t.Fatalf("temp file left behind: %s", e.Name())
		}
	}
}
