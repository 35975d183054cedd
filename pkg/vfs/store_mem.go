package vfs

import (
	"bytes"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/natefinch/atomic"
	"github.com/spf13/afero"
)

// memStore keeps the committed state in an in-memory afero tree. With a
// zipPath it is the baseline of a zip archive, and commits rewrite the
// archive before the tree is swapped.
type memStore struct {
	tree    afero.Fs
	zipPath string
}

func newMemStore(files map[string][]byte, zipPath string) (*memStore, error) {
	tree, err := buildTree(files)
	if err != nil {
		return nil, err
	}

	return &memStore{tree: tree, zipPath: zipPath}, nil
}

// buildTree returns a read-only tree holding files. The tree is never
// modified in place; commits build a new one.
func buildTree(files map[string][]byte) (afero.Fs, error) {
	tree := afero.NewMemMapFs()

	for rel, data := range files {
		p := memPath(rel)

		err := tree.MkdirAll(path.Dir(p), 0o755)
		if err != nil {
			return nil, err
		}

		err = afero.WriteFile(tree, p, data, defaultPerm)
		if err != nil {
			return nil, err
		}
	}

	return afero.NewReadOnlyFs(tree), nil
}

func memPath(rel string) string { return "/" + rel }

func (s *memStore) absPath(rel string) string {
	if s.zipPath == "" {
		return memPath(rel)
	}

	if rel == "" {
		return s.zipPath
	}

	return s.zipPath + "/" + rel
}

func (s *memStore) list(dir string) ([]string, []string) {
	infos, err := afero.ReadDir(s.tree, memPath(dir))
	if err != nil {
		return nil, nil
	}

	var dirs, files []string

	for _, info := range infos {
		if info.IsDir() {
			dirs = append(dirs, info.Name())
		} else {
			files = append(files, info.Name())
		}
	}

	return dirs, files
}

func (s *memStore) isFile(rel string) bool {
	info, err := s.tree.Stat(memPath(rel))

	return err == nil && !info.IsDir()
}

func (s *memStore) isDir(rel string) bool {
	ok, err := afero.IsDir(s.tree, memPath(rel))

	return err == nil && ok
}

func (s *memStore) readFile(rel string) ([]byte, error) {
	if !s.isFile(rel) {
		return nil, &os.PathError{Op: "read", Path: rel, Err: os.ErrNotExist}
	}

	return afero.ReadFile(s.tree, memPath(rel))
}

// snapshot returns every committed file.
func (s *memStore) snapshot() (map[string][]byte, error) {
	files := make(map[string][]byte)

	err := afero.Walk(s.tree, "/", func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if info.IsDir() {
			return nil
		}

		data, err := afero.ReadFile(s.tree, p)
		if err != nil {
			return err
		}

		files[strings.TrimPrefix(p, "/")] = data

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk committed files: %w", err)
	}

	return files, nil
}

func (s *memStore) commit(c *changeset) error {
	if c.empty() {
		return nil
	}

	files, err := s.snapshot()
	if err != nil {
		return err
	}

	for rel := range files {
		if c.removes(rel) {
			delete(files, rel)
		}
	}

	for rel, data := range c.modified {
		files[rel] = data
	}

	tree, err := buildTree(files)
	if err != nil {
		return fmt.Errorf("build tree: %w", err)
	}

	if s.zipPath != "" {
		data, err := encodeZip(files, nil)
		if err != nil {
			return err
		}

		err = atomic.WriteFile(s.zipPath, bytes.NewReader(data))
		if err != nil {
			return fmt.Errorf("replace %s: %w", s.zipPath, err)
		}
	}

	s.tree = tree

	return nil
}
