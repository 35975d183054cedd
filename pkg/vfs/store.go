package vfs

import (
	"maps"
	"slices"
	"strings"
)

// store is the committed state behind a [FileSystem]. Paths passed to a store
// are cleaned and never break out of the root.
type store interface {
	// absPath maps a relative path to the path reported by [FileSystem.AbsPath].
	absPath(rel string) string

	// list returns the names of the directories and files directly below dir.
	// A missing dir yields empty results.
	list(dir string) (dirs, files []string)

	isFile(rel string) bool
	isDir(rel string) bool

	// readFile returns an error wrapping [os.ErrNotExist] for missing files.
	readFile(rel string) ([]byte, error)

	// commit applies c. On error the committed state is unchanged unless the
	// error wraps errRollback.
	commit(c *changeset) error
}

// changeset is a snapshot of the staged overlay.
type changeset struct {
	modified     map[string][]byte
	removedFiles []string
	removedDirs  []string
}

func (c *changeset) empty() bool {
	return len(c.modified) == 0 && len(c.removedFiles) == 0 && len(c.removedDirs) == 0
}

func (c *changeset) modifiedPaths() []string {
	return slices.Sorted(maps.Keys(c.modified))
}

// removes reports whether c removes path, either directly or through a
// removed parent directory.
func (c *changeset) removes(path string) bool {
	if slices.Contains(c.removedFiles, path) {
		return true
	}

	for _, dir := range c.removedDirs {
		if strings.HasPrefix(path, dir) {
			return true
		}
	}

	return false
}

// walkFiles returns every file below dir of s, relative to the root, in
// lexical order. skipDir is consulted for every directory name; it may be nil.
func walkFiles(s store, dir string, skipDir func(name string) bool) []string {
	var out []string

	var walk func(dir string)

	walk = func(dir string) {
		dirs, files := s.list(dir)
		prefix := dirPrefix(dir)

		for _, name := range files {
			out = append(out, prefix+name)
		}

		for _, name := range dirs {
			if skipDir != nil && skipDir(name) {
				continue
			}

			walk(prefix + name)
		}
	}

	walk(dir)
	slices.Sort(out)

	return out
}
