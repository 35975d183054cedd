package vfs

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/calvinalkan/lpdoc/pkg/sexpr"
)

// Diff kinds. A diff of kind k lives in the directory ".k": the index file
// "k.lp" lists modified, removed files and removed directories, and the
// contents of modified files are stored below a timestamped subdirectory.
//
//	.autosave/autosave.lp
//	.autosave/2024-03-01_10-22-05-123/project/board.lp
const (
	kindBackup   = "backup"
	kindAutosave = "autosave"
)

const stampLayout = "2006-01-02_15-04-05.000"

func diffDir(kind string) string { return "." + kind }

func diffIndex(kind string) string { return diffDir(kind) + "/" + kind + ".lp" }

func (f *FileSystem) hasDiffLocked(kind string) bool {
	return f.diffs != nil && f.diffs.isFile(diffIndex(kind))
}

// saveDiffLocked writes the staged overlay as a diff of the given kind. The
// index is written last, so an index on disk always describes a complete
// diff.
func (f *FileSystem) saveDiffLocked(kind string) error {
	d := f.diffs

	err := f.removeDiffLocked(kind)
	if err != nil {
		return err
	}

	now := f.now()
	stamp := strings.Replace(now.Format(stampLayout), ".", "-", 1)
	filesDir := diffDir(kind) + "/" + stamp

	root := sexpr.NewList("librepcb_" + kind)
	root.EnsureLineBreak()
	root.AppendToken("created", now.UTC().Format(time.RFC3339))
	root.EnsureLineBreak()
	root.AppendString("modified_files_directory", stamp)

	for _, rel := range slices.Sorted(maps.Keys(f.modified)) {
		root.EnsureLineBreak()
		root.AppendString("modified_file", rel)

		err = d.writeFile(filesDir+"/"+rel, f.modified[rel])
		if err != nil {
			return fmt.Errorf("write %s diff: %w", kind, err)
		}
	}

	for _, rel := range slices.Sorted(maps.Keys(f.removedFiles)) {
		root.EnsureLineBreak()
		root.AppendString("removed_file", rel)
	}

	for _, rel := range slices.Sorted(maps.Keys(f.removedDirs)) {
		root.EnsureLineBreak()
		root.AppendString("removed_directory", rel)
	}

	root.EnsureLineBreak()

	data, err := root.Bytes()
	if err != nil {
		return fmt.Errorf("serialize %s diff: %w", kind, err)
	}

	err = d.writeFile(diffIndex(kind), data)
	if err != nil {
		return fmt.Errorf("write %s diff index: %w", kind, err)
	}

	f.log.WithFields(logrus.Fields{
		"kind":     kind,
		"modified": len(f.modified),
		"removed":  len(f.removedFiles) + len(f.removedDirs),
	}).Debug("saved diff")

	return nil
}

// loadDiffLocked replaces the staged overlay with the content of a diff.
// The overlay is left untouched if the diff cannot be read.
func (f *FileSystem) loadDiffLocked(kind string) error {
	d := f.diffs
	index := diffIndex(kind)

	data, err := d.readFile(index)
	if err != nil {
		return fmt.Errorf("read %s diff: %w", kind, err)
	}

	root, err := sexpr.Parse(data, d.abs(index))
	if err != nil {
		return err
	}

	stamp, err := root.ChildValue("modified_files_directory/@0")
	if err != nil {
		return err
	}

	if CleanPath(stamp) != stamp || stamp == "" || strings.Contains(stamp, "/") || IsBreakout(stamp) {
		return fmt.Errorf("%s: invalid modified files directory %q", d.abs(index), stamp)
	}

	modified := make(map[string][]byte)
	removedFiles := make(map[string]struct{})
	removedDirs := make(map[string]struct{})

	for _, node := range root.ChildrenNamed("modified_file") {
		rel, err := diffEntry(node)
		if err != nil || rel == "" {
			return fmt.Errorf("%s: invalid modified_file: %w", d.abs(index), err)
		}

		content, err := d.readFile(diffDir(kind) + "/" + stamp + "/" + rel)
		if err != nil {
			return fmt.Errorf("read %s diff content: %w", kind, err)
		}

		modified[rel] = content
	}

	for _, node := range root.ChildrenNamed("removed_file") {
		rel, err := diffEntry(node)
		if err != nil {
			return fmt.Errorf("%s: invalid removed_file: %w", d.abs(index), err)
		}

		removedFiles[rel] = struct{}{}
	}

	for _, node := range root.ChildrenNamed("removed_directory") {
		rel, err := diffEntry(node)
		if err != nil {
			return fmt.Errorf("%s: invalid removed_directory: %w", d.abs(index), err)
		}

		removedDirs[dirPrefix(rel)] = struct{}{}
	}

	f.modified = modified
	f.removedFiles = removedFiles
	f.removedDirs = removedDirs

	f.log.WithFields(logrus.Fields{
		"kind":     kind,
		"modified": len(modified),
		"removed":  len(removedFiles) + len(removedDirs),
	}).Info("loaded diff")

	return nil
}

func diffEntry(node *sexpr.Node) (string, error) {
	value, err := node.ChildValue("@0")
	if err != nil {
		return "", err
	}

	rel := CleanPath(value)
	if IsBreakout(rel) {
		return "", pathErr("load diff", value, ErrBreakout)
	}

	return rel, nil
}

// removeDiffLocked deletes the index first so a partially removed diff is
// never picked up.
func (f *FileSystem) removeDiffLocked(kind string) error {
	d := f.diffs

	err := d.remove(diffIndex(kind))
	if err != nil {
		return fmt.Errorf("remove %s diff index: %w", kind, err)
	}

	err = d.removeAll(diffDir(kind))
	if err != nil {
		return fmt.Errorf("remove %s diff: %w", kind, err)
	}

	if f.sidecar {
		// The sidecar directory of an archive only exists for its diffs.
		_ = d.remove("")
	}

	return nil
}
