package vfs

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/calvinalkan/lpdoc/pkg/dirlock"
	"github.com/calvinalkan/lpdoc/pkg/fs"
)

// trashDir receives files and directories replaced or removed by a commit
// until the commit is complete.
const trashDir = ".backup/trash"

const defaultPerm os.FileMode = 0o644

// errRollback marks a commit that failed and could not be undone.
var errRollback = errors.New("rollback failed")

// diskStore is a directory on an [fs.FS].
type diskStore struct {
	fs     fs.FS
	root   string
	writer *fs.AtomicWriter
	log    logrus.FieldLogger
}

func newDiskStore(fsys fs.FS, root string, log logrus.FieldLogger) *diskStore {
	return &diskStore{
		fs:     fsys,
		root:   root,
		writer: fs.NewAtomicWriter(fsys),
		log:    log,
	}
}

func (s *diskStore) abs(rel string) string {
	if rel == "" {
		return s.root
	}

	return filepath.Join(s.root, filepath.FromSlash(rel))
}

func (s *diskStore) absPath(rel string) string { return s.abs(rel) }

func (s *diskStore) list(dir string) ([]string, []string) {
	entries, err := s.fs.ReadDir(s.abs(dir))
	if err != nil {
		return nil, nil
	}

	var dirs, files []string

	for _, e := range entries {
		switch {
		case dir == "" && bookkeeping(e.Name()):
			continue
		case e.IsDir():
			dirs = append(dirs, e.Name())
		default:
			files = append(files, e.Name())
		}
	}

	return dirs, files
}

func (s *diskStore) isFile(rel string) bool {
	info, err := s.fs.Stat(s.abs(rel))

	return err == nil && !info.IsDir()
}

func (s *diskStore) isDir(rel string) bool {
	info, err := s.fs.Stat(s.abs(rel))

	return err == nil && info.IsDir()
}

func (s *diskStore) readFile(rel string) ([]byte, error) {
	return s.fs.ReadFile(s.abs(rel))
}

func (s *diskStore) writeFile(rel string, data []byte) error {
	return s.writer.WriteFile(s.abs(rel), data, defaultPerm)
}

func (s *diskStore) remove(rel string) error {
	err := s.fs.Remove(s.abs(rel))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}

	return nil
}

func (s *diskStore) removeAll(rel string) error {
	return s.fs.RemoveAll(s.abs(rel))
}

// commit applies c in place. Removed entries are moved into the trash and
// overwritten contents are kept in memory, so a failure can be rolled back.
func (s *diskStore) commit(c *changeset) error {
	if c.empty() {
		return nil
	}

	err := s.removeAll(trashDir)
	if err != nil {
		return fmt.Errorf("clear trash: %w", err)
	}

	j := &journal{store: s}

	err = j.apply(c)
	if err != nil {
		rbErr := j.rollback()
		if rbErr != nil {
			return fmt.Errorf("%w: %w", errRollback, errors.Join(err, rbErr))
		}

		_ = s.removeAll(trashDir)

		return err
	}

	err = s.removeAll(trashDir)
	if err != nil {
		s.log.WithError(err).Warn("failed to clear trash after save")
	}

	return nil
}

// bookkeeping reports whether a root entry belongs to the file system itself
// rather than to the document. Such entries are never listed.
func bookkeeping(name string) bool {
	return name == dirlock.FileName || name == "."+kindBackup || name == "."+kindAutosave
}

type journalEntry struct {
	rel     string
	trashed string
	old     []byte
	perm    os.FileMode
	created bool

	// createdDir marks a directory that did not exist before the commit.
	createdDir bool
}

type journal struct {
	store   *diskStore
	entries []journalEntry
}

func (j *journal) apply(c *changeset) error {
	s := j.store

	for _, dir := range c.removedDirs {
		rel := strings.TrimSuffix(dir, "/")
		if rel != "" {
			if s.isDir(rel) {
				err := j.trash(rel)
				if err != nil {
					return err
				}
			}

			continue
		}

		dirs, files := s.list("")
		for _, name := range append(dirs, files...) {
			err := j.trash(name)
			if err != nil {
				return err
			}
		}
	}

	for _, rel := range c.removedFiles {
		if !s.isFile(rel) {
			continue
		}

		err := j.trash(rel)
		if err != nil {
			return err
		}
	}

	for _, rel := range c.modifiedPaths() {
		err := j.write(rel, c.modified[rel])
		if err != nil {
			return err
		}
	}

	return nil
}

func (j *journal) trash(rel string) error {
	s := j.store
	to := filepath.Join(s.abs(trashDir), filepath.FromSlash(rel))

	err := s.fs.MkdirAll(filepath.Dir(to), 0o755)
	if err != nil {
		return fmt.Errorf("create trash dir: %w", err)
	}

	err = s.fs.Rename(s.abs(rel), to)
	if err != nil {
		return fmt.Errorf("move %q to trash: %w", rel, err)
	}

	j.entries = append(j.entries, journalEntry{rel: rel, trashed: to})

	return nil
}

func (j *journal) write(rel string, data []byte) error {
	s := j.store
	entry := journalEntry{rel: rel, created: true, perm: defaultPerm}

	if info, err := s.fs.Stat(s.abs(rel)); err == nil && !info.IsDir() {
		old, err := s.readFile(rel)
		if err != nil {
			return fmt.Errorf("read %q: %w", rel, err)
		}

		entry = journalEntry{rel: rel, old: old, perm: info.Mode().Perm()}
	} else {
		j.recordMissingParents(rel)
	}

	err := s.writer.WriteFile(s.abs(rel), data, entry.perm)
	if err != nil {
		return fmt.Errorf("write %q: %w", rel, err)
	}

	j.entries = append(j.entries, entry)

	return nil
}

// recordMissingParents journals the parent directories of rel that the
// atomic writer is about to create, outermost first.
func (j *journal) recordMissingParents(rel string) {
	var missing []string

	for dir := path.Dir(rel); dir != "." && !j.store.isDir(dir); dir = path.Dir(dir) {
		missing = append(missing, dir)
	}

	for _, dir := range slices.Backward(missing) {
		j.entries = append(j.entries, journalEntry{rel: dir, createdDir: true})
	}
}

func (j *journal) rollback() error {
	s := j.store

	var errs []error

	for i := len(j.entries) - 1; i >= 0; i-- {
		e := j.entries[i]

		var err error

		switch {
		case e.trashed != "":
			err = s.fs.MkdirAll(filepath.Dir(s.abs(e.rel)), 0o755)
			if err == nil {
				err = s.fs.Rename(e.trashed, s.abs(e.rel))
			}
		case e.created, e.createdDir:
			err = s.remove(e.rel)
		default:
			err = s.writer.WriteFile(s.abs(e.rel), e.old, e.perm)
		}

		if err != nil {
			errs = append(errs, fmt.Errorf("restore %q: %w", e.rel, err))
		}
	}

	s.log.WithField("entries", len(j.entries)).Warn("rolled back failed save")

	return errors.Join(errs...)
}
