package fs

import (
	"errors"
	"io/fs"
	"os"
	"strings"
	"sync"
	"syscall"
)

// Op names an operation that [Faulty] can fail.
type Op string

// Operations understood by [Fault.Op].
const (
	OpOpen      Op = "open"
	OpOpenFile  Op = "openfile"
	OpReadFile  Op = "readfile"
	OpReadDir   Op = "readdir"
	OpMkdirAll  Op = "mkdirall"
	OpStat      Op = "stat"
	OpRemove    Op = "remove"
	OpRemoveAll Op = "removeall"
	OpRename    Op = "rename"
	OpWrite     Op = "write"
	OpSync      Op = "sync"
	OpClose     Op = "close"
)

// Fault describes a single injected failure.
type Fault struct {
	// Op is the operation to fail.
	Op Op

	// PathContains restricts the fault to paths containing this substring.
	// For renames both paths are checked. Empty matches every path.
	PathContains string

	// After is the number of matching calls that succeed before the fault
	// fires.
	After int

	// Errno is the error returned. Defaults to EIO.
	Errno syscall.Errno

	// Sticky makes every matching call after the first failure fail too.
	// Otherwise the fault fires exactly once.
	Sticky bool
}

type faultState struct {
	Fault

	seen  int
	fired bool
}

// injectedError marks errors produced by [Faulty]. It unwraps to the
// underlying [*fs.PathError] so os.IsPermission and friends keep working.
type injectedError struct {
	Err error
}

func (e *injectedError) Error() string { return "injected: " + e.Err.Error() }

func (e *injectedError) Unwrap() error { return e.Err }

// IsInjected reports whether err was produced by a [Faulty] filesystem.
func IsInjected(err error) bool {
	var ie *injectedError

	return errors.As(err, &ie)
}

// Faulty wraps an [FS] and fails the operations described by its faults.
//
// Use it to test that commits leave the previous state intact when an I/O
// error hits half way through. Faults are evaluated in order; the first one
// that fires wins. Faulty is safe for concurrent use.
type Faulty struct {
	fs FS

	mu       sync.Mutex
	faults   []*faultState
	disabled bool
	injected int
}

// NewFaulty wraps underlying with the given faults.
func NewFaulty(underlying FS, faults ...Fault) *Faulty {
	f := &Faulty{fs: underlying}
	f.Add(faults...)

	return f
}

// Add registers more faults.
func (f *Faulty) Add(faults ...Fault) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, fault := range faults {
		if fault.Errno == 0 {
			fault.Errno = syscall.EIO
		}

		f.faults = append(f.faults, &faultState{Fault: fault})
	}
}

// SetEnabled turns injection on or off. Disabled, Faulty is a passthrough and
// calls do not count towards [Fault.After].
func (f *Faulty) SetEnabled(enabled bool) {
	f.mu.Lock()
	f.disabled = !enabled
	f.mu.Unlock()
}

// Injected returns the number of failures injected so far.
func (f *Faulty) Injected() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.injected
}

func (f *Faulty) check(op Op, paths ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.disabled {
		return nil
	}

	for _, st := range f.faults {
		if st.Op != op || !matchesAny(st.PathContains, paths) {
			continue
		}

		if st.fired && !st.Sticky {
			continue
		}

		if !st.fired && st.seen < st.After {
			st.seen++

			continue
		}

		st.fired = true
		f.injected++

		if op == OpRename && len(paths) == 2 {
			return &injectedError{Err: &os.LinkError{Op: string(op), Old: paths[0], New: paths[1], Err: st.Errno}}
		}

		return &injectedError{Err: &fs.PathError{Op: string(op), Path: paths[0], Err: st.Errno}}
	}

	return nil
}

func matchesAny(substr string, paths []string) bool {
	if substr == "" {
		return true
	}

	for _, p := range paths {
		if strings.Contains(p, substr) {
			return true
		}
	}

	return false
}

// Open opens path unless an [OpOpen] fault fires.
func (f *Faulty) Open(path string) (File, error) {
	err := f.check(OpOpen, path)
	if err != nil {
		return nil, err
	}

	file, err := f.fs.Open(path)
	if err != nil {
		return nil, err
	}

	return &faultyFile{File: file, owner: f, path: path}, nil
}

// OpenFile opens path unless an [OpOpenFile] fault fires.
func (f *Faulty) OpenFile(path string, flag int, perm os.FileMode) (File, error) {
	err := f.check(OpOpenFile, path)
	if err != nil {
		return nil, err
	}

	file, err := f.fs.OpenFile(path, flag, perm)
	if err != nil {
		return nil, err
	}

	return &faultyFile{File: file, owner: f, path: path}, nil
}

// ReadFile reads path unless an [OpReadFile] fault fires.
func (f *Faulty) ReadFile(path string) ([]byte, error) {
	err := f.check(OpReadFile, path)
	if err != nil {
		return nil, err
	}

	return f.fs.ReadFile(path)
}

// ReadDir lists path unless an [OpReadDir] fault fires.
func (f *Faulty) ReadDir(path string) ([]os.DirEntry, error) {
	err := f.check(OpReadDir, path)
	if err != nil {
		return nil, err
	}

	return f.fs.ReadDir(path)
}

// MkdirAll creates path unless an [OpMkdirAll] fault fires.
func (f *Faulty) MkdirAll(path string, perm os.FileMode) error {
	err := f.check(OpMkdirAll, path)
	if err != nil {
		return err
	}

	return f.fs.MkdirAll(path, perm)
}

// Stat stats path unless an [OpStat] fault fires.
func (f *Faulty) Stat(path string) (os.FileInfo, error) {
	err := f.check(OpStat, path)
	if err != nil {
		return nil, err
	}

	return f.fs.Stat(path)
}

// Exists checks path unless an [OpStat] fault fires.
func (f *Faulty) Exists(path string) (bool, error) {
	err := f.check(OpStat, path)
	if err != nil {
		return false, err
	}

	return f.fs.Exists(path)
}

// Remove removes path unless an [OpRemove] fault fires.
func (f *Faulty) Remove(path string) error {
	err := f.check(OpRemove, path)
	if err != nil {
		return err
	}

	return f.fs.Remove(path)
}

// RemoveAll removes path unless an [OpRemoveAll] fault fires.
func (f *Faulty) RemoveAll(path string) error {
	err := f.check(OpRemoveAll, path)
	if err != nil {
		return err
	}

	return f.fs.RemoveAll(path)
}

// Rename renames oldpath unless an [OpRename] fault fires.
func (f *Faulty) Rename(oldpath, newpath string) error {
	err := f.check(OpRename, oldpath, newpath)
	if err != nil {
		return err
	}

	return f.fs.Rename(oldpath, newpath)
}

type faultyFile struct {
	File

	owner *Faulty
	path  string
}

func (ff *faultyFile) Write(p []byte) (int, error) {
	err := ff.owner.check(OpWrite, ff.path)
	if err != nil {
		return 0, err
	}

	return ff.File.Write(p)
}

func (ff *faultyFile) Sync() error {
	err := ff.owner.check(OpSync, ff.path)
	if err != nil {
		return err
	}

	return ff.File.Sync()
}

// Close always closes the underlying descriptor so injected failures do not
// leak it.
func (ff *faultyFile) Close() error {
	closeErr := ff.File.Close()

	err := ff.owner.check(OpClose, ff.path)
	if err != nil {
		return err
	}

	return closeErr
}
