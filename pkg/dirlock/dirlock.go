// Package dirlock guards a document directory against being opened for
// writing by two application instances at once.
//
// Locking directory "/foo/bar" creates "/foo/bar/.lock", a UTF-8 text file of
// six lines naming the owner:
//
//	Homer Simpson
//	homer
//	homer-workstation
//	1234
//	lpdoc
//	2013-04-13T12:43:52Z
//
// (full name, user name, host name, pid, process name, UTC creation time).
// While locked, the owning process also holds an flock(2) on the file. A lock
// file that exists but is not flocked was left behind by a crashed process
// and is reported as [StaleLock]; callers use that to offer restoring an
// autosave.
//
// This implementation is Unix-only.
package dirlock

import (
	"errors"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// FileName is the name of the lock file inside the locked directory.
const FileName = ".lock"

// ErrLocked is returned by [Lock.TryLock] if the directory is locked by
// someone else and the override callback declined to take it over.
var ErrLocked = errors.New("directory is locked")

// Status describes the state of a directory lock.
type Status int

// Lock states, see [Lock.Status].
const (
	// Unlocked means no lock file exists.
	Unlocked Status = iota
	// StaleLock means a lock file exists but nobody holds it.
	StaleLock
	// LockedByThisApp means this process holds the lock.
	LockedByThisApp
	// LockedByOtherApp means another process of the same user on this host
	// holds the lock.
	LockedByOtherApp
	// LockedByOtherUser means another user or host holds the lock.
	LockedByOtherUser
	// LockedByUnknownApp means the lock is held but its file is unreadable.
	LockedByUnknownApp
)

func (s Status) String() string {
	switch s {
	case Unlocked:
		return "unlocked"
	case StaleLock:
		return "stale"
	case LockedByThisApp:
		return "locked by this application"
	case LockedByOtherApp:
		return "locked by another application"
	case LockedByOtherUser:
		return "locked by another user"
	case LockedByUnknownApp:
		return "locked by an unknown application"
	default:
		return "status(" + strconv.Itoa(int(s)) + ")"
	}
}

// IsLocked reports whether s means someone currently holds the lock.
func (s Status) IsLocked() bool {
	return s >= LockedByThisApp
}

// Owner is the content of a lock file.
type Owner struct {
	FullName string
	User     string
	Host     string
	PID      int
	Process  string
	Created  time.Time
}

// CurrentOwner describes this process.
func CurrentOwner() Owner {
	o := Owner{
		PID:     os.Getpid(),
		Process: filepath.Base(os.Args[0]),
		Created: time.Now().UTC().Truncate(time.Second),
	}

	if u, err := user.Current(); err == nil {
		o.FullName = u.Name
		o.User = u.Username
	}

	if h, err := os.Hostname(); err == nil {
		o.Host = h
	}

	return o
}

// Bytes serializes the owner in lock file format.
func (o Owner) Bytes() []byte {
	lines := []string{
		o.FullName,
		o.User,
		o.Host,
		strconv.Itoa(o.PID),
		o.Process,
		o.Created.UTC().Format(time.RFC3339),
	}

	return []byte(strings.Join(lines, "\n") + "\n")
}

// DisplayName returns "Full Name (user@host)" or a shorter variant if fields
// are missing.
func (o Owner) DisplayName() string {
	id := o.User
	if o.Host != "" {
		id += "@" + o.Host
	}

	if o.FullName == "" {
		return id
	}

	return o.FullName + " (" + id + ")"
}

// ParseOwner parses a lock file.
func ParseOwner(data []byte) (Owner, error) {
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) < 6 {
		return Owner{}, fmt.Errorf("invalid lock file: %d lines, want 6", len(lines))
	}

	pid, err := strconv.Atoi(strings.TrimSpace(lines[3]))
	if err != nil {
		return Owner{}, fmt.Errorf("invalid lock file pid %q: %w", lines[3], err)
	}

	created, err := time.Parse(time.RFC3339, strings.TrimSpace(lines[5]))
	if err != nil {
		return Owner{}, fmt.Errorf("invalid lock file time %q: %w", lines[5], err)
	}

	return Owner{
		FullName: lines[0],
		User:     lines[1],
		Host:     lines[2],
		PID:      pid,
		Process:  lines[4],
		Created:  created,
	}, nil
}

// OverrideFunc decides whether a lock held by owner may be taken over.
type OverrideFunc func(dir string, status Status, owner Owner) bool

// Lock is a lock on one directory. The zero value is not usable; use [New].
//
// Lock is safe for concurrent use.
type Lock struct {
	dir   string
	path  string
	owner Owner

	mu   sync.Mutex
	file *os.File
}

// New returns an unlocked [Lock] for dir. The directory is not touched.
func New(dir string) *Lock {
	return &Lock{
		dir:   dir,
		path:  filepath.Join(dir, FileName),
		owner: CurrentOwner(),
	}
}

// Path returns the path of the lock file.
func (l *Lock) Path() string { return l.path }

// Status inspects the lock file. The returned owner is the zero value for
// [Unlocked] and [LockedByUnknownApp].
func (l *Lock) Status() (Status, Owner, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.statusLocked()
}

func (l *Lock) statusLocked() (Status, Owner, error) {
	data, err := os.ReadFile(l.path)
	if errors.Is(err, os.ErrNotExist) {
		return Unlocked, Owner{}, nil
	}

	if err != nil {
		return Unlocked, Owner{}, fmt.Errorf("read lock file: %w", err)
	}

	if l.file != nil {
		owner, _ := ParseOwner(data)

		return LockedByThisApp, owner, nil
	}

	held, err := isHeld(l.path)
	if err != nil {
		return Unlocked, Owner{}, err
	}

	owner, parseErr := ParseOwner(data)

	switch {
	case !held:
		return StaleLock, owner, nil
	case parseErr != nil:
		return LockedByUnknownApp, Owner{}, nil
	case owner.User != l.owner.User || owner.Host != l.owner.Host:
		return LockedByOtherUser, owner, nil
	case owner.PID == l.owner.PID:
		return LockedByThisApp, owner, nil
	default:
		return LockedByOtherApp, owner, nil
	}
}

// isHeld probes the lock file with a non-blocking exclusive flock.
func isHeld(path string) (bool, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}

	if err != nil {
		return false, fmt.Errorf("open lock file: %w", err)
	}

	defer func() { _ = f.Close() }()

	fd := int(f.Fd())

	err = flockRetryEINTR(fd, unix.LOCK_EX|unix.LOCK_NB)
	if errors.Is(err, unix.EWOULDBLOCK) || errors.Is(err, unix.EAGAIN) {
		return true, nil
	}

	if err != nil {
		return false, fmt.Errorf("flock: %w", err)
	}

	_ = flockRetryEINTR(fd, unix.LOCK_UN)

	return false, nil
}

// TryLock acquires the lock.
//
// Unlocked and stale locks are taken silently. For a lock held by someone
// else, override is asked whether to take it over; if override is nil or
// returns false, TryLock fails with [ErrLocked]. The status found before
// locking is returned so callers can react to [StaleLock].
func (l *Lock) TryLock(override OverrideFunc) (Status, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		return LockedByThisApp, nil
	}

	status, owner, err := l.statusLocked()
	if err != nil {
		return status, err
	}

	if status.IsLocked() && (override == nil || !override(l.dir, status, owner)) {
		who := owner.DisplayName()
		if who == "" {
			who = "unknown"
		}

		return status, fmt.Errorf("%w: %s (%s)", ErrLocked, l.dir, who)
	}

	err = l.lockLocked(status.IsLocked())
	if err != nil {
		return status, err
	}

	return status, nil
}

// lockLocked writes a fresh lock file and flocks it. A lock file that is
// still held by someone else is unlinked first so the new file gets its own
// inode.
func (l *Lock) lockLocked(takeOver bool) error {
	if takeOver {
		err := os.Remove(l.path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove foreign lock file: %w", err)
		}
	}

	f, err := os.OpenFile(l.path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("open lock file: %w", err)
	}

	fd := int(f.Fd())

	err = flockRetryEINTR(fd, unix.LOCK_EX|unix.LOCK_NB)
	if err != nil {
		_ = f.Close()

		if errors.Is(err, unix.EWOULDBLOCK) || errors.Is(err, unix.EAGAIN) {
			return fmt.Errorf("%w: %s", ErrLocked, l.dir)
		}

		return fmt.Errorf("flock: %w", err)
	}

	err = writeOwner(f, l.owner)
	if err != nil {
		_ = flockRetryEINTR(fd, unix.LOCK_UN)

		return errors.Join(err, f.Close(), os.Remove(l.path))
	}

	l.file = f

	return nil
}

func writeOwner(f *os.File, owner Owner) error {
	err := f.Truncate(0)
	if err != nil {
		return fmt.Errorf("truncate lock file: %w", err)
	}

	_, err = f.WriteAt(owner.Bytes(), 0)
	if err != nil {
		return fmt.Errorf("write lock file: %w", err)
	}

	err = f.Sync()
	if err != nil {
		return fmt.Errorf("sync lock file: %w", err)
	}

	return nil
}

// IsLocked reports whether this [Lock] currently holds the directory.
func (l *Lock) IsLocked() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.file != nil
}

// Unlock removes the lock file and releases the flock.
//
// Unlock is idempotent; calling it on an unlocked [Lock] returns nil.
func (l *Lock) Unlock() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}

	removeErr := os.Remove(l.path)
	if errors.Is(removeErr, os.ErrNotExist) {
		removeErr = nil
	}

	unlockErr := flockRetryEINTR(int(l.file.Fd()), unix.LOCK_UN)
	closeErr := l.file.Close()
	l.file = nil

	if removeErr != nil {
		removeErr = fmt.Errorf("removing lock file: %w", removeErr)
	}

	if unlockErr != nil {
		unlockErr = fmt.Errorf("unlocking lock: %w", unlockErr)
	}

	if closeErr != nil {
		closeErr = fmt.Errorf("closing lock fd: %w", closeErr)
	}

	return errors.Join(removeErr, unlockErr, closeErr)
}

// flockRetryEINTR calls flock, retrying when a signal interrupts it.
func flockRetryEINTR(fd, how int) error {
	const maxEINTRRetries = 10000

	var err error
	for range maxEINTRRetries {
		err = unix.Flock(fd, how)
		if err == nil || !errors.Is(err, unix.EINTR) {
			return err
		}
	}

	return err
}
