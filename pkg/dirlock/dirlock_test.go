package dirlock_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/calvinalkan/lpdoc/pkg/dirlock"
)

func Test_Lock_Status_Is_Unlocked_When_No_Lock_File_Exists(t *testing.T) {
	t.Parallel()

	status, _, err := dirlock.New(t.TempDir()).Status()
	if err != nil {
		t.Fatalf("Status: %v", err)
	}

	if got, want := status, dirlock.Unlocked; got != want {
		t.Fatalf("status=%v, want=%v", got, want)
	}
}

func Test_Lock_TryLock_Writes_Owner_And_Unlock_Removes_It(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	lock := dirlock.New(dir)

	before, err := lock.TryLock(nil)
	if err != nil {
		t.Fatalf("TryLock: %v", err)
	}

	if before != dirlock.Unlocked {
		t.Fatalf("status before=%v, want unlocked", before)
	}

	data, err := os.ReadFile(filepath.Join(dir, dirlock.FileName))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}

	owner, err := dirlock.ParseOwner(data)
	if err != nil {
		t.Fatalf("ParseOwner: %v", err)
	}

	if got, want := owner.PID, os.Getpid(); got != want {
		t.Fatalf("pid=%d, want=%d", got, want)
	}

	if !lock.IsLocked() {
		t.Fatal("IsLocked()=false after TryLock")
	}

	if err := lock.Unlock(); err != nil {
		t.Fatalf("Unlock: %v", err)
	}

	if err := lock.Unlock(); err != nil {
		t.Fatalf("second Unlock: %v", err)
	}

	if _, err := os.Stat(lock.Path()); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("lock file still exists: %v", err)
	}
}

func Test_Lock_Status_Is_Stale_When_Lock_File_Is_Not_Held(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	owner := dirlock.CurrentOwner()
	owner.PID = 999999

	if err := os.WriteFile(filepath.Join(dir, dirlock.FileName), owner.Bytes(), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}

	lock := dirlock.New(dir)

	status, got, err := lock.Status()
	if err != nil {
		t.Fatalf("Status: %v", err)
	}

	if status != dirlock.StaleLock {
		t.Fatalf("status=%v, want stale", status)
	}

	if got.PID != 999999 {
		t.Fatalf("owner pid=%d, want 999999", got.PID)
	}

	before, err := lock.TryLock(nil)
	if err != nil {
		t.Fatalf("TryLock on stale lock: %v", err)
	}

	if before != dirlock.StaleLock {
		t.Fatalf("status before=%v, want stale", before)
	}

	_ = lock.Unlock()
}

func Test_Lock_TryLock_Returns_ErrLocked_When_Held_Elsewhere(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	first := dirlock.New(dir)

	if _, err := first.TryLock(nil); err != nil {
		t.Fatalf("first TryLock: %v", err)
	}

	t.Cleanup(func() { _ = first.Unlock() })

	second := dirlock.New(dir)

	status, _, err := second.Status()
	if err != nil {
		t.Fatalf("Status: %v", err)
	}

	if status != dirlock.LockedByThisApp {
		t.Fatalf("status=%v, want locked by this app", status)
	}

	_, err = second.TryLock(nil)
	if !errors.Is(err, dirlock.ErrLocked) {
		t.Fatalf("err=%v, want ErrLocked", err)
	}

	var asked dirlock.Status

	_, err = second.TryLock(func(_ string, s dirlock.Status, _ dirlock.Owner) bool {
		asked = s

		return false
	})
	if !errors.Is(err, dirlock.ErrLocked) {
		t.Fatalf("err=%v, want ErrLocked when override declines", err)
	}

	if asked != dirlock.LockedByThisApp {
		t.Fatalf("override saw status %v", asked)
	}
}

func Test_Lock_TryLock_Takes_Over_When_Override_Accepts(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	first := dirlock.New(dir)

	if _, err := first.TryLock(nil); err != nil {
		t.Fatalf("first TryLock: %v", err)
	}

	second := dirlock.New(dir)

	_, err := second.TryLock(func(string, dirlock.Status, dirlock.Owner) bool { return true })
	if err != nil {
		t.Fatalf("TryLock with override: %v", err)
	}

	if !second.IsLocked() {
		t.Fatal("second lock not held")
	}

	if err := second.Unlock(); err != nil {
		t.Fatalf("Unlock: %v", err)
	}

	_ = first.Unlock()
}

func Test_ParseOwner_Rejects_Malformed_Content(t *testing.T) {
	t.Parallel()

	for _, data := range []string{"", "a\nb\nc\n", "a\nb\nc\nnot-a-pid\np\n2020-01-01T00:00:00Z\n", "a\nb\nc\n1\np\nyesterday\n"} {
		if _, err := dirlock.ParseOwner([]byte(data)); err == nil {
			t.Fatalf("ParseOwner(%q) succeeded", data)
		}
	}
}

func Test_Owner_Round_Trips(t *testing.T) {
	t.Parallel()

	owner := dirlock.Owner{
		FullName: "Homer Simpson",
		User:     "homer",
		Host:     "homer-workstation",
		PID:      1234,
		Process:  "lpdoc",
		Created:  time.Date(2013, 4, 13, 12, 43, 52, 0, time.UTC),
	}

	want := "Homer Simpson\nhomer\nhomer-workstation\n1234\nlpdoc\n2013-04-13T12:43:52Z\n"
	if got := string(owner.Bytes()); got != want {
		t.Fatalf("Bytes()=%q, want=%q", got, want)
	}

	parsed, err := dirlock.ParseOwner(owner.Bytes())
	if err != nil {
		t.Fatalf("ParseOwner: %v", err)
	}

	if diff := cmp.Diff(owner, parsed); diff != "" {
		t.Fatalf("owner mismatch (-want +got):\n%s", diff)
	}

	if got, want := owner.DisplayName(), "Homer Simpson (homer@homer-workstation)"; got != want {
		t.Fatalf("DisplayName()=%q, want=%q", got, want)
	}
}
