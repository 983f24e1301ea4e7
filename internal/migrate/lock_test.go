package migrate

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	errs "github.com/taskvault/taskvault/internal/errors"
)

func TestLockerAcquireRelease(t *testing.T) {
	dir := t.TempDir()
	l := NewLocker(dir, "alice@laptop")

	if err := l.Acquire("proj-1"); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "proj-1.lock.yaml")); err != nil {
		t.Errorf("lock file missing: %v", err)
	}

	held, owner, err := l.Held("proj-1")
	if err != nil {
		t.Fatalf("Held: %v", err)
	}
	if !held || owner != "alice@laptop" {
		t.Errorf("Held = %v/%s, want true/alice@laptop", held, owner)
	}

	if err := l.Release("proj-1"); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "proj-1.lock.yaml")); !os.IsNotExist(err) {
		t.Error("lock file still present after release")
	}
}

func TestLockerContention(t *testing.T) {
	dir := t.TempDir()
	alice := NewLocker(dir, "alice@laptop")
	bob := NewLocker(dir, "bob@desktop")

	if err := alice.Acquire("proj-1"); err != nil {
		t.Fatalf("Acquire as alice: %v", err)
	}

	err := bob.Acquire("proj-1")
	if !errs.HasCode(err, errs.CodeMigrationLocked) {
		t.Errorf("Acquire as bob = %v, want MIGRATION_LOCKED", err)
	}

	// A different project is independent.
	if err := bob.Acquire("proj-2"); err != nil {
		t.Errorf("Acquire proj-2 as bob: %v", err)
	}
}

func TestLockerReacquireOwn(t *testing.T) {
	l := NewLocker(t.TempDir(), "alice@laptop")
	if err := l.Acquire("proj-1"); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if err := l.Acquire("proj-1"); err != nil {
		t.Errorf("re-Acquire own lock: %v", err)
	}
}

func TestLockerClaimsStale(t *testing.T) {
	dir := t.TempDir()
	alice := NewLocker(dir, "alice@laptop")
	if err := alice.Acquire("proj-1"); err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	// Backdate the heartbeat past the TTL, as if alice's run crashed.
	rec, err := alice.read("proj-1")
	if err != nil {
		t.Fatalf("read lock: %v", err)
	}
	rec.Heartbeat = time.Now().Add(-2 * DefaultTTL)
	if err := alice.write("proj-1", rec); err != nil {
		t.Fatalf("write lock: %v", err)
	}

	bob := NewLocker(dir, "bob@desktop")
	if err := bob.Acquire("proj-1"); err != nil {
		t.Errorf("Acquire stale lock: %v", err)
	}
	held, owner, err := bob.Held("proj-1")
	if err != nil {
		t.Fatalf("Held: %v", err)
	}
	if !held || owner != "bob@desktop" {
		t.Errorf("Held = %v/%s, want true/bob@desktop", held, owner)
	}
}

func TestLockerHeartbeatRefreshes(t *testing.T) {
	l := NewLocker(t.TempDir(), "alice@laptop")
	if err := l.Acquire("proj-1"); err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	before, err := l.read("proj-1")
	if err != nil {
		t.Fatalf("read lock: %v", err)
	}
	time.Sleep(10 * time.Millisecond)
	if err := l.Heartbeat("proj-1"); err != nil {
		t.Fatalf("Heartbeat: %v", err)
	}
	after, err := l.read("proj-1")
	if err != nil {
		t.Fatalf("read lock: %v", err)
	}
	if !after.Heartbeat.After(before.Heartbeat) {
		t.Error("heartbeat timestamp did not advance")
	}
}

func TestLockerReleaseForeignLock(t *testing.T) {
	dir := t.TempDir()
	alice := NewLocker(dir, "alice@laptop")
	bob := NewLocker(dir, "bob@desktop")

	if err := alice.Acquire("proj-1"); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if err := bob.Release("proj-1"); !errs.HasCode(err, errs.CodeMigrationLocked) {
		t.Errorf("Release foreign lock = %v, want MIGRATION_LOCKED", err)
	}
}

func TestLockerReleaseMissingIsNoop(t *testing.T) {
	l := NewLocker(t.TempDir(), "alice@laptop")
	if err := l.Release("proj-1"); err != nil {
		t.Errorf("Release with no lock: %v", err)
	}
}
