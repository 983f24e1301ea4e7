package migrate

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	errs "github.com/taskvault/taskvault/internal/errors"
	"github.com/taskvault/taskvault/internal/util"
)

// DefaultTTL is how long a lock stays valid without a heartbeat.
// A crashed migrator's lock goes stale after this and can be claimed.
const DefaultTTL = 60 * time.Second

// HeartbeatInterval is how often a running migration refreshes its lock.
const HeartbeatInterval = 10 * time.Second

// lockRecord is the on-disk lock state, one file per project.
type lockRecord struct {
	Owner     string    `yaml:"owner"`
	Acquired  time.Time `yaml:"acquired"`
	Heartbeat time.Time `yaml:"heartbeat"`
	TTL       string    `yaml:"ttl"`
	PID       int       `yaml:"pid"`
}

func (r *lockRecord) ttl() time.Duration {
	d, err := time.ParseDuration(r.TTL)
	if err != nil {
		return DefaultTTL
	}
	return d
}

func (r *lockRecord) stale() bool {
	return time.Since(r.Heartbeat) > r.ttl()
}

// Locker serializes migrations per project with yaml lock files. Two
// concurrent runs against the same project would double-write and race
// the cutover; the second acquirer fails with MIGRATION_LOCKED. Stale
// locks (crashed holder, no heartbeat within TTL) are claimed.
type Locker struct {
	dir   string
	owner string
	mu    sync.Mutex
}

// NewLocker creates a locker writing lock files under dir.
// Owner identifies the holder in lock files and error messages,
// conventionally user@host.
func NewLocker(dir, owner string) *Locker {
	return &Locker{dir: dir, owner: owner}
}

func (l *Locker) lockPath(projectID string) string {
	return filepath.Join(l.dir, projectID+".lock.yaml")
}

func (l *Locker) read(projectID string) (*lockRecord, error) {
	data, err := os.ReadFile(l.lockPath(projectID))
	if err != nil {
		return nil, err
	}
	var rec lockRecord
	if err := yaml.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("parse lock file: %w", err)
	}
	return &rec, nil
}

// write replaces the lock file atomically via rename.
func (l *Locker) write(projectID string, rec *lockRecord) error {
	data, err := yaml.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal lock: %w", err)
	}
	return util.AtomicWriteFile(l.lockPath(projectID), data, 0o644)
}

// Acquire takes the migration lock for a project. Fails with
// MIGRATION_LOCKED when another owner holds an active lock; stale
// locks and our own are claimed or refreshed.
func (l *Locker) Acquire(projectID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	existing, err := l.read(projectID)
	if err == nil {
		if !existing.stale() && existing.Owner != l.owner {
			return errs.ErrMigrationLocked(projectID, existing.Owner)
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("read lock: %w", err)
	}

	now := time.Now().UTC()
	return l.write(projectID, &lockRecord{
		Owner:     l.owner,
		Acquired:  now,
		Heartbeat: now,
		TTL:       DefaultTTL.String(),
		PID:       os.Getpid(),
	})
}

// Release removes the lock. Releasing a lock we do not own is an
// error; a missing lock file is not.
func (l *Locker) Release(projectID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	existing, err := l.read(projectID)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read lock: %w", err)
	}
	if existing.Owner != l.owner {
		return errs.ErrMigrationLocked(projectID, existing.Owner)
	}

	if err := os.Remove(l.lockPath(projectID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove lock file: %w", err)
	}
	return nil
}

// Heartbeat refreshes the lock timestamp to keep it from going stale
// during long copies.
func (l *Locker) Heartbeat(projectID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	existing, err := l.read(projectID)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("no lock held for project %s", projectID)
		}
		return fmt.Errorf("read lock: %w", err)
	}
	if existing.Owner != l.owner {
		return errs.ErrMigrationLocked(projectID, existing.Owner)
	}

	existing.Heartbeat = time.Now().UTC()
	return l.write(projectID, existing)
}

// Held reports whether an active (non-stale) lock exists and who
// holds it.
func (l *Locker) Held(projectID string) (bool, string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	existing, err := l.read(projectID)
	if os.IsNotExist(err) {
		return false, "", nil
	}
	if err != nil {
		return false, "", fmt.Errorf("read lock: %w", err)
	}
	if existing.stale() {
		return false, "", nil
	}
	return true, existing.Owner, nil
}
