package docstore

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// IndexLock guards the data directory against concurrent writers.
// Both serve and ingest hold it so two processes cannot mutate the
// indexes at the same time.
type IndexLock struct {
	path   string
	flock  *flock.Flock
	locked bool
}

// NewIndexLock creates a lock for the given data directory.
// The lock file lives at <dir>/.biosearch.lock.
func NewIndexLock(dir string) *IndexLock {
	lockPath := filepath.Join(dir, ".biosearch.lock")
	return &IndexLock{
		path:  lockPath,
		flock: flock.New(lockPath),
	}
}

// TryLock attempts to acquire the lock without blocking.
// Returns false if it is held by another process.
func (l *IndexLock) TryLock() (bool, error) {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return false, fmt.Errorf("failed to create lock directory: %w", err)
	}

	acquired, err := l.flock.TryLock()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock: %w", err)
	}
	if acquired {
		l.locked = true
	}
	return acquired, nil
}

// Unlock releases the lock. Safe to call when not held.
func (l *IndexLock) Unlock() error {
	if !l.locked {
		return nil
	}
	l.locked = false
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}
