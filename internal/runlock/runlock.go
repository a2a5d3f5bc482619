// Package runlock enforces single-instance execution of the sync
// pipeline with a file lock, so two concurrent runs cannot double
// submit invoices.
package runlock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// ErrAlreadyRunning indicates another process holds the run lock.
var ErrAlreadyRunning = errors.New("another billsync run is already in progress")

// Lock guards a pipeline run via an advisory file lock.
type Lock struct {
	path string
	lock *flock.Flock
}

// New creates a lock at the given path without acquiring it.
func New(path string) *Lock {
	return &Lock{path: path, lock: flock.New(path)}
}

// Acquire takes the lock, failing fast when a concurrent run holds it.
func (l *Lock) Acquire() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("ensure lock directory: %w", err)
	}
	ok, err := l.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire run lock: %w", err)
	}
	if !ok {
		return ErrAlreadyRunning
	}
	return nil
}

// Release drops the lock. Safe to call when the lock was never taken.
func (l *Lock) Release() error {
	return l.lock.Unlock()
}
