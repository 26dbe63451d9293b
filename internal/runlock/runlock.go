// Package runlock prevents two histosync processes from working on the same
// dataset at once.
package runlock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// ErrHeld is returned when another process owns the dataset lock.
var ErrHeld = errors.New("dataset lock held")

// Lock is an acquired per-dataset lock.
type Lock struct {
	dataset string
	lock    *flock.Flock
}

// Acquire takes the lock at path without blocking.
func Acquire(path, dataset string) (*Lock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}
	lock := flock.New(path)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: another histosync run for dataset %s is already running", ErrHeld, dataset)
	}
	return &Lock{dataset: dataset, lock: lock}, nil
}

// Path returns the lock file.
func (l *Lock) Path() string {
	return l.lock.Path()
}

// Release unlocks. The lock file is left in place.
func (l *Lock) Release() error {
	if l == nil || l.lock == nil {
		return nil
	}
	return l.lock.Unlock()
}
