package runlock

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestAcquireIsExclusive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "brain.lock")

	first, err := Acquire(path, "brain")
	if err != nil {
		t.Fatalf("first Acquire: %v", err)
	}
	if first.Path() != path {
		t.Fatalf("Path = %s", first.Path())
	}

	if _, err := Acquire(path, "brain"); !errors.Is(err, ErrHeld) {
		t.Fatalf("expected ErrHeld, got %v", err)
	}

	if err := first.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	second, err := Acquire(path, "brain")
	if err != nil {
		t.Fatalf("Acquire after release: %v", err)
	}
	_ = second.Release()
}

func TestDatasetsLockIndependently(t *testing.T) {
	dir := t.TempDir()
	a, err := Acquire(filepath.Join(dir, "a.lock"), "a")
	if err != nil {
		t.Fatal(err)
	}
	defer a.Release()
	b, err := Acquire(filepath.Join(dir, "b.lock"), "b")
	if err != nil {
		t.Fatalf("independent dataset blocked: %v", err)
	}
	defer b.Release()
}
