package inventory_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"histosync/internal/inventory"
	"histosync/internal/services"
	"histosync/internal/testsupport"
)

func TestListSkipsPartialsAndOtherFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"010.bmp", "002.BMP", "003.bmp.part", "004.part.bmp", ".hidden1.bmp", "notes.txt"} {
		testsupport.WriteFile(t, filepath.Join(dir, name), 1)
	}
	if err := os.Mkdir(filepath.Join(dir, "005.bmp"), 0o755); err != nil {
		t.Fatal(err)
	}

	images, err := inventory.List(dir, ".bmp")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(images) != 2 || images[0].Basename != "002" || images[1].Basename != "010" {
		t.Fatalf("unexpected images %+v", images)
	}
}

func TestListMissingDirIsEmpty(t *testing.T) {
	images, err := inventory.List(filepath.Join(t.TempDir(), "absent"), ".bmp")
	if err != nil || len(images) != 0 {
		t.Fatalf("expected empty listing, got %v (err=%v)", images, err)
	}
}

func TestListMalformedNameIsFatal(t *testing.T) {
	dir := t.TempDir()
	testsupport.WriteFile(t, filepath.Join(dir, "overview.bmp"), 1)
	_, err := inventory.List(dir, ".bmp")
	if !errors.Is(err, services.ErrValidation) || !services.IsFatal(err) {
		t.Fatalf("expected fatal validation error, got %v", err)
	}
}

func TestErrorListReadCreatesAndDedupes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "brain01", "error_files.txt")
	list := inventory.NewErrorList(path)

	names, err := list.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(names) != 0 {
		t.Fatalf("expected empty list, got %v", names)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected file to be created: %v", err)
	}

	if err := os.WriteFile(path, []byte("003\n\n  007 \n003\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	sorted, err := list.Sorted()
	if err != nil {
		t.Fatalf("Sorted: %v", err)
	}
	if len(sorted) != 2 || sorted[0] != "003" || sorted[1] != "007" {
		t.Fatalf("unexpected names %v", sorted)
	}
}

func TestErrorListAddAppendsOneLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "error_files.txt")
	list := inventory.NewErrorList(path)
	for _, name := range []string{"001", "002"} {
		if err := list.Add(name); err != nil {
			t.Fatalf("Add(%s): %v", name, err)
		}
	}
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(content) != "001\n002\n" {
		t.Fatalf("unexpected file content %q", content)
	}
	if err := list.Add("bad\nname"); err == nil {
		t.Fatal("expected multi-line basename to be rejected")
	}
}
