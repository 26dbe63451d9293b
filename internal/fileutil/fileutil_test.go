package fileutil

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestPartNaming(t *testing.T) {
	if got := PartPath("/d/0042.bmp"); got != "/d/0042.bmp.part" {
		t.Fatalf("PartPath = %q", got)
	}
	if got := ToolPartPath("/d/0042.bmp"); got != "/d/0042.part.bmp" {
		t.Fatalf("ToolPartPath = %q", got)
	}
	for name, want := range map[string]bool{
		"0042.bmp.part": true,
		"0042.part.bmp": true,
		"0042.bmp":      false,
		"partial.bmp":   false,
	} {
		if got := IsPartial(name); got != want {
			t.Fatalf("IsPartial(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestWriteAtomicCommitsOnSuccess(t *testing.T) {
	target := filepath.Join(t.TempDir(), "nested", "0001.bmp")
	n, err := WriteAtomic(target, strings.NewReader("pixels"))
	if err != nil {
		t.Fatalf("WriteAtomic: %v", err)
	}
	if n != 6 {
		t.Fatalf("expected 6 bytes written, got %d", n)
	}
	got, err := os.ReadFile(target)
	if err != nil || string(got) != "pixels" {
		t.Fatalf("unexpected target content %q (err=%v)", got, err)
	}
	if _, err := os.Stat(PartPath(target)); !os.IsNotExist(err) {
		t.Fatalf("expected partial file to be gone, stat err=%v", err)
	}
}

type failingReader struct{ sent bool }

func (r *failingReader) Read(p []byte) (int, error) {
	if !r.sent {
		r.sent = true
		return copy(p, "half"), nil
	}
	return 0, errors.New("connection reset")
}

func TestWriteAtomicLeavesPartialOnFailure(t *testing.T) {
	target := filepath.Join(t.TempDir(), "0002.bmp")
	if _, err := WriteAtomic(target, &failingReader{}); err == nil {
		t.Fatal("expected copy error")
	}
	if _, err := os.Stat(target); !os.IsNotExist(err) {
		t.Fatalf("target must not exist after failed transfer, stat err=%v", err)
	}
	if size := PartialSize(target); size != 4 {
		t.Fatalf("expected 4 partial bytes, got %d", size)
	}

	if _, err := WritePartial(target, strings.NewReader("-rest"), true); err != nil {
		t.Fatalf("WritePartial: %v", err)
	}
	if err := Commit(PartPath(target), target); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	got, err := os.ReadFile(target)
	if err != nil || string(got) != "half-rest" {
		t.Fatalf("unexpected resumed content %q (err=%v)", got, err)
	}
}

func TestRemoveIfExists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gone")
	if err := RemoveIfExists(path); err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := RemoveIfExists(path); err != nil {
		t.Fatalf("RemoveIfExists: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected file removed, stat err=%v", err)
	}
}
