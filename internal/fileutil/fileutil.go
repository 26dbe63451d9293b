package fileutil

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// PartSuffix marks an in-flight transfer. Files carrying it are never counted
// as present.
const PartSuffix = ".part"

// PartPath returns the in-flight name for a transfer into target.
func PartPath(target string) string {
	return target + PartSuffix
}

// ToolPartPath returns an in-flight name that keeps target's extension, for
// external tools that pick their output format from the extension:
// "dir/0042.bmp" becomes "dir/0042.part.bmp".
func ToolPartPath(target string) string {
	ext := filepath.Ext(target)
	return strings.TrimSuffix(target, ext) + PartSuffix + ext
}

// IsPartial reports whether name is an in-flight file produced by PartPath or
// ToolPartPath.
func IsPartial(name string) bool {
	base := filepath.Base(name)
	if strings.HasSuffix(base, PartSuffix) {
		return true
	}
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return strings.HasSuffix(stem, PartSuffix)
}

// Commit atomically moves a completed in-flight file into place.
func Commit(part, target string) error {
	if err := os.Rename(part, target); err != nil {
		return fmt.Errorf("commit %s: %w", filepath.Base(target), err)
	}
	return nil
}

// RemoveIfExists deletes path, treating a missing file as success.
func RemoveIfExists(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// WritePartial streams r into the in-flight file for target and leaves it
// uncommitted. With resume set the data is appended to an existing partial
// file. It returns the number of bytes written.
func WritePartial(target string, r io.Reader, resume bool) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return 0, fmt.Errorf("create directory: %w", err)
	}
	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if resume {
		flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
	}
	out, err := os.OpenFile(PartPath(target), flags, 0o644)
	if err != nil {
		return 0, err
	}
	written, err := io.Copy(out, r)
	if err != nil {
		_ = out.Close()
		return written, err
	}
	return written, out.Close()
}

// WriteAtomic streams r into target through its in-flight file. On failure
// the partial file is left for resume or cleanup.
func WriteAtomic(target string, r io.Reader) (int64, error) {
	written, err := WritePartial(target, r, false)
	if err != nil {
		return written, err
	}
	return written, Commit(PartPath(target), target)
}

// PartialSize returns the size of an existing partial file for target, or 0.
func PartialSize(target string) int64 {
	info, err := os.Stat(PartPath(target))
	if err != nil || info.IsDir() {
		return 0
	}
	return info.Size()
}
