package staging

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"histosync/internal/fileutil"
	"histosync/internal/logging"
)

// CleanStaleResult contains the outcome of a stale partial file cleanup.
type CleanStaleResult struct {
	Removed []string
	Errors  []CleanupError
}

// CleanupError pairs a path with its cleanup error.
type CleanupError struct {
	Path  string
	Error error
}

// CleanStale removes in-flight files under root older than maxAge. Younger
// partial files are kept because a transfer may resume from them.
func CleanStale(ctx context.Context, root string, maxAge time.Duration, logger *slog.Logger) CleanStaleResult {
	result := CleanStaleResult{}
	partials, err := ListPartials(root)
	if err != nil {
		result.Errors = append(result.Errors, CleanupError{Path: root, Error: err})
		return result
	}

	cutoff := time.Now().Add(-maxAge)
	for _, partial := range partials {
		if ctx.Err() != nil {
			break
		}
		if !partial.ModTime.Before(cutoff) {
			continue
		}
		if err := os.Remove(partial.Path); err != nil && !os.IsNotExist(err) {
			result.Errors = append(result.Errors, CleanupError{Path: partial.Path, Error: err})
			if logger != nil {
				logger.Warn("failed to remove stale partial file",
					logging.String("path", partial.Path),
					logging.Error(err),
					logging.String(logging.FieldEventType, "staging_cleanup_failed"),
					logging.String(logging.FieldErrorHint, "check images_dir permissions"),
					logging.String(logging.FieldImpact, "disk space not reclaimed"),
				)
			}
			continue
		}
		result.Removed = append(result.Removed, partial.Path)
		if logger != nil {
			logger.Info("removed stale partial file",
				logging.String("path", partial.Path),
				logging.Duration("age", time.Since(partial.ModTime)),
				logging.String(logging.FieldEventType, "staging_cleanup"),
			)
		}
	}
	return result
}

// FileInfo describes an in-flight file.
type FileInfo struct {
	Path    string
	ModTime time.Time
	Size    int64
}

// ListPartials returns every in-flight file under root, sorted by path. A
// missing or blank root yields nothing.
func ListPartials(root string) ([]FileInfo, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, nil
	}
	if _, err := os.Stat(root); os.IsNotExist(err) {
		return nil, nil
	}

	var partials []FileInfo
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !fileutil.IsPartial(d.Name()) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		partials = append(partials, FileInfo{Path: path, ModTime: info.ModTime(), Size: info.Size()})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(partials, func(i, j int) bool { return partials[i].Path < partials[j].Path })
	return partials, nil
}

// DirSize returns the total size of regular files under path, best effort.
func DirSize(path string) int64 {
	var size int64
	_ = filepath.Walk(path, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !info.IsDir() {
			size += info.Size()
		}
		return nil
	})
	return size
}
