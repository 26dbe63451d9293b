package logs

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// ErrNoRunLogs reports that a dataset has no run log yet.
var ErrNoRunLogs = errors.New("no run logs")

// RunLog is one per-run log file.
type RunLog struct {
	Path    string
	Command string
	ModTime time.Time
}

// RunLogs lists the run logs for dataset in dir, newest first. When command
// is non-empty only that command's logs are returned.
func RunLogs(dir, dataset, command string) ([]RunLog, error) {
	prefix := dataset + "-"
	matches, err := filepath.Glob(filepath.Join(dir, prefix+"*.log"))
	if err != nil {
		return nil, fmt.Errorf("list run logs: %w", err)
	}
	logs := make([]RunLog, 0, len(matches))
	for _, path := range matches {
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			continue
		}
		cmd := commandFromName(strings.TrimPrefix(filepath.Base(path), prefix))
		if command != "" && cmd != command {
			continue
		}
		logs = append(logs, RunLog{Path: path, Command: cmd, ModTime: info.ModTime()})
	}
	sort.SliceStable(logs, func(i, j int) bool {
		if logs[i].ModTime.Equal(logs[j].ModTime) {
			return logs[i].Path > logs[j].Path
		}
		return logs[i].ModTime.After(logs[j].ModTime)
	})
	return logs, nil
}

// Latest returns the newest run log for dataset.
func Latest(dir, dataset, command string) (RunLog, error) {
	logs, err := RunLogs(dir, dataset, command)
	if err != nil {
		return RunLog{}, err
	}
	if len(logs) == 0 {
		return RunLog{}, fmt.Errorf("%w for dataset %q in %s", ErrNoRunLogs, dataset, dir)
	}
	return logs[0], nil
}

// commandFromName extracts the command from "<command>-<timestamp>.log".
func commandFromName(rest string) string {
	rest = strings.TrimSuffix(rest, ".log")
	idx := strings.LastIndex(rest, "-")
	if idx <= 0 {
		return rest
	}
	return rest[:idx]
}

// Last returns up to limit trailing lines of path and the offset just past
// them. A limit of zero returns no lines and the end offset.
func Last(path string, limit int) ([]string, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	if limit <= 0 {
		end, err := file.Seek(0, io.SeekEnd)
		if err != nil {
			return nil, 0, fmt.Errorf("seek log file: %w", err)
		}
		return nil, end, nil
	}

	ring := make([]string, limit)
	count, next := 0, 0
	offset, err := scanLines(file, func(line string) {
		ring[next] = line
		next = (next + 1) % limit
		if count < limit {
			count++
		}
	})
	if err != nil {
		return nil, 0, err
	}

	lines := make([]string, 0, count)
	start := 0
	if count == limit {
		start = next
	}
	for i := 0; i < count; i++ {
		lines = append(lines, ring[(start+i)%limit])
	}
	return lines, offset, nil
}

// Follow emits every complete line written to path after offset, polling
// every interval until ctx is done. A truncated file is read from the start.
func Follow(ctx context.Context, path string, offset int64, interval time.Duration, emit func(string)) error {
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		next, err := readFrom(path, offset, emit)
		if err != nil {
			return err
		}
		offset = next

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func readFrom(path string, offset int64, emit func(string)) (int64, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return offset, nil
		}
		return offset, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return offset, fmt.Errorf("stat log file: %w", err)
	}
	if offset > info.Size() {
		offset = 0
	}
	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return offset, fmt.Errorf("seek log file: %w", err)
	}

	read, err := scanLines(file, emit)
	if err != nil {
		return offset, err
	}
	return offset + read, nil
}

// scanLines emits each newline-terminated line of r and returns the bytes
// consumed. A trailing partial line is left for the next read.
func scanLines(r io.Reader, emit func(string)) (int64, error) {
	reader := bufio.NewReaderSize(r, 64*1024)
	var consumed int64
	for {
		line, err := reader.ReadString('\n')
		if err == nil {
			consumed += int64(len(line))
			emit(strings.TrimRight(line, "\r\n"))
			continue
		}
		if errors.Is(err, io.EOF) {
			return consumed, nil
		}
		return consumed, fmt.Errorf("read log file: %w", err)
	}
}
