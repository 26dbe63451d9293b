package logs_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"histosync/internal/logs"
)

func writeLog(t *testing.T, path, content string, mod time.Time) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}
	if err := os.Chtimes(path, mod, mod); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
}

func TestLatestPicksNewestForDataset(t *testing.T) {
	dir := t.TempDir()
	base := time.Now().Add(-time.Hour)
	writeLog(t, filepath.Join(dir, "brain01-sync-20260101T100000.log"), "a\n", base)
	writeLog(t, filepath.Join(dir, "brain01-fetch-downsamples-20260101T110000.log"), "b\n", base.Add(time.Minute))
	writeLog(t, filepath.Join(dir, "brain02-sync-20260101T120000.log"), "c\n", base.Add(2*time.Minute))

	latest, err := logs.Latest(dir, "brain01", "")
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if latest.Command != "fetch-downsamples" {
		t.Fatalf("expected fetch-downsamples log, got %+v", latest)
	}

	syncLog, err := logs.Latest(dir, "brain01", "sync")
	if err != nil {
		t.Fatalf("Latest sync: %v", err)
	}
	if filepath.Base(syncLog.Path) != "brain01-sync-20260101T100000.log" {
		t.Fatalf("unexpected sync log %s", syncLog.Path)
	}

	if _, err := logs.Latest(dir, "brain03", ""); !errors.Is(err, logs.ErrNoRunLogs) {
		t.Fatalf("expected ErrNoRunLogs, got %v", err)
	}
}

func TestLastReturnsTrailingLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.log")
	writeLog(t, path, "a\nb\nc\n", time.Now())

	lines, offset, err := logs.Last(path, 2)
	if err != nil {
		t.Fatalf("Last: %v", err)
	}
	if len(lines) != 2 || lines[0] != "b" || lines[1] != "c" {
		t.Fatalf("unexpected lines: %#v", lines)
	}
	if offset != 6 {
		t.Fatalf("expected offset 6, got %d", offset)
	}

	lines, _, err = logs.Last(path, 10)
	if err != nil || len(lines) != 3 {
		t.Fatalf("expected all lines, got %#v (%v)", lines, err)
	}
}

func TestFollowEmitsAppendedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.log")
	writeLog(t, path, "start\n", time.Now())

	_, offset, err := logs.Last(path, 1)
	if err != nil {
		t.Fatalf("Last: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		mu  sync.Mutex
		got []string
	)
	done := make(chan error, 1)
	go func() {
		done <- logs.Follow(ctx, path, offset, 10*time.Millisecond, func(line string) {
			mu.Lock()
			got = append(got, line)
			n := len(got)
			mu.Unlock()
			if n == 2 {
				cancel()
			}
		})
	}()

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := f.WriteString("next\nlast\n"); err != nil {
		t.Fatalf("append: %v", err)
	}
	_ = f.Close()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Follow: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("follow did not return")
	}
	mu.Lock()
	defer mu.Unlock()
	if len(got) != 2 || got[0] != "next" || got[1] != "last" {
		t.Fatalf("unexpected followed lines: %#v", got)
	}
}
