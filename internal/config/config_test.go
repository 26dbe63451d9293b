package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"histosync/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantImages := filepath.Join(tempHome, ".local", "share", "histosync", "images")
	if cfg.Paths.ImagesDir != wantImages {
		t.Fatalf("unexpected images dir: got %q want %q", cfg.Paths.ImagesDir, wantImages)
	}
	if cfg.Images.Extension != ".bmp" {
		t.Fatalf("unexpected extension %q", cfg.Images.Extension)
	}
	if cfg.Capacity.ThresholdGB != 5 {
		t.Fatalf("unexpected threshold %v", cfg.Capacity.ThresholdGB)
	}
	if cfg.CapacityPollInterval() != time.Minute {
		t.Fatalf("unexpected capacity poll interval %s", cfg.CapacityPollInterval())
	}
	if cfg.WorkflowPollInterval() != 10*time.Second {
		t.Fatalf("unexpected workflow poll interval %s", cfg.WorkflowPollInterval())
	}
	if !cfg.Journal.Enabled {
		t.Fatal("expected journal enabled by default")
	}
	if got := cfg.JournalPath(); got != filepath.Join(tempHome, ".local", "share", "histosync", "state", "journal.db") {
		t.Fatalf("unexpected journal path %q", got)
	}
}

func TestLoadDatasetAppliesDefaultsAndEnvPassword(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("HISTOSYNC_BRAIN_01_PASSWORD", "s3cret")

	path := filepath.Join(tempHome, "histosync.toml")
	writeConfig(t, path, `
[paths]
images_dir = "~/images"

[datasets.brain-01]
downsample_ratio = 4
host = "archive.example.org"
user = "histology"
dir = "/data/brain01/"
`)

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("expected config at %s, got %s (exists=%v)", path, resolved, exists)
	}
	if cfg.Paths.ImagesDir != filepath.Join(tempHome, "images") {
		t.Fatalf("unexpected images dir %q", cfg.Paths.ImagesDir)
	}

	ds, err := cfg.Dataset("brain-01")
	if err != nil {
		t.Fatalf("Dataset: %v", err)
	}
	if ds.Backend != config.BackendFTP {
		t.Fatalf("expected ftp backend, got %q", ds.Backend)
	}
	if ds.Port != 21 || ds.Address() != "archive.example.org:21" {
		t.Fatalf("unexpected address %q", ds.Address())
	}
	if ds.Dir != "/data/brain01" {
		t.Fatalf("expected trailing slash trimmed, got %q", ds.Dir)
	}
	if ds.Password != "s3cret" {
		t.Fatalf("expected password from env, got %q", ds.Password)
	}
	if !ds.ResumeEnabled() {
		t.Fatal("expected resume enabled by default")
	}
	if ds.TransientRetries != 3 {
		t.Fatalf("unexpected transient retries %d", ds.TransientRetries)
	}
}

func TestLoadReadsDotEnvBesideConfig(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	// Register cleanup for the variable the .env file will set.
	t.Setenv("HISTOSYNC_PASSWORD", "")
	os.Unsetenv("HISTOSYNC_PASSWORD")

	dir := filepath.Join(tempHome, "cfg")
	path := filepath.Join(dir, "config.toml")
	writeConfig(t, path, `
[datasets.lung]
downsample_ratio = 2
host = "ftp.example.org"
dir = "/lung"
`)
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("HISTOSYNC_PASSWORD=from-dotenv\n"), 0o600); err != nil {
		t.Fatalf("write .env: %v", err)
	}

	cfg, _, _, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if got := cfg.Datasets["lung"].Password; got != "from-dotenv" {
		t.Fatalf("expected password from .env, got %q", got)
	}
}

func TestValidateRejectsBadDatasets(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{
			name:    "missing ratio",
			body:    "[datasets.a]\nhost = \"h\"\ndir = \"/d\"\n",
			wantErr: "downsample_ratio",
		},
		{
			name:    "missing host",
			body:    "[datasets.a]\ndownsample_ratio = 2\ndir = \"/d\"\n",
			wantErr: "host",
		},
		{
			name:    "unknown backend",
			body:    "[datasets.a]\ndownsample_ratio = 2\nhost = \"h\"\ndir = \"/d\"\nbackend = \"nfs\"\n",
			wantErr: "backend",
		},
		{
			name:    "s3 without bucket",
			body:    "[datasets.a]\ndownsample_ratio = 2\nhost = \"h\"\ndir = \"d\"\nbackend = \"s3\"\n",
			wantErr: "bucket",
		},
		{
			name:    "bad log format",
			body:    "[logging]\nformat = \"xml\"\n",
			wantErr: "logging.format",
		},
		{
			name:    "non positive threshold",
			body:    "[capacity]\nthreshold_gb = 0.0\n",
			wantErr: "capacity.threshold_gb",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("HOME", t.TempDir())
			path := filepath.Join(t.TempDir(), "config.toml")
			writeConfig(t, path, tt.body)
			_, _, _, err := config.Load(path)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected %q in error, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestDatasetLookupErrors(t *testing.T) {
	cfg := config.Default()
	if _, err := cfg.Dataset(""); err == nil {
		t.Fatal("expected error for empty dataset name")
	}
	if _, err := cfg.Dataset("missing"); err == nil || !strings.Contains(err.Error(), "not configured") {
		t.Fatalf("expected not configured error, got %v", err)
	}
}

func TestCreateSampleIsLoadable(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("sample config did not load: %v", err)
	}
	if !exists {
		t.Fatal("expected sample config to exist")
	}
	if len(cfg.Datasets) != 0 {
		t.Fatalf("expected sample datasets to be commented out, got %v", cfg.DatasetNames())
	}
}

func writeConfig(t *testing.T, path, body string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}
