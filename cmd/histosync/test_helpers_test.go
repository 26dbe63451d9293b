package main

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"histosync/internal/config"
	"histosync/internal/testsupport"
	"histosync/internal/transport"
)

const (
	testDataset   = "brain01"
	testRemoteDir = "/data/brain01"
	testRatio     = 4
)

type cliTestEnv struct {
	cfg        *config.Config
	remote     *testsupport.Remote
	configPath string
	baseDir    string
	binDir     string
}

// shrinkScript copies the source to the destination and rejects any image
// whose name starts with "bad".
const shrinkScript = `case "$(basename "$1")" in bad*) exit 3;; esac
cp "$1" "$2"`

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t, testsupport.WithDataset(testDataset, testRemoteDir, testRatio))
	base := testsupport.BaseDir(cfg)
	homeDir := filepath.Join(base, "home")
	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		t.Fatalf("mkdir home: %v", err)
	}
	t.Setenv("HOME", homeDir)

	binDir := filepath.Join(base, "bin")
	testsupport.StubBinary(t, binDir, cfg.Tools.ShrinkBinary, shrinkScript)
	testsupport.StubBinary(t, binDir, cfg.Tools.RGBABinary, `cp "$1" "$2"`)
	testsupport.PrependPath(t, binDir)

	configPath := filepath.Join(base, "histosync.toml")
	writeTestConfig(t, configPath, cfg)

	remote := testsupport.NewRemote()
	remote.AddDir(testRemoteDir)
	previous := openTransport
	openTransport = func(context.Context, config.Dataset, *slog.Logger) (transport.Transport, error) {
		return remote, nil
	}
	t.Cleanup(func() { openTransport = previous })

	return &cliTestEnv{
		cfg:        cfg,
		remote:     remote,
		configPath: configPath,
		baseDir:    base,
		binDir:     binDir,
	}
}

func (e *cliTestEnv) run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	return runCLI(t, args, e.configPath)
}

func (e *cliTestEnv) datasetRoot() string {
	return filepath.Join(e.cfg.Paths.ImagesDir, testDataset)
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

// writeTestConfig renders the fields the CLI reads. The capacity guard gets a
// tiny threshold and no reserve so downloads never wait in tests.
func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	var b strings.Builder
	fmt.Fprintf(&b, "[paths]\nimages_dir = %q\nlog_dir = %q\nstate_dir = %q\n\n",
		cfg.Paths.ImagesDir, cfg.Paths.LogDir, cfg.Paths.StateDir)
	fmt.Fprintf(&b, "[capacity]\nthreshold_gb = 0.001\npoll_interval = 1\nfallback_reserve_gb = 0.0\n\n")
	fmt.Fprintf(&b, "[workflow]\npoll_interval = 1\nempty_checks = 1\n\n")
	fmt.Fprintf(&b, "[logging]\nlevel = \"warn\"\n\n")
	for _, name := range cfg.DatasetNames() {
		ds := cfg.Datasets[name]
		fmt.Fprintf(&b, "[datasets.%s]\ndownsample_ratio = %d\nhost = %q\nuser = %q\npassword = %q\ndir = %q\n\n",
			name, ds.DownsampleRatio, ds.Host, ds.User, ds.Password, ds.Dir)
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
