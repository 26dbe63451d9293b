package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains the local directories histosync reads and writes.
type Paths struct {
	ImagesDir string `toml:"images_dir"`
	LogDir    string `toml:"log_dir"`
	StateDir  string `toml:"state_dir"`
}

// Images describes which files count as slice images.
type Images struct {
	Extension string `toml:"extension"`
}

// Capacity controls the free disk space guard that precedes downloads.
type Capacity struct {
	ThresholdGB       float64 `toml:"threshold_gb"`
	PollInterval      int     `toml:"poll_interval"`
	FallbackReserveGB float64 `toml:"fallback_reserve_gb"`
	// Hosts maps a hostname to the mount point whose free space should be
	// probed on that host.
	Hosts map[string]string `toml:"hosts"`
}

// Tools names the external image-processing executables.
type Tools struct {
	ShrinkBinary string `toml:"shrink_binary"`
	RGBABinary   string `toml:"rgba_binary"`
	Timeout      int    `toml:"timeout"`
}

// Workflow contains stage runner timing.
type Workflow struct {
	PollInterval   int `toml:"poll_interval"`
	EmptyChecks    int `toml:"empty_checks"`
	MaxStall       int `toml:"max_stall"`
	StalePartHours int `toml:"stale_part_hours"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Journal toggles the SQLite run journal.
type Journal struct {
	Enabled bool `toml:"enabled"`
}

// Dataset holds the remote archive settings for one named dataset.
type Dataset struct {
	DownsampleRatio  int    `toml:"downsample_ratio"`
	Backend          string `toml:"backend"`
	Host             string `toml:"host"`
	Port             int    `toml:"port"`
	User             string `toml:"user"`
	Password         string `toml:"password"`
	Dir              string `toml:"dir"`
	Bucket           string `toml:"bucket"`
	UseTLS           bool   `toml:"use_tls"`
	Timeout          int    `toml:"timeout"`
	TransientRetries int    `toml:"transient_retries"`
	Resume           *bool  `toml:"resume"`
}

// Config encapsulates all configuration values for histosync.
//
// Configuration sections:
//   - Paths: local images, logs and state directories
//   - Images: slice image extension
//   - Capacity: free space threshold and per-host probe mounts
//   - Tools: external shrink and RGBA conversion binaries
//   - Workflow: stall polling and completion confirmation
//   - Logging: log format, level and retention
//   - Journal: run history database
//   - Datasets: remote archive per dataset name
type Config struct {
	Paths    Paths              `toml:"paths"`
	Images   Images             `toml:"images"`
	Capacity Capacity           `toml:"capacity"`
	Tools    Tools              `toml:"tools"`
	Workflow Workflow           `toml:"workflow"`
	Logging  Logging            `toml:"logging"`
	Journal  Journal            `toml:"journal"`
	Datasets map[string]Dataset `toml:"datasets"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. A .env file next
// to the configuration is loaded first so secrets can stay out of the TOML.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	loadDotEnv(filepath.Dir(resolvedPath))

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func loadDotEnv(dir string) {
	candidate := filepath.Join(dir, ".env")
	if info, err := os.Stat(candidate); err != nil || info.IsDir() {
		return
	}
	// Existing environment variables win over the file.
	_ = godotenv.Load(candidate)
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs(projectConfigName)
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the images, log and state directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.ImagesDir, c.Paths.LogDir, c.Paths.StateDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// Dataset returns the settings for the named dataset.
func (c *Config) Dataset(name string) (Dataset, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Dataset{}, errors.New("dataset name is required (use --dataset)")
	}
	ds, ok := c.Datasets[name]
	if !ok {
		return Dataset{}, fmt.Errorf("dataset %q is not configured; add a [datasets.%s] table", name, name)
	}
	return ds, nil
}

// DatasetNames returns configured dataset names in sorted order.
func (c *Config) DatasetNames() []string {
	names := make([]string, 0, len(c.Datasets))
	for name := range c.Datasets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// JournalPath returns the SQLite run journal location.
func (c *Config) JournalPath() string {
	return filepath.Join(c.Paths.StateDir, "journal.db")
}

// LockPath returns the run lock file for a dataset.
func (c *Config) LockPath(dataset string) string {
	return filepath.Join(c.Paths.StateDir, dataset+".lock")
}

// CapacityPollInterval returns the free space polling interval.
func (c *Config) CapacityPollInterval() time.Duration {
	return time.Duration(c.Capacity.PollInterval) * time.Second
}

// WorkflowPollInterval returns the sleep used while a stage is stalled.
func (c *Config) WorkflowPollInterval() time.Duration {
	return time.Duration(c.Workflow.PollInterval) * time.Second
}

// MaxStall returns how long a stalled stage may wait; zero means no limit.
func (c *Config) MaxStall() time.Duration {
	return time.Duration(c.Workflow.MaxStall) * time.Second
}

// ToolTimeout returns the per-invocation external tool timeout; zero means none.
func (c *Config) ToolTimeout() time.Duration {
	return time.Duration(c.Tools.Timeout) * time.Second
}

// ResumeEnabled reports whether partial downloads should be resumed.
func (d Dataset) ResumeEnabled() bool {
	if d.Resume == nil {
		return defaultResume
	}
	return *d.Resume
}

// DialTimeout returns the connection timeout for the dataset's remote.
func (d Dataset) DialTimeout() time.Duration {
	return time.Duration(d.Timeout) * time.Second
}

// Address returns host:port for the dataset's remote.
func (d Dataset) Address() string {
	if d.Port <= 0 {
		return d.Host
	}
	return fmt.Sprintf("%s:%d", d.Host, d.Port)
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	absolute, err := filepath.Abs(filepath.Clean(pathValue))
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", pathValue, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
