package config

import (
	"fmt"
	"os"
	"strings"
	"unicode"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeImages()
	c.normalizeTools()
	c.normalizeLogging()
	return c.normalizeDatasets()
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.ImagesDir, err = expandPath(strings.TrimSpace(c.Paths.ImagesDir)); err != nil {
		return fmt.Errorf("paths.images_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(strings.TrimSpace(c.Paths.LogDir)); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if c.Paths.StateDir, err = expandPath(strings.TrimSpace(c.Paths.StateDir)); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	for host, mount := range c.Capacity.Hosts {
		expanded, err := expandPath(strings.TrimSpace(mount))
		if err != nil {
			return fmt.Errorf("capacity.hosts.%s: %w", host, err)
		}
		c.Capacity.Hosts[host] = expanded
	}
	return nil
}

func (c *Config) normalizeImages() {
	ext := strings.ToLower(strings.TrimSpace(c.Images.Extension))
	if ext == "" {
		ext = defaultImageExtension
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	c.Images.Extension = ext
}

func (c *Config) normalizeTools() {
	c.Tools.ShrinkBinary = strings.TrimSpace(c.Tools.ShrinkBinary)
	if c.Tools.ShrinkBinary == "" {
		c.Tools.ShrinkBinary = defaultShrinkBinary
	}
	c.Tools.RGBABinary = strings.TrimSpace(c.Tools.RGBABinary)
	if c.Tools.RGBABinary == "" {
		c.Tools.RGBABinary = defaultRGBABinary
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func (c *Config) normalizeDatasets() error {
	for name, ds := range c.Datasets {
		ds.Backend = strings.ToLower(strings.TrimSpace(ds.Backend))
		if ds.Backend == "" {
			ds.Backend = defaultBackend
		}
		ds.Host = strings.TrimSpace(ds.Host)
		ds.User = strings.TrimSpace(ds.User)
		ds.Bucket = strings.TrimSpace(ds.Bucket)
		ds.Dir = strings.TrimRight(strings.TrimSpace(ds.Dir), "/")
		if ds.Port == 0 && ds.Backend == BackendFTP {
			ds.Port = defaultFTPPort
		}
		if ds.TransientRetries == 0 {
			ds.TransientRetries = defaultTransientRetries
		}
		if ds.Timeout == 0 {
			ds.Timeout = defaultDialTimeout
		}
		if ds.Password == "" {
			ds.Password = passwordFromEnv(name)
		}
		c.Datasets[name] = ds
	}
	return nil
}

// passwordFromEnv checks HISTOSYNC_<DATASET>_PASSWORD then HISTOSYNC_PASSWORD.
func passwordFromEnv(dataset string) string {
	for _, key := range []string{"HISTOSYNC_" + envSegment(dataset) + "_PASSWORD", "HISTOSYNC_PASSWORD"} {
		if value, ok := os.LookupEnv(key); ok && strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

func envSegment(name string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			continue
		}
		b.WriteByte('_')
	}
	return b.String()
}
