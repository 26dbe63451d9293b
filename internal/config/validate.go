package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateCapacity(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return c.validateDatasets()
}

func (c *Config) validatePaths() error {
	if c.Paths.ImagesDir == "" {
		return errors.New("paths.images_dir must be set")
	}
	if c.Paths.StateDir == "" {
		return errors.New("paths.state_dir must be set")
	}
	if len(c.Images.Extension) < 2 {
		return errors.New("images.extension must name a file extension such as .bmp")
	}
	return nil
}

func (c *Config) validateCapacity() error {
	if c.Capacity.ThresholdGB <= 0 {
		return errors.New("capacity.threshold_gb must be positive")
	}
	if c.Capacity.PollInterval <= 0 {
		return errors.New("capacity.poll_interval must be positive")
	}
	if c.Capacity.FallbackReserveGB < 0 {
		return errors.New("capacity.fallback_reserve_gb must be zero or positive")
	}
	for host, mount := range c.Capacity.Hosts {
		if strings.TrimSpace(host) == "" || mount == "" {
			return errors.New("capacity.hosts entries need a hostname and a mount path")
		}
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	return ensurePositiveMap(map[string]int{
		"workflow.poll_interval":    c.Workflow.PollInterval,
		"workflow.empty_checks":     c.Workflow.EmptyChecks,
		"workflow.stale_part_hours": c.Workflow.StalePartHours,
	}, func() error {
		if c.Workflow.MaxStall < 0 {
			return errors.New("workflow.max_stall must be zero or positive")
		}
		if c.Tools.Timeout < 0 {
			return errors.New("tools.timeout must be zero or positive")
		}
		return nil
	})
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error, got %q", c.Logging.Level)
	}
	if c.Logging.RetentionDays < 0 {
		return errors.New("logging.retention_days must be zero or positive")
	}
	return nil
}

func (c *Config) validateDatasets() error {
	for _, name := range c.DatasetNames() {
		ds := c.Datasets[name]
		if strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
			return fmt.Errorf("datasets.%s: name must not contain path separators", name)
		}
		if ds.DownsampleRatio < 1 {
			return fmt.Errorf("datasets.%s.downsample_ratio must be a positive integer", name)
		}
		if ds.Host == "" {
			return fmt.Errorf("datasets.%s.host must be set", name)
		}
		if ds.Dir == "" {
			return fmt.Errorf("datasets.%s.dir must name the remote originals directory", name)
		}
		if ds.Port < 0 || ds.Port > 65535 {
			return fmt.Errorf("datasets.%s.port must be between 0 and 65535", name)
		}
		if ds.TransientRetries < 0 {
			return fmt.Errorf("datasets.%s.transient_retries must be zero or positive", name)
		}
		switch ds.Backend {
		case BackendFTP:
		case BackendS3:
			if ds.Bucket == "" {
				return fmt.Errorf("datasets.%s.bucket must be set for the s3 backend", name)
			}
		default:
			return fmt.Errorf("datasets.%s.backend must be ftp or s3, got %q", name, ds.Backend)
		}
	}
	return nil
}

func ensurePositiveMap(values map[string]int, next func() error) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	if next != nil {
		return next()
	}
	return nil
}
