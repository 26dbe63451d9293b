package main

import (
	"fmt"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"histosync/internal/config"
	"histosync/internal/dataset"
	"histosync/internal/transport"
)

// openTransport is replaced in tests with an in-memory archive.
var openTransport = transport.Open

type globalFlags struct {
	config   string
	dataset  string
	ratio    int
	logLevel string
}

type commandContext struct {
	flags *globalFlags

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(flags *globalFlags) *commandContext {
	return &commandContext{flags: flags}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, _, _, err := config.Load(strings.TrimSpace(c.flags.config))
		if err != nil {
			c.configErr = err
			return
		}
		if level := strings.TrimSpace(c.flags.logLevel); level != "" {
			cfg.Logging.Level = level
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) configValue() *config.Config {
	cfg, _ := c.ensureConfig()
	return cfg
}

// dataset resolves --dataset against the configuration, applying --ratio.
func (c *commandContext) dataset() (config.Dataset, dataset.Dataset, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return config.Dataset{}, dataset.Dataset{}, err
	}
	name := strings.TrimSpace(c.flags.dataset)
	settings, err := cfg.Dataset(name)
	if err != nil {
		return config.Dataset{}, dataset.Dataset{}, err
	}
	ratio := settings.DownsampleRatio
	if c.flags.ratio != 0 {
		ratio = c.flags.ratio
	}
	ds, err := datasetLayout(cfg, name, settings, ratio)
	if err != nil {
		return config.Dataset{}, dataset.Dataset{}, err
	}
	return settings, ds, nil
}

func datasetLayout(cfg *config.Config, name string, settings config.Dataset, ratio int) (dataset.Dataset, error) {
	ds, err := dataset.New(name, ratio, cfg.Images.Extension, cfg.Paths.ImagesDir, settings.Dir)
	if err != nil {
		return dataset.Dataset{}, fmt.Errorf("dataset: %w", err)
	}
	return ds, nil
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
