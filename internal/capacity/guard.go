package capacity

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/sys/unix"

	"histosync/internal/config"
	"histosync/internal/logging"
)

const bytesPerGB = 1 << 30

// statfsFunc returns the bytes available to unprivileged users at path.
type statfsFunc func(path string) (uint64, error)

// Guard answers how much space is available and waits for more.
type Guard struct {
	path      string
	reserveGB float64
	known     bool
	host      string
	interval  time.Duration
	logger    *slog.Logger

	statfs statfsFunc
	sleep  func(context.Context, time.Duration) error

	warnOnce sync.Once
}

// Option customises a Guard, mainly for tests.
type Option func(*Guard)

// WithStatfs replaces the filesystem probe.
func WithStatfs(fn func(path string) (uint64, error)) Option {
	return func(g *Guard) { g.statfs = fn }
}

// WithSleep replaces the wait between polls.
func WithSleep(fn func(context.Context, time.Duration) error) Option {
	return func(g *Guard) { g.sleep = fn }
}

// WithHostname overrides the detected hostname.
func WithHostname(name string) Option {
	return func(g *Guard) { g.host = name }
}

// New builds a guard for the images directory using the capacity settings.
func New(cfg config.Capacity, imagesDir string, logger *slog.Logger, opts ...Option) *Guard {
	g := &Guard{
		path:     imagesDir,
		interval: time.Duration(cfg.PollInterval) * time.Second,
		logger:   logging.NewComponentLogger(logger, "capacity"),
		statfs:   availableBytes,
		sleep:    sleepContext,
	}
	if host, err := os.Hostname(); err == nil {
		g.host = host
	}
	for _, opt := range opts {
		opt(g)
	}
	if mount, ok := lookupHost(cfg.Hosts, g.host); ok {
		g.path = mount
		g.known = true
	} else {
		g.reserveGB = cfg.FallbackReserveGB
	}
	if g.interval <= 0 {
		g.interval = time.Minute
	}
	return g
}

// Path returns the directory being probed.
func (g *Guard) Path() string {
	return g.path
}

// AvailableGigabytes returns free space in GiB. For an unrecognised host the
// fallback reserve is subtracted and the result never drops below zero.
func (g *Guard) AvailableGigabytes(ctx context.Context) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if !g.known {
		g.warnOnce.Do(func() {
			logging.WarnWithContext(g.logger, "host has no capacity profile; using conservative estimate", "capacity_unknown_host",
				logging.String("host", g.host),
				logging.String("path", g.path),
				logging.Float64("reserve_gb", g.reserveGB),
				logging.String(logging.FieldErrorHint, "add the host to [capacity.hosts] in config.toml"),
				logging.String(logging.FieldImpact, "downloads pause earlier than necessary"),
			)
		})
	}
	free, err := g.statfs(g.path)
	if err != nil {
		return 0, fmt.Errorf("capacity: statfs %s: %w", g.path, err)
	}
	gb := float64(free) / bytesPerGB
	if !g.known {
		gb -= g.reserveGB
		if gb < 0 {
			gb = 0
		}
	}
	return gb, nil
}

// AwaitCapacity blocks until at least thresholdGB is available, polling at
// the configured interval. It returns early only when ctx is cancelled or the
// probe fails.
func (g *Guard) AwaitCapacity(ctx context.Context, thresholdGB float64) error {
	waiting := false
	for {
		available, err := g.AvailableGigabytes(ctx)
		if err != nil {
			return err
		}
		if available >= thresholdGB {
			if waiting {
				g.logger.Info("disk space recovered", logging.String("available", formatGB(available)))
			}
			return nil
		}
		if !waiting {
			logging.WarnWithContext(g.logger, "insufficient disk space; waiting", "capacity_wait",
				logging.String("available", formatGB(available)),
				logging.String("required", formatGB(thresholdGB)),
				logging.Duration("poll_interval", g.interval),
				logging.String(logging.FieldErrorHint, "free space under "+g.path),
				logging.String(logging.FieldImpact, "downloads are paused"),
			)
			waiting = true
		} else {
			g.logger.Debug("still waiting for disk space", logging.String("available", formatGB(available)))
		}
		if err := g.sleep(ctx, g.interval); err != nil {
			return err
		}
	}
}

func lookupHost(hosts map[string]string, host string) (string, bool) {
	if host == "" {
		return "", false
	}
	if mount, ok := hosts[host]; ok && strings.TrimSpace(mount) != "" {
		return mount, true
	}
	short, _, _ := strings.Cut(host, ".")
	if mount, ok := hosts[short]; ok && strings.TrimSpace(mount) != "" {
		return mount, true
	}
	return "", false
}

func formatGB(gb float64) string {
	if gb <= 0 {
		return "0 B"
	}
	return humanize.IBytes(uint64(gb * bytesPerGB))
}

func availableBytes(path string) (uint64, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, err
	}
	return stat.Bavail * uint64(stat.Bsize), nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
