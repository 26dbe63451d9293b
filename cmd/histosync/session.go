package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"histosync/internal/config"
	"histosync/internal/dataset"
	"histosync/internal/journal"
	"histosync/internal/logging"
	"histosync/internal/preflight"
	"histosync/internal/reconcile"
	"histosync/internal/runlock"
	"histosync/internal/services"
	"histosync/internal/stageexec"
	"histosync/internal/staging"
	"histosync/internal/transport"
)

// session holds everything one stage command needs against a dataset.
type session struct {
	cfg      *config.Config
	settings config.Dataset
	ds       dataset.Dataset
	logger   *slog.Logger
	logPath  string
	lock     *runlock.Lock
	journal  *journal.Journal
	run      journal.Run
	remote   transport.Transport
	recon    *reconcile.Reconciler
}

type sessionOptions struct {
	command string
	// exclusive takes the dataset run lock and starts a journal run.
	exclusive bool
	tools     preflight.Requirements
	// offline skips connecting to the remote archive.
	offline bool
}

func runLogName(dataset, command string, now time.Time) string {
	return fmt.Sprintf("%s-%s-%s.log", dataset, command, now.Format("20060102T150405"))
}

// openSession prepares a dataset for a command. On error everything opened
// so far is released.
func (c *commandContext) openSession(ctx context.Context, opts sessionOptions) (s *session, err error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	settings, ds, err := c.dataset()
	if err != nil {
		return nil, err
	}

	s = &session{cfg: cfg, settings: settings, ds: ds}
	defer func() {
		if err != nil {
			s.close(ctx, err)
			s = nil
		}
	}()

	logFile := ""
	if opts.exclusive {
		logFile = runLogName(ds.Name, opts.command, time.Now())
	}
	logger, err := logging.NewFromConfig(cfg, logFile)
	if err != nil {
		return s, fmt.Errorf("init logger: %w", err)
	}
	s.logger = logger.With(logging.String(logging.FieldDataset, ds.Name))
	if logFile != "" {
		s.logPath = filepath.Join(cfg.Paths.LogDir, logFile)
		logging.PruneRunLogs(s.logger, cfg.Paths.LogDir, ds.Name+"-*.log", s.logPath, cfg.Logging.RetentionDays)
	}

	if opts.exclusive {
		lock, err := runlock.Acquire(cfg.LockPath(ds.Name), ds.Name)
		if err != nil {
			return s, err
		}
		s.lock = lock
	}

	if cfg.Journal.Enabled {
		j, err := journal.Open(cfg.JournalPath())
		if err != nil {
			return s, err
		}
		s.journal = j
		if opts.exclusive {
			// The lock is ours, so any run still marked running was killed.
			if n, err := j.MarkInterrupted(ctx, ds.Name); err != nil {
				s.logger.Warn("could not mark stale runs", logging.Error(err))
			} else if n > 0 {
				s.logger.Info("marked stale runs interrupted", logging.Int64("runs", n))
			}
			run, err := j.StartRun(ctx, ds.Name, opts.command)
			if err != nil {
				return s, err
			}
			s.run = run
			s.logger = s.logger.With(logging.String(logging.FieldRunID, run.ID))
		}
	}

	if opts.exclusive {
		maxAge := time.Duration(cfg.Workflow.StalePartHours) * time.Hour
		cleaned := staging.CleanStale(ctx, ds.Root(), maxAge, s.logger)
		if len(cleaned.Removed) > 0 {
			s.logger.Info("stale partial files removed", logging.Int("count", len(cleaned.Removed)))
		}

		if failed := preflight.Failed(preflight.RunAll(ctx, cfg, opts.tools)); len(failed) > 0 {
			parts := make([]string, 0, len(failed))
			for _, r := range failed {
				parts = append(parts, fmt.Sprintf("%s: %s", r.Name, r.Detail))
			}
			return s, services.Wrap(services.ErrConfiguration, opts.command, "preflight", strings.Join(parts, "; "), nil)
		}
	}

	if opts.offline {
		return s, nil
	}
	if err := s.connect(ctx); err != nil {
		return s, err
	}
	return s, nil
}

// connect opens the remote archive and the reconciler over it.
func (s *session) connect(ctx context.Context) error {
	remote, err := openTransport(ctx, s.settings, s.logger)
	if err != nil {
		return err
	}
	s.remote = remote
	s.recon = reconcile.New(s.ds, remote, s.logger)
	return nil
}

// recorder returns the journal as an event sink when a run is open.
func (s *session) recorder() stageexec.Recorder {
	if s.journal == nil || s.run.ID == "" {
		return nil
	}
	return s.journal
}

// close finishes the journal run with a status derived from runErr and
// releases the lock, the remote and the journal.
func (s *session) close(ctx context.Context, runErr error) {
	if s == nil {
		return
	}
	finishCtx := context.WithoutCancel(ctx)
	if s.journal != nil && s.run.ID != "" {
		if err := s.journal.FinishRun(finishCtx, s.run.ID, runStatusFor(runErr), runErr); err != nil && s.logger != nil {
			s.logger.Warn("journal run not finished", logging.Error(err))
		}
	}
	if s.remote != nil {
		if err := s.remote.Close(); err != nil && s.logger != nil {
			s.logger.Debug("remote close failed", logging.Error(err))
		}
	}
	if s.journal != nil {
		_ = s.journal.Close()
	}
	if s.lock != nil {
		_ = s.lock.Release()
	}
}

func runStatusFor(err error) journal.RunStatus {
	switch {
	case err == nil:
		return journal.RunCompleted
	case errors.Is(err, context.Canceled):
		return journal.RunInterrupted
	default:
		return journal.RunFailed
	}
}
