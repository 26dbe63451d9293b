package workflow

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"histosync/internal/config"
	"histosync/internal/stage"
	"histosync/internal/stageexec"
)

// ErrStallTimeout is returned when a stage waits on upstream work for longer
// than the configured maximum.
var ErrStallTimeout = errors.New("stage stalled longer than workflow.max_stall")

// Reporter receives progress after every snapshot.
type Reporter interface {
	Report(stageName string, p stage.Progress)
}

// Options controls runner timing and side channels.
type Options struct {
	PollInterval time.Duration
	EmptyChecks  int
	MaxStall     time.Duration
	// Follow keeps a stalled stage waiting for upstream work instead of
	// returning once its current queue is drained.
	Follow   bool
	RunID    string
	Recorder stageexec.Recorder
	Reporter Reporter
	Logger   *slog.Logger

	sleep func(context.Context, time.Duration) error
	now   func() time.Time
}

// OptionsFromConfig fills timing from the workflow configuration.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		PollInterval: cfg.WorkflowPollInterval(),
		EmptyChecks:  cfg.Workflow.EmptyChecks,
		MaxStall:     cfg.MaxStall(),
	}
}

func (o Options) withDefaults() Options {
	if o.PollInterval <= 0 {
		o.PollInterval = 10 * time.Second
	}
	if o.EmptyChecks <= 0 {
		o.EmptyChecks = 1
	}
	if o.sleep == nil {
		o.sleep = sleepContext
	}
	if o.now == nil {
		o.now = time.Now
	}
	return o
}

// Summary counts outcomes for one stage.
type Summary struct {
	Done         int
	ToolFailures int
	Skipped      int
}

func (s *Summary) add(outcome stage.Outcome) {
	switch outcome {
	case stage.OutcomeToolFailure:
		s.ToolFailures++
	case stage.OutcomeSkipped:
		s.Skipped++
	default:
		s.Done++
	}
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
