package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"histosync/internal/logging"
	"histosync/internal/stage"
	"histosync/internal/stageexec"
)

type stepState int

const (
	stepWorked stepState = iota
	stepStalled
	stepEmpty
)

// Runner drives one stage handler.
type Runner struct {
	handler stage.Handler
	opts    Options
	logger  *slog.Logger

	skipped      map[string]bool
	summary      Summary
	lastPlan     stage.Plan
	lastOutcome  stage.Outcome
	emptyStreak  int
	stalledSince time.Time
}

// NewRunner wires a handler to the runner options.
func NewRunner(handler stage.Handler, opts Options) *Runner {
	opts = opts.withDefaults()
	logger := logging.NewComponentLogger(opts.Logger, "workflow").With(logging.String(logging.FieldStage, handler.Name()))
	if opts.RunID != "" {
		logger = logger.With(logging.String(logging.FieldRunID, opts.RunID))
	}
	if aware, ok := handler.(stage.LoggerAware); ok {
		aware.SetLogger(logger)
	}
	return &Runner{
		handler: handler,
		opts:    opts,
		logger:  logger,
		skipped: make(map[string]bool),
	}
}

// Name returns the stage name.
func (r *Runner) Name() string {
	return r.handler.Name()
}

// Summary returns the outcomes recorded so far.
func (r *Runner) Summary() Summary {
	return r.summary
}

// Run processes images until the stage is done, the context ends or a fatal
// error occurs.
func (r *Runner) Run(ctx context.Context) (Summary, error) {
	r.logger.Info("stage started", logging.String(logging.FieldEventType, "stage_start"), logging.Bool("follow", r.opts.Follow))
	for {
		state, err := r.step(ctx)
		if err != nil {
			return r.summary, err
		}
		switch state {
		case stepWorked:
			continue
		case stepStalled:
			if !r.opts.Follow {
				r.logger.Info("no ready work; upstream stage still has work",
					logging.String("waiting_on", r.lastPlan.WaitingOn),
					logging.Int("remaining", r.lastPlan.Progress.Remaining),
					logging.String(logging.FieldEventType, "stage_yield"),
				)
				r.finish()
				return r.summary, nil
			}
			if r.opts.MaxStall > 0 && r.opts.now().Sub(r.stalledSince) >= r.opts.MaxStall {
				return r.summary, fmt.Errorf("%s waiting on %s: %w", r.Name(), r.lastPlan.WaitingOn, ErrStallTimeout)
			}
		case stepEmpty:
			if r.emptyStreak >= r.opts.EmptyChecks {
				r.finish()
				return r.summary, nil
			}
		}
		if err := r.opts.sleep(ctx, r.opts.PollInterval); err != nil {
			return r.summary, err
		}
	}
}

// step takes one snapshot and processes at most one image.
func (r *Runner) step(ctx context.Context) (stepState, error) {
	if err := ctx.Err(); err != nil {
		return stepEmpty, err
	}
	r.lastOutcome = ""
	plan, err := r.handler.Plan(ctx)
	if err != nil {
		return stepEmpty, fmt.Errorf("%s: plan: %w", r.Name(), err)
	}
	r.lastPlan = plan
	if r.opts.Reporter != nil {
		r.opts.Reporter.Report(r.Name(), plan.Progress)
	}

	item, ok := stage.Next(plan.Queue, r.skipped)
	if !ok {
		if plan.Stalled {
			r.emptyStreak = 0
			if r.stalledSince.IsZero() {
				r.stalledSince = r.opts.now()
				r.logger.Debug("stage stalled", logging.String("waiting_on", plan.WaitingOn))
			}
			return stepStalled, nil
		}
		r.stalledSince = time.Time{}
		r.emptyStreak++
		return stepEmpty, nil
	}

	r.emptyStreak = 0
	r.stalledSince = time.Time{}
	outcome, err := stageexec.Run(ctx, stageexec.Options{
		Logger:   r.logger,
		Recorder: r.opts.Recorder,
		Handler:  r.handler,
		Item:     item,
		RunID:    r.opts.RunID,
	})
	if err != nil {
		return stepWorked, err
	}
	if outcome == stage.OutcomeSkipped {
		r.skipped[item.Basename] = true
	}
	r.lastOutcome = outcome
	r.summary.add(outcome)
	return stepWorked, nil
}

// heldBack counts queued images skipped earlier in this run.
func (r *Runner) heldBack() int {
	n := 0
	for _, img := range r.lastPlan.Queue {
		if r.skipped[img.Basename] {
			n++
		}
	}
	return n
}

// retrySkipped makes skipped images eligible again.
func (r *Runner) retrySkipped() {
	clear(r.skipped)
}

func (r *Runner) finish() {
	r.logger.Info("stage finished",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.Int("done", r.summary.Done),
		logging.Int("tool_failures", r.summary.ToolFailures),
		logging.Int("skipped", r.summary.Skipped),
	)
}
