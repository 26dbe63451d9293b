package stageexec

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"histosync/internal/dataset"
	"histosync/internal/journal"
	"histosync/internal/logging"
	"histosync/internal/services"
	"histosync/internal/stage"
)

// Recorder persists one event per processed image.
type Recorder interface {
	RecordEvent(ctx context.Context, ev journal.Event) error
}

// Options controls execution of a single unit of work.
type Options struct {
	Logger   *slog.Logger
	Recorder Recorder
	Handler  stage.Handler
	Item     dataset.ImageFile
	RunID    string
}

// Run processes one image and records the outcome. Remote-state failures on
// the item are logged and reported as OutcomeSkipped with a nil error; every
// other failure is recorded and returned.
func Run(ctx context.Context, opts Options) (stage.Outcome, error) {
	if opts.Handler == nil {
		return "", errors.New("stage handler is required")
	}
	name := opts.Handler.Name()
	stageCtx := services.WithStage(ctx, name)
	logger := logging.WithContext(stageCtx, opts.Logger).With(logging.String(logging.FieldBasename, opts.Item.Basename))

	logger.Debug("unit started",
		logging.String(logging.FieldEventType, "unit_start"),
		logging.String("file", opts.Item.Name),
	)

	start := time.Now()
	outcome, err := opts.Handler.Process(stageCtx, opts.Item)
	elapsed := time.Since(start)

	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return "", err
		}
		if services.Skippable(err) {
			logging.WarnWithContext(logger, "skipping image for this run", "unit_skipped",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "inspect the remote entry; it is retried on the next run"),
				logging.String(logging.FieldImpact, "image is not processed in this run"),
			)
			record(stageCtx, logger, opts, journal.OutcomeSkipped, elapsed, err.Error())
			return stage.OutcomeSkipped, nil
		}
		logging.ErrorWithContext(logger, "unit failed", "unit_failure",
			logging.Duration("duration", elapsed),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, services.Hint(err)),
		)
		record(stageCtx, logger, opts, journal.OutcomeFailed, elapsed, err.Error())
		return "", fmt.Errorf("%s %s: %w", name, opts.Item.Basename, err)
	}

	switch outcome {
	case stage.OutcomeToolFailure:
		logging.WarnWithContext(logger, "tool failed; image added to error list", "unit_tool_failure",
			logging.Duration("duration", elapsed),
			logging.String(logging.FieldErrorHint, "inspect the original image; remove it from error_files.txt to retry"),
			logging.String(logging.FieldImpact, "image is permanently excluded"),
		)
		record(stageCtx, logger, opts, journal.OutcomeToolFailure, elapsed, "")
	default:
		outcome = stage.OutcomeDone
		logger.Info("unit completed",
			logging.String(logging.FieldEventType, "unit_complete"),
			logging.Duration("duration", elapsed),
		)
		record(stageCtx, logger, opts, journal.OutcomeDone, elapsed, "")
	}
	return outcome, nil
}

func record(ctx context.Context, logger *slog.Logger, opts Options, outcome journal.Outcome, elapsed time.Duration, detail string) {
	if opts.Recorder == nil || opts.RunID == "" {
		return
	}
	err := opts.Recorder.RecordEvent(context.WithoutCancel(ctx), journal.Event{
		RunID:    opts.RunID,
		Stage:    opts.Handler.Name(),
		Basename: opts.Item.Basename,
		Outcome:  outcome,
		Duration: elapsed,
		Detail:   detail,
	})
	if err != nil {
		logger.Debug("journal event not recorded", logging.Error(err))
	}
}
