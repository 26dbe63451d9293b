package stage

import (
	"context"
	"log/slog"

	"histosync/internal/dataset"
)

// Outcome is the result of processing one image.
type Outcome string

const (
	OutcomeDone        Outcome = "done"
	OutcomeToolFailure Outcome = "tool_failure"
	OutcomeSkipped     Outcome = "skipped"
)

// Progress is remaining work against the stage's total.
type Progress struct {
	Remaining int
	Total     int
}

// Completed returns Total - Remaining, never negative.
func (p Progress) Completed() int {
	if p.Remaining >= p.Total {
		return 0
	}
	return p.Total - p.Remaining
}

// Plan is a stage's view of one fresh snapshot.
type Plan struct {
	Queue []dataset.ImageFile
	// Stalled is set when the queue may still grow because upstream work
	// remains.
	Stalled bool
	// WaitingOn names the upstream stage a stalled plan depends on.
	WaitingOn string
	Progress  Progress
}

// Handler describes the contract the workflow runner needs from each stage.
type Handler interface {
	Name() string
	Plan(ctx context.Context) (Plan, error)
	Process(ctx context.Context, item dataset.ImageFile) (Outcome, error)
	HealthCheck(ctx context.Context) Health
}

// LoggerAware handlers accept a logger carrying run fields.
type LoggerAware interface {
	SetLogger(*slog.Logger)
}
