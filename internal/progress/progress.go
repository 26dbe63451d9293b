// Package progress reports remaining work per stage, as a terminal progress
// bar when attached to a tty and as sampled log lines otherwise.
package progress

import (
	"io"
	"log/slog"
	"sync"

	"github.com/cheggaaa/pb/v3"

	"histosync/internal/logging"
	"histosync/internal/stage"
)

const barTemplate = `{{string . "stage"}} {{counters . }} {{bar . }} {{percent . }} {{etime . }}`

// Reporter implements workflow.Reporter.
type Reporter struct {
	mu          sync.Mutex
	out         io.Writer
	interactive bool
	logger      *slog.Logger

	bar      *pb.ProgressBar
	samplers map[string]*logging.ProgressSampler
	last     map[string]stage.Progress
}

// New returns a reporter. With interactive set a single bar is drawn on out
// and relabelled as stages alternate; otherwise progress is logged.
func New(out io.Writer, interactive bool, logger *slog.Logger) *Reporter {
	return &Reporter{
		out:         out,
		interactive: interactive,
		logger:      logging.NewComponentLogger(logger, "progress"),
		samplers:    make(map[string]*logging.ProgressSampler),
		last:        make(map[string]stage.Progress),
	}
}

// Report records the latest progress for stageName.
func (r *Reporter) Report(stageName string, p stage.Progress) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.last[stageName] = p

	if r.interactive {
		r.draw(stageName, p)
		return
	}
	sampler, ok := r.samplers[stageName]
	if !ok {
		sampler = logging.NewProgressSampler(10)
		r.samplers[stageName] = sampler
	}
	if !sampler.ShouldLog(p.Completed(), p.Total) {
		return
	}
	r.logger.Info("progress",
		logging.String(logging.FieldStage, stageName),
		logging.Int("remaining", p.Remaining),
		logging.Int("total", p.Total),
		logging.String(logging.FieldEventType, "stage_progress"),
	)
}

// Last returns the most recent progress seen for stageName.
func (r *Reporter) Last(stageName string) (stage.Progress, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.last[stageName]
	return p, ok
}

// Close stops the progress bar, if one was drawn.
func (r *Reporter) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.bar != nil {
		r.bar.Finish()
		r.bar = nil
	}
}

func (r *Reporter) draw(stageName string, p stage.Progress) {
	if r.bar == nil {
		r.bar = pb.New(p.Total).SetTemplateString(barTemplate).SetWriter(r.out)
		r.bar.Set("stage", stageName)
		r.bar.Start()
	}
	r.bar.Set("stage", stageName)
	r.bar.SetTotal(int64(p.Total))
	r.bar.SetCurrent(int64(p.Completed()))
}
