package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"histosync/internal/logging"
	"histosync/internal/stage"
)

// Pipeline interleaves several stages in one process, one unit per stage per
// round.
type Pipeline struct {
	runners []*Runner
	opts    Options
	logger  *slog.Logger
}

// NewPipeline builds runners for handlers in upstream-to-downstream order.
func NewPipeline(handlers []stage.Handler, opts Options) *Pipeline {
	opts = opts.withDefaults()
	runners := make([]*Runner, 0, len(handlers))
	for _, h := range handlers {
		runners = append(runners, NewRunner(h, opts))
	}
	return &Pipeline{
		runners: runners,
		opts:    opts,
		logger:  logging.NewComponentLogger(opts.Logger, "pipeline"),
	}
}

// Run advances every stage until a full round does no work, confirmed over
// EmptyChecks rounds. With Follow, images the archive held back are retried
// every PollInterval instead, until they go through or MaxStall passes
// without progress.
func (p *Pipeline) Run(ctx context.Context) (map[string]Summary, error) {
	if len(p.runners) == 0 {
		return nil, errors.New("pipeline has no stages")
	}

	idle := 0
	var heldSince time.Time
	for {
		progressed := false
		attempted := false
		for _, r := range p.runners {
			state, err := r.step(ctx)
			if err != nil {
				return p.summaries(), err
			}
			if state != stepWorked {
				continue
			}
			attempted = true
			if r.lastOutcome != stage.OutcomeSkipped {
				progressed = true
			}
		}

		if progressed {
			idle = 0
			heldSince = time.Time{}
			continue
		}
		if attempted {
			// Only skips this round; other queued images may still be ready.
			continue
		}

		held := 0
		for _, r := range p.runners {
			held += r.heldBack()
		}
		if p.opts.Follow && held > 0 {
			idle = 0
			now := p.opts.now()
			if heldSince.IsZero() {
				heldSince = now
			} else if p.opts.MaxStall > 0 && now.Sub(heldSince) >= p.opts.MaxStall {
				return p.summaries(), fmt.Errorf("%d images held back by the archive: %w", held, ErrStallTimeout)
			}
			p.logger.Info("waiting for held back images",
				logging.Int("images", held),
				logging.String(logging.FieldEventType, "pipeline_wait"),
			)
			for _, r := range p.runners {
				r.retrySkipped()
			}
		} else {
			idle++
			p.logger.Debug("pipeline round did no work", logging.Int("idle_rounds", idle))
			if idle >= p.opts.EmptyChecks {
				for _, r := range p.runners {
					r.finish()
				}
				return p.summaries(), nil
			}
		}
		if err := p.opts.sleep(ctx, p.opts.PollInterval); err != nil {
			return p.summaries(), err
		}
	}
}

func (p *Pipeline) summaries() map[string]Summary {
	out := make(map[string]Summary, len(p.runners))
	for _, r := range p.runners {
		out[r.Name()] = r.summary
	}
	return out
}
