package downsample

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"

	"histosync/internal/dataset"
	"histosync/internal/fileutil"
	"histosync/internal/imagetool"
	"histosync/internal/logging"
	"histosync/internal/reconcile"
	"histosync/internal/stage"
)

// StageName identifies the stage in logs and the journal.
const StageName = "downsample"

// Shrinker runs the shrink tool.
type Shrinker interface {
	Binary() string
	Shrink(ctx context.Context, src, dst string, ratio int) (imagetool.Result, error)
}

// Handler implements stage.Handler.
type Handler struct {
	recon  *reconcile.Reconciler
	tool   Shrinker
	logger *slog.Logger
}

// New constructs the downsample handler.
func New(recon *reconcile.Reconciler, tool Shrinker, logger *slog.Logger) *Handler {
	h := &Handler{recon: recon, tool: tool}
	h.SetLogger(logger)
	return h
}

// SetLogger implements stage.LoggerAware.
func (h *Handler) SetLogger(logger *slog.Logger) {
	h.logger = logging.NewComponentLogger(logger, StageName)
}

// Name implements stage.Handler.
func (h *Handler) Name() string {
	return StageName
}

// Plan implements stage.Handler. The stage is stalled while originals still
// need downsampling but are not local yet.
func (h *Handler) Plan(ctx context.Context) (stage.Plan, error) {
	snap, err := h.recon.Snapshot(ctx)
	if err != nil {
		return stage.Plan{}, err
	}
	pending := snap.OriginalsToDownsample()
	return stage.Plan{
		Queue:     snap.OriginalsReadyToProcess(),
		Stalled:   len(pending) > 0,
		WaitingOn: "download",
		Progress:  stage.Progress{Remaining: len(pending), Total: len(snap.RemoteOriginals)},
	}, nil
}

// Process implements stage.Handler.
func (h *Handler) Process(ctx context.Context, item dataset.ImageFile) (stage.Outcome, error) {
	ds := h.recon.Dataset()
	src := filepath.Join(ds.LocalOriginalsDir(), item.Name)
	dst := filepath.Join(ds.LocalDownsamplesDir(), item.Name)

	if _, err := os.Stat(dst); err == nil {
		// A previous run committed the output but stopped before reclaiming
		// the original.
		h.logger.Info("downsample already present; removing original", logging.String("original", src))
		if err := fileutil.RemoveIfExists(src); err != nil {
			return "", fmt.Errorf("remove original: %w", err)
		}
		return stage.OutcomeDone, nil
	}

	if err := os.MkdirAll(ds.LocalDownsamplesDir(), 0o755); err != nil {
		return "", fmt.Errorf("create downsamples directory: %w", err)
	}
	part := fileutil.ToolPartPath(dst)
	if err := fileutil.RemoveIfExists(part); err != nil {
		return "", fmt.Errorf("remove stale output: %w", err)
	}

	result, err := h.tool.Shrink(ctx, src, part, ds.Ratio)
	if err != nil {
		_ = fileutil.RemoveIfExists(part)
		return "", err
	}
	if result.OK() {
		if _, statErr := os.Stat(part); statErr != nil {
			h.logger.Info("tool exited cleanly without output", logging.String("expected", part))
			result.Outcome = imagetool.ToolFailure
		}
	}
	if !result.OK() {
		_ = fileutil.RemoveIfExists(part)
		if err := h.recon.ErrorList().Add(item.Basename); err != nil {
			return "", fmt.Errorf("record tool failure: %w", err)
		}
		h.logger.Debug("recorded tool failure",
			logging.Int("exit_code", result.ExitCode),
			logging.String("error_list", h.recon.ErrorList().Path()),
		)
		return stage.OutcomeToolFailure, nil
	}

	if err := fileutil.Commit(part, dst); err != nil {
		return "", err
	}
	if err := os.Remove(src); err != nil && !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("remove original: %w", err)
	}
	return stage.OutcomeDone, nil
}

// HealthCheck implements stage.Handler.
func (h *Handler) HealthCheck(context.Context) stage.Health {
	if h.tool == nil {
		return stage.Unhealthy(StageName, "shrink tool not configured")
	}
	if _, err := exec.LookPath(h.tool.Binary()); err != nil {
		return stage.Unhealthy(StageName, fmt.Sprintf("binary %q not found", h.tool.Binary()))
	}
	return stage.Healthy(StageName)
}
