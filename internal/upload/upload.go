package upload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"histosync/internal/dataset"
	"histosync/internal/logging"
	"histosync/internal/reconcile"
	"histosync/internal/services"
	"histosync/internal/stage"
	"histosync/internal/transport"
)

// StageName identifies the stage in logs and the journal.
const StageName = "upload"

// Handler implements stage.Handler.
type Handler struct {
	recon   *reconcile.Reconciler
	remote  transport.Transport
	logger  *slog.Logger
	ensured bool
}

// New constructs the upload handler.
func New(recon *reconcile.Reconciler, remote transport.Transport, logger *slog.Logger) *Handler {
	h := &Handler{recon: recon, remote: remote}
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

// Plan implements stage.Handler. The stage is stalled while downsampling
// work remains, since every finished downsample adds to the queue.
func (h *Handler) Plan(ctx context.Context) (stage.Plan, error) {
	snap, err := h.recon.Snapshot(ctx)
	if err != nil {
		return stage.Plan{}, err
	}
	queue := snap.DownsamplesToUpload()
	return stage.Plan{
		Queue:     queue,
		Stalled:   len(snap.OriginalsToDownsample()) > 0,
		WaitingOn: "downsample",
		Progress:  stage.Progress{Remaining: len(queue), Total: len(snap.LocalDownsamples)},
	}, nil
}

// Process implements stage.Handler.
func (h *Handler) Process(ctx context.Context, item dataset.ImageFile) (stage.Outcome, error) {
	ds := h.recon.Dataset()
	if err := h.ensureRemoteDir(ctx, ds.RemoteDownsamplesDir()); err != nil {
		return "", err
	}
	local := filepath.Join(ds.LocalDownsamplesDir(), item.Name)
	remotePath := dataset.RemotePath(ds.RemoteDownsamplesDir(), item.Name)
	if err := h.remote.Put(ctx, local, remotePath); err != nil {
		return "", err
	}
	h.logger.Debug("uploaded image", logging.String("remote", remotePath))
	return stage.OutcomeDone, nil
}

func (h *Handler) ensureRemoteDir(ctx context.Context, dir string) error {
	if h.ensured {
		return nil
	}
	if err := h.remote.MakeDir(ctx, dir); err != nil {
		if errors.Is(err, services.ErrRemoteState) || errors.Is(err, services.ErrNotFound) {
			return services.Wrap(services.ErrConfiguration, StageName, "ensure remote directory", dir, err)
		}
		return fmt.Errorf("ensure remote downsamples directory: %w", err)
	}
	h.ensured = true
	return nil
}

// HealthCheck implements stage.Handler.
func (h *Handler) HealthCheck(context.Context) stage.Health {
	if h.remote == nil {
		return stage.Unhealthy(StageName, "remote archive not connected")
	}
	return stage.Healthy(StageName)
}
