package download

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"histosync/internal/dataset"
	"histosync/internal/logging"
	"histosync/internal/reconcile"
	"histosync/internal/stage"
	"histosync/internal/transport"
)

// Stage names.
const (
	OriginalsStage   = "download"
	DownsamplesStage = "fetch-downsamples"
)

// CapacityWaiter blocks until enough local space is free.
type CapacityWaiter interface {
	AwaitCapacity(ctx context.Context, thresholdGB float64) error
}

type kind int

const (
	kindOriginals kind = iota
	kindDownsamples
)

// Handler implements stage.Handler for both download directions.
type Handler struct {
	kind      kind
	recon     *reconcile.Reconciler
	remote    transport.Transport
	capacity  CapacityWaiter
	threshold float64
	logger    *slog.Logger
}

// NewOriginals fetches originals awaiting downsampling.
func NewOriginals(recon *reconcile.Reconciler, remote transport.Transport, capacity CapacityWaiter, thresholdGB float64, logger *slog.Logger) *Handler {
	return newHandler(kindOriginals, recon, remote, capacity, thresholdGB, logger)
}

// NewDownsamples mirrors remote downsamples missing locally.
func NewDownsamples(recon *reconcile.Reconciler, remote transport.Transport, capacity CapacityWaiter, thresholdGB float64, logger *slog.Logger) *Handler {
	return newHandler(kindDownsamples, recon, remote, capacity, thresholdGB, logger)
}

func newHandler(k kind, recon *reconcile.Reconciler, remote transport.Transport, capacity CapacityWaiter, thresholdGB float64, logger *slog.Logger) *Handler {
	h := &Handler{
		kind:      k,
		recon:     recon,
		remote:    remote,
		capacity:  capacity,
		threshold: thresholdGB,
	}
	h.SetLogger(logger)
	return h
}

// SetLogger implements stage.LoggerAware.
func (h *Handler) SetLogger(logger *slog.Logger) {
	h.logger = logging.NewComponentLogger(logger, h.Name())
}

// Name implements stage.Handler.
func (h *Handler) Name() string {
	if h.kind == kindDownsamples {
		return DownsamplesStage
	}
	return OriginalsStage
}

// Plan implements stage.Handler. Downloads never stall: their queue depends
// only on the remote archive.
func (h *Handler) Plan(ctx context.Context) (stage.Plan, error) {
	snap, err := h.recon.Snapshot(ctx)
	if err != nil {
		return stage.Plan{}, err
	}
	if h.kind == kindDownsamples {
		queue := snap.DownsamplesToDownload()
		return stage.Plan{
			Queue:    queue,
			Progress: stage.Progress{Remaining: len(queue), Total: len(snap.RemoteDownsamples)},
		}, nil
	}
	queue := snap.OriginalsToDownload()
	return stage.Plan{
		Queue:    queue,
		Progress: stage.Progress{Remaining: len(queue), Total: len(snap.RemoteOriginals)},
	}, nil
}

// Process implements stage.Handler.
func (h *Handler) Process(ctx context.Context, item dataset.ImageFile) (stage.Outcome, error) {
	remoteDir, localDir := h.dirs()
	if err := os.MkdirAll(localDir, 0o755); err != nil {
		return "", fmt.Errorf("create %s: %w", localDir, err)
	}
	if h.capacity != nil {
		if err := h.capacity.AwaitCapacity(ctx, h.threshold); err != nil {
			return "", err
		}
	}
	remotePath := dataset.RemotePath(remoteDir, item.Name)
	localPath := filepath.Join(localDir, item.Name)
	if err := h.remote.Fetch(ctx, remotePath, localPath); err != nil {
		return "", err
	}
	h.logger.Debug("fetched image", logging.String("remote", remotePath), logging.String("local", localPath))
	return stage.OutcomeDone, nil
}

// HealthCheck implements stage.Handler.
func (h *Handler) HealthCheck(context.Context) stage.Health {
	if h.remote == nil {
		return stage.Unhealthy(h.Name(), "remote archive not connected")
	}
	_, localDir := h.dirs()
	if err := os.MkdirAll(localDir, 0o755); err != nil {
		return stage.Unhealthy(h.Name(), fmt.Sprintf("local directory unavailable: %v", err))
	}
	return stage.Healthy(h.Name())
}

func (h *Handler) dirs() (remote, local string) {
	ds := h.recon.Dataset()
	if h.kind == kindDownsamples {
		return ds.RemoteDownsamplesDir(), ds.LocalDownsamplesDir()
	}
	return ds.RemoteOriginalsDir(), ds.LocalOriginalsDir()
}
