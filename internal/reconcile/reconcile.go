package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"histosync/internal/dataset"
	"histosync/internal/inventory"
	"histosync/internal/logging"
	"histosync/internal/services"
	"histosync/internal/transport"
)

// ErrNoRemoteOriginals reports an empty or image-free remote originals
// directory, which almost always means a misconfigured dataset.
var ErrNoRemoteOriginals = fmt.Errorf("%w: remote originals directory contains no images", services.ErrConfiguration)

// Reconciler builds snapshots for one dataset.
type Reconciler struct {
	ds        dataset.Dataset
	remote    transport.Transport
	errorList *inventory.ErrorList
	logger    *slog.Logger
}

// New constructs a Reconciler.
func New(ds dataset.Dataset, remote transport.Transport, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		ds:        ds,
		remote:    remote,
		errorList: inventory.NewErrorList(ds.ErrorListPath()),
		logger:    logging.NewComponentLogger(logger, "reconcile"),
	}
}

// Dataset returns the dataset being reconciled.
func (r *Reconciler) Dataset() dataset.Dataset {
	return r.ds
}

// ErrorList returns the dataset's error list.
func (r *Reconciler) ErrorList() *inventory.ErrorList {
	return r.errorList
}

// Snapshot lists every role once and derives the queues.
func (r *Reconciler) Snapshot(ctx context.Context) (*Snapshot, error) {
	remoteOriginals, err := r.remoteSet(ctx, r.ds.RemoteOriginalsDir(), false)
	if err != nil {
		return nil, err
	}
	if len(remoteOriginals) == 0 {
		return nil, fmt.Errorf("%s: %w", r.ds.RemoteOriginalsDir(), ErrNoRemoteOriginals)
	}
	remoteDownsamples, err := r.remoteSet(ctx, r.ds.RemoteDownsamplesDir(), true)
	if err != nil {
		return nil, err
	}
	localOriginals, err := inventory.ListSet(r.ds.LocalOriginalsDir(), r.ds.Extension)
	if err != nil {
		return nil, err
	}
	localDownsamples, err := inventory.ListSet(r.ds.LocalDownsamplesDir(), r.ds.Extension)
	if err != nil {
		return nil, err
	}
	listed, err := r.errorList.Read()
	if err != nil {
		return nil, err
	}

	snap := newSnapshot(remoteOriginals, localOriginals, localDownsamples, remoteDownsamples, listed)
	r.logger.Debug("snapshot taken",
		logging.Int("remote_originals", len(snap.RemoteOriginals)),
		logging.Int("local_originals", len(snap.LocalOriginals)),
		logging.Int("local_downsamples", len(snap.LocalDownsamples)),
		logging.Int("remote_downsamples", len(snap.RemoteDownsamples)),
		logging.Int("error_files", len(snap.ErrorFiles)),
	)
	return snap, nil
}

// remoteSet lists dir and keeps images. When optional is set a missing
// directory is an empty set.
func (r *Reconciler) remoteSet(ctx context.Context, dir string, optional bool) (dataset.Set, error) {
	names, err := r.remote.List(ctx, dir)
	if err != nil {
		if optional && errors.Is(err, services.ErrNotFound) {
			return dataset.Set{}, nil
		}
		if errors.Is(err, services.ErrNotFound) {
			return nil, services.Wrap(services.ErrConfiguration, "reconcile", "list remote",
				fmt.Sprintf("required directory %s is missing", dir), err)
		}
		return nil, err
	}
	set := make(dataset.Set, len(names))
	for _, name := range names {
		if !r.ds.IsImage(name) {
			continue
		}
		img, err := dataset.ParseImage(name)
		if err != nil {
			return nil, services.Wrap(services.ErrValidation, "reconcile", "list remote", dir, err)
		}
		set[img.Basename] = img
	}
	return set, nil
}
