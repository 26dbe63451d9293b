package download_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"histosync/internal/dataset"
	"histosync/internal/download"
	"histosync/internal/logging"
	"histosync/internal/reconcile"
	"histosync/internal/services"
	"histosync/internal/stage"
	"histosync/internal/testsupport"
)

type countingGuard struct {
	calls int
	err   error
}

func (g *countingGuard) AwaitCapacity(context.Context, float64) error {
	g.calls++
	return g.err
}

func setup(t *testing.T) (dataset.Dataset, *testsupport.Remote, *reconcile.Reconciler) {
	t.Helper()
	ds, err := dataset.New("brain", 4, ".bmp", t.TempDir(), "/archive/brain")
	if err != nil {
		t.Fatal(err)
	}
	remote := testsupport.NewRemote()
	return ds, remote, reconcile.New(ds, remote, logging.NewNop())
}

func TestOriginalsPlanAndProcess(t *testing.T) {
	ds, remote, recon := setup(t)
	remote.AddFile(ds.RemoteOriginalsDir(), "001.bmp", []byte("one"))
	remote.AddFile(ds.RemoteOriginalsDir(), "002.bmp", []byte("two"))
	testsupport.WriteImages(t, ds.LocalDownsamplesDir(), "001.bmp")
	guard := &countingGuard{}
	h := download.NewOriginals(recon, remote, guard, 5, logging.NewNop())
	ctx := context.Background()

	plan, err := h.Plan(ctx)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(plan.Queue) != 1 || plan.Queue[0].Basename != "002" || plan.Stalled {
		t.Fatalf("unexpected plan %+v", plan)
	}
	if plan.Progress != (stage.Progress{Remaining: 1, Total: 2}) {
		t.Fatalf("unexpected progress %+v", plan.Progress)
	}

	outcome, err := h.Process(ctx, plan.Queue[0])
	if err != nil || outcome != stage.OutcomeDone {
		t.Fatalf("Process = %q, %v", outcome, err)
	}
	got, err := os.ReadFile(filepath.Join(ds.LocalOriginalsDir(), "002.bmp"))
	if err != nil || string(got) != "two" {
		t.Fatalf("local original = %q, %v", got, err)
	}
	if guard.calls != 1 {
		t.Fatalf("capacity must be checked before each fetch, calls=%d", guard.calls)
	}

	plan, err = h.Plan(ctx)
	if err != nil || len(plan.Queue) != 0 {
		t.Fatalf("expected drained queue, got %+v, %v", plan, err)
	}
}

func TestCapacityErrorPreventsFetch(t *testing.T) {
	ds, remote, recon := setup(t)
	remote.AddFile(ds.RemoteOriginalsDir(), "001.bmp", []byte("one"))
	guard := &countingGuard{err: context.Canceled}
	h := download.NewOriginals(recon, remote, guard, 5, logging.NewNop())

	_, err := h.Process(context.Background(), dataset.ImageFile{Name: "001.bmp", Basename: "001", SliceNumber: 1})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if len(remote.Fetches) != 0 {
		t.Fatalf("fetch must wait for capacity, fetches=%v", remote.Fetches)
	}
}

func TestDownsamplesMirrorsRemote(t *testing.T) {
	ds, remote, recon := setup(t)
	remote.AddFile(ds.RemoteOriginalsDir(), "001.bmp", []byte("orig"))
	remote.AddFile(ds.RemoteDownsamplesDir(), "001.bmp", []byte("small"))
	h := download.NewDownsamples(recon, remote, nil, 0, logging.NewNop())
	ctx := context.Background()

	plan, err := h.Plan(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if h.Name() != download.DownsamplesStage || len(plan.Queue) != 1 {
		t.Fatalf("unexpected plan %+v", plan)
	}
	if _, err := h.Process(ctx, plan.Queue[0]); err != nil {
		t.Fatalf("Process: %v", err)
	}
	got, err := os.ReadFile(filepath.Join(ds.LocalDownsamplesDir(), "001.bmp"))
	if err != nil || string(got) != "small" {
		t.Fatalf("local downsample = %q, %v", got, err)
	}
}

func TestRemoteStateErrorIsSkippable(t *testing.T) {
	ds, remote, recon := setup(t)
	remote.AddFile(ds.RemoteOriginalsDir(), "001.bmp", []byte("one"))
	remote.FetchErr = func(string) error {
		return services.Wrap(services.ErrRemoteState, "ftp", "fetch", "not a regular file", nil)
	}
	h := download.NewOriginals(recon, remote, nil, 0, logging.NewNop())

	_, err := h.Process(context.Background(), dataset.ImageFile{Name: "001.bmp", Basename: "001", SliceNumber: 1})
	if !services.Skippable(err) {
		t.Fatalf("expected skippable error, got %v", err)
	}
	if h.HealthCheck(context.Background()).Ready != true {
		t.Fatal("handler should report healthy")
	}
}
