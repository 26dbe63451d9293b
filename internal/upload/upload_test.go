package upload_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"histosync/internal/dataset"
	"histosync/internal/logging"
	"histosync/internal/reconcile"
	"histosync/internal/services"
	"histosync/internal/stage"
	"histosync/internal/testsupport"
	"histosync/internal/upload"
	"histosync/internal/workflow"
)

func TestUploadCreatesRemoteDirOnceAndPuts(t *testing.T) {
	ds, err := dataset.New("brain", 4, ".bmp", t.TempDir(), "/archive/brain")
	if err != nil {
		t.Fatal(err)
	}
	remote := testsupport.NewRemote()
	remote.AddFile(ds.RemoteOriginalsDir(), "001.bmp", []byte("x"))
	remote.AddFile(ds.RemoteOriginalsDir(), "002.bmp", []byte("x"))
	testsupport.WriteImages(t, ds.LocalDownsamplesDir(), "001.bmp", "002.bmp")
	h := upload.New(reconcile.New(ds, remote, logging.NewNop()), remote, logging.NewNop())
	ctx := context.Background()

	plan, err := h.Plan(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if plan.Stalled || len(plan.Queue) != 2 {
		t.Fatalf("unexpected plan %+v", plan)
	}
	if plan.Progress != (stage.Progress{Remaining: 2, Total: 2}) {
		t.Fatalf("unexpected progress %+v", plan.Progress)
	}
	for _, item := range plan.Queue {
		if _, err := h.Process(ctx, item); err != nil {
			t.Fatalf("Process %s: %v", item.Name, err)
		}
	}
	if len(remote.MakeDirs) != 1 || remote.MakeDirs[0] != ds.RemoteDownsamplesDir() {
		t.Fatalf("expected a single MakeDir, got %v", remote.MakeDirs)
	}
	if got := remote.Names(ds.RemoteDownsamplesDir()); len(got) != 2 {
		t.Fatalf("remote downsamples = %v", got)
	}

	plan, err = h.Plan(ctx)
	if err != nil || len(plan.Queue) != 0 {
		t.Fatalf("expected drained queue, got %+v, %v", plan, err)
	}
}

func TestUploadStallsWhileDownsamplingRemains(t *testing.T) {
	ds, err := dataset.New("brain", 2, ".bmp", t.TempDir(), "/archive/brain")
	if err != nil {
		t.Fatal(err)
	}
	remote := testsupport.NewRemote()
	remote.AddFile(ds.RemoteOriginalsDir(), "001.bmp", []byte("x"))
	h := upload.New(reconcile.New(ds, remote, logging.NewNop()), remote, logging.NewNop())

	plan, err := h.Plan(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !plan.Stalled || plan.WaitingOn != "downsample" || len(plan.Queue) != 0 {
		t.Fatalf("expected stalled empty plan, got %+v", plan)
	}
}

func TestUploadStopsWhenRemoteDirIsRefused(t *testing.T) {
	ds, err := dataset.New("brain", 4, ".bmp", t.TempDir(), "/archive/brain")
	if err != nil {
		t.Fatal(err)
	}
	remote := testsupport.NewRemote()
	remote.AddFile(ds.RemoteOriginalsDir(), "001.bmp", []byte("x"))
	remote.AddFile(ds.RemoteOriginalsDir(), "002.bmp", []byte("x"))
	remote.MakeDirErr = func(dir string) error {
		return services.Wrap(services.ErrRemoteState, "ftp", "mkdir", dir+" is not a regular file", nil)
	}
	testsupport.WriteImages(t, ds.LocalDownsamplesDir(), "001.bmp", "002.bmp")
	h := upload.New(reconcile.New(ds, remote, logging.NewNop()), remote, logging.NewNop())

	opts := workflow.Options{PollInterval: time.Millisecond, EmptyChecks: 1, Logger: logging.NewNop()}
	summary, err := workflow.NewRunner(h, opts).Run(context.Background())
	if !errors.Is(err, services.ErrConfiguration) || !services.IsFatal(err) {
		t.Fatalf("expected a fatal configuration error, got %v", err)
	}
	if summary.Skipped != 0 || summary.Done != 0 {
		t.Fatalf("no image should be skipped or uploaded, got %+v", summary)
	}
	if got := remote.Names(ds.RemoteDownsamplesDir()); len(got) != 0 {
		t.Fatalf("nothing should be uploaded, got %v", got)
	}
}
