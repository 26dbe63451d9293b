package downsample_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"histosync/internal/dataset"
	"histosync/internal/downsample"
	"histosync/internal/imagetool"
	"histosync/internal/logging"
	"histosync/internal/reconcile"
	"histosync/internal/stage"
	"histosync/internal/testsupport"
)

// shrinkScript copies the source to the destination unless the source name
// contains "bad".
const shrinkScript = `case "$1" in *bad*) exit 2;; esac; cp "$1" "$2"`

func setup(t *testing.T, script string) (dataset.Dataset, *testsupport.Remote, *downsample.Handler) {
	t.Helper()
	ds, err := dataset.New("brain", 4, ".bmp", t.TempDir(), "/archive/brain")
	if err != nil {
		t.Fatal(err)
	}
	remote := testsupport.NewRemote()
	bin := testsupport.StubBinary(t, t.TempDir(), "ShrinkImage", script)
	tool := imagetool.NewRunner(bin, 0, logging.NewNop())
	h := downsample.New(reconcile.New(ds, remote, logging.NewNop()), tool, logging.NewNop())
	return ds, remote, h
}

func image(t *testing.T, name string) dataset.ImageFile {
	t.Helper()
	img, err := dataset.ParseImage(name)
	if err != nil {
		t.Fatal(err)
	}
	return img
}

func TestProcessCommitsOutputAndDeletesOriginal(t *testing.T) {
	ds, remote, h := setup(t, shrinkScript)
	remote.AddFile(ds.RemoteOriginalsDir(), "001.bmp", []byte("x"))
	testsupport.WriteImages(t, ds.LocalOriginalsDir(), "001.bmp")

	outcome, err := h.Process(context.Background(), image(t, "001.bmp"))
	if err != nil || outcome != stage.OutcomeDone {
		t.Fatalf("Process = %q, %v", outcome, err)
	}
	if names := testsupport.ListNames(t, ds.LocalDownsamplesDir()); len(names) != 1 || names[0] != "001.bmp" {
		t.Fatalf("downsamples dir = %v", names)
	}
	if _, err := os.Stat(filepath.Join(ds.LocalOriginalsDir(), "001.bmp")); !os.IsNotExist(err) {
		t.Fatalf("original should be deleted, stat err=%v", err)
	}
}

func TestToolFailureIsPermanentlyExcluded(t *testing.T) {
	ds, remote, h := setup(t, shrinkScript)
	remote.AddFile(ds.RemoteOriginalsDir(), "bad_002.bmp", []byte("x"))
	testsupport.WriteImages(t, ds.LocalOriginalsDir(), "bad_002.bmp")
	ctx := context.Background()

	outcome, err := h.Process(ctx, image(t, "bad_002.bmp"))
	if err != nil || outcome != stage.OutcomeToolFailure {
		t.Fatalf("Process = %q, %v", outcome, err)
	}
	data, err := os.ReadFile(ds.ErrorListPath())
	if err != nil || strings.TrimSpace(string(data)) != "bad_002" {
		t.Fatalf("error list = %q, %v", data, err)
	}
	if names := testsupport.ListNames(t, ds.LocalDownsamplesDir()); len(names) != 0 {
		t.Fatalf("no output expected, got %v", names)
	}

	plan, err := h.Plan(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(plan.Queue) != 0 || plan.Stalled {
		t.Fatalf("failed image must not be scheduled again: %+v", plan)
	}
}

func TestToolWithoutOutputIsFailure(t *testing.T) {
	ds, remote, h := setup(t, "exit 0")
	remote.AddFile(ds.RemoteOriginalsDir(), "001.bmp", []byte("x"))
	testsupport.WriteImages(t, ds.LocalOriginalsDir(), "001.bmp")

	outcome, err := h.Process(context.Background(), image(t, "001.bmp"))
	if err != nil || outcome != stage.OutcomeToolFailure {
		t.Fatalf("Process = %q, %v", outcome, err)
	}
}

func TestExistingDownsampleOnlyReclaimsOriginal(t *testing.T) {
	ds, remote, h := setup(t, "exit 9")
	remote.AddFile(ds.RemoteOriginalsDir(), "001.bmp", []byte("x"))
	testsupport.WriteImages(t, ds.LocalOriginalsDir(), "001.bmp")
	testsupport.WriteImages(t, ds.LocalDownsamplesDir(), "001.bmp")

	outcome, err := h.Process(context.Background(), image(t, "001.bmp"))
	if err != nil || outcome != stage.OutcomeDone {
		t.Fatalf("Process = %q, %v", outcome, err)
	}
	if names := testsupport.ListNames(t, ds.LocalOriginalsDir()); len(names) != 0 {
		t.Fatalf("original should be reclaimed, got %v", names)
	}
}

func TestPlanStallsWhileOriginalsAreRemote(t *testing.T) {
	ds, remote, h := setup(t, shrinkScript)
	remote.AddFile(ds.RemoteOriginalsDir(), "001.bmp", []byte("x"))
	remote.AddFile(ds.RemoteOriginalsDir(), "002.bmp", []byte("x"))
	testsupport.WriteImages(t, ds.LocalOriginalsDir(), "001.bmp")

	plan, err := h.Plan(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !plan.Stalled || plan.WaitingOn != "download" {
		t.Fatalf("expected stall on download, got %+v", plan)
	}
	if len(plan.Queue) != 1 || plan.Queue[0].Basename != "001" {
		t.Fatalf("unexpected queue %+v", plan.Queue)
	}
	if plan.Progress != (stage.Progress{Remaining: 2, Total: 2}) {
		t.Fatalf("unexpected progress %+v", plan.Progress)
	}
}
