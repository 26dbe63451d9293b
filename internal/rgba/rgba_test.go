package rgba_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"histosync/internal/imagetool"
	"histosync/internal/logging"
	"histosync/internal/rgba"
	"histosync/internal/stage"
	"histosync/internal/testsupport"
	"histosync/internal/workflow"
)

func TestConvertsMissingImagesAndRecordsFailures(t *testing.T) {
	base := t.TempDir()
	src := filepath.Join(base, "rgba")
	dst := filepath.Join(base, "rgb")
	testsupport.WriteImages(t, src, "001.bmp", "002.bmp", "bad_003.bmp")
	testsupport.WriteImages(t, dst, "001.bmp")
	bin := testsupport.StubBinary(t, t.TempDir(), "ConvertRGBAToRGB", `case "$1" in *bad*) exit 1;; esac; cp "$1" "$2"`)
	h := rgba.New(src, dst, ".bmp", imagetool.NewRunner(bin, 0, logging.NewNop()), logging.NewNop())
	ctx := context.Background()

	plan, err := h.Plan(ctx)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(plan.Queue) != 2 || plan.Progress != (stage.Progress{Remaining: 2, Total: 3}) {
		t.Fatalf("unexpected plan %+v", plan)
	}

	summary, err := workflow.NewRunner(h, workflow.Options{EmptyChecks: 1}).Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Done != 1 || summary.ToolFailures != 1 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	names := testsupport.ListNames(t, dst)
	want := []string{"001.bmp", "002.bmp", "error_files.txt"}
	if strings.Join(names, ",") != strings.Join(want, ",") {
		t.Fatalf("destination = %v, want %v", names, want)
	}
	data, err := os.ReadFile(filepath.Join(dst, "error_files.txt"))
	if err != nil || strings.TrimSpace(string(data)) != "bad_003" {
		t.Fatalf("error list = %q, %v", data, err)
	}
	if len(testsupport.ListNames(t, src)) != 3 {
		t.Fatal("source images must be kept")
	}
}

func TestPlanRequiresSourceDirectory(t *testing.T) {
	h := rgba.New(filepath.Join(t.TempDir(), "missing"), t.TempDir(), ".bmp", imagetool.NewRunner("true", 0, nil), nil)
	if _, err := h.Plan(context.Background()); err == nil {
		t.Fatal("expected error for missing source")
	}
}
