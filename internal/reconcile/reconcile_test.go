package reconcile_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"histosync/internal/dataset"
	"histosync/internal/logging"
	"histosync/internal/reconcile"
	"histosync/internal/services"
	"histosync/internal/testsupport"
)

func newDataset(t *testing.T) dataset.Dataset {
	t.Helper()
	ds, err := dataset.New("brain", 4, ".bmp", t.TempDir(), "/archive/brain")
	if err != nil {
		t.Fatalf("dataset.New: %v", err)
	}
	return ds
}

func basenames(images []dataset.ImageFile) []string {
	out := make([]string, 0, len(images))
	for _, img := range images {
		out = append(out, img.Basename)
	}
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestSnapshotDerivesQueues(t *testing.T) {
	ds := newDataset(t)
	remote := testsupport.NewRemote()
	for _, name := range []string{"001.bmp", "002.bmp", "003.bmp"} {
		remote.AddFile(ds.RemoteOriginalsDir(), name, []byte("x"))
	}
	testsupport.WriteImages(t, ds.LocalOriginalsDir(), "001.bmp")
	if err := os.MkdirAll(ds.Root(), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(ds.ErrorListPath(), []byte("003\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	snap, err := reconcile.New(ds, remote, logging.NewNop()).Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}

	cases := []struct {
		name string
		got  []dataset.ImageFile
		want []string
	}{
		{"originalsToDownsample", snap.OriginalsToDownsample(), []string{"001", "002"}},
		{"originalsToDownload", snap.OriginalsToDownload(), []string{"002"}},
		{"originalsReadyToProcess", snap.OriginalsReadyToProcess(), []string{"001"}},
		{"downsamplesToUpload", snap.DownsamplesToUpload(), nil},
		{"downsamplesToDownload", snap.DownsamplesToDownload(), nil},
		{"processed", snap.Processed(), []string{"003"}},
	}
	for _, tc := range cases {
		if got := basenames(tc.got); !equal(got, tc.want) {
			t.Errorf("%s = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestSnapshotDownsampleQueues(t *testing.T) {
	ds := newDataset(t)
	remote := testsupport.NewRemote()
	remote.AddFile(ds.RemoteOriginalsDir(), "001.bmp", []byte("x"))
	remote.AddFile(ds.RemoteOriginalsDir(), "002.bmp", []byte("x"))
	remote.AddFile(ds.RemoteDownsamplesDir(), "002.bmp", []byte("x"))
	remote.AddFile(ds.RemoteDownsamplesDir(), "005.bmp", []byte("x"))
	testsupport.WriteImages(t, ds.LocalDownsamplesDir(), "001.bmp", "002.bmp")
	testsupport.WriteImages(t, ds.LocalDownsamplesDir(), "003.part.bmp")

	snap, err := reconcile.New(ds, remote, logging.NewNop()).Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if got := basenames(snap.DownsamplesToUpload()); !equal(got, []string{"001"}) {
		t.Fatalf("downsamplesToUpload = %v", got)
	}
	if got := basenames(snap.DownsamplesToDownload()); !equal(got, []string{"005"}) {
		t.Fatalf("downsamplesToDownload = %v", got)
	}
	if got := basenames(snap.OriginalsToDownsample()); len(got) != 0 {
		t.Fatalf("everything is processed, got %v", got)
	}
	counts := snap.Counts()
	if counts.LocalDownsamples != 2 || counts.RemoteDownsamples != 2 {
		t.Fatalf("partial files must not be counted: %+v", counts)
	}
}

func TestSnapshotMissingRemoteDownsamplesIsEmpty(t *testing.T) {
	ds := newDataset(t)
	remote := testsupport.NewRemote()
	remote.AddFile(ds.RemoteOriginalsDir(), "001.bmp", []byte("x"))

	snap, err := reconcile.New(ds, remote, logging.NewNop()).Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if len(snap.RemoteDownsamples) != 0 {
		t.Fatalf("expected empty remote downsamples, got %v", snap.RemoteDownsamples)
	}
	if _, err := os.Stat(ds.ErrorListPath()); err != nil {
		t.Fatalf("error list should be created on first read: %v", err)
	}
}

func TestSnapshotEmptyRemoteOriginalsIsConfigurationError(t *testing.T) {
	ds := newDataset(t)
	remote := testsupport.NewRemote()
	remote.AddDir(ds.RemoteOriginalsDir())
	remote.AddFile(ds.RemoteOriginalsDir(), "notes.txt", []byte("x"))

	_, err := reconcile.New(ds, remote, logging.NewNop()).Snapshot(context.Background())
	if !errors.Is(err, reconcile.ErrNoRemoteOriginals) {
		t.Fatalf("expected ErrNoRemoteOriginals, got %v", err)
	}
	if !services.IsFatal(err) {
		t.Fatal("an empty remote must stop the run")
	}
}

func TestSnapshotMissingRemoteOriginalsIsFatal(t *testing.T) {
	ds := newDataset(t)
	_, err := reconcile.New(ds, testsupport.NewRemote(), logging.NewNop()).Snapshot(context.Background())
	if !services.IsFatal(err) {
		t.Fatalf("expected fatal error, got %v", err)
	}
}

func TestSnapshotIsFreshEachCall(t *testing.T) {
	ds := newDataset(t)
	remote := testsupport.NewRemote()
	remote.AddFile(ds.RemoteOriginalsDir(), "001.bmp", []byte("x"))
	r := reconcile.New(ds, remote, logging.NewNop())
	ctx := context.Background()

	first, err := r.Snapshot(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(first.OriginalsToDownload()) != 1 {
		t.Fatalf("expected one download, got %v", first.OriginalsToDownload())
	}
	testsupport.WriteFile(t, filepath.Join(ds.LocalOriginalsDir(), "001.bmp"), 4)

	second, err := r.Snapshot(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(second.OriginalsToDownload()) != 0 || len(second.OriginalsReadyToProcess()) != 1 {
		t.Fatalf("second snapshot did not observe local file: %+v", second.Counts())
	}
	if remote.Lists != 4 {
		t.Fatalf("expected every snapshot to list both remote dirs, lists=%d", remote.Lists)
	}
}

func TestSnapshotOrdersVersionsAfterBase(t *testing.T) {
	remoteOriginals := dataset.NewSet()
	for _, name := range []string{"010(2).bmp", "002.bmp", "010.bmp", "010(1).bmp"} {
		img, err := dataset.ParseImage(name)
		if err != nil {
			t.Fatal(err)
		}
		remoteOriginals[img.Basename] = img
	}
	snap := reconcile.NewSnapshot(remoteOriginals, nil, nil, nil, map[string]struct{}{"010(1)": {}})
	got := basenames(snap.OriginalsToDownload())
	want := []string{"002", "010", "010(2)"}
	if !equal(got, want) {
		t.Fatalf("order = %v, want %v", got, want)
	}
}
