package capacity

import (
	"context"
	"errors"
	"testing"
	"time"

	"histosync/internal/config"
	"histosync/internal/logging"
)

func scripted(readings ...float64) (func(string) (uint64, error), *int) {
	calls := 0
	return func(string) (uint64, error) {
		i := calls
		if i >= len(readings) {
			i = len(readings) - 1
		}
		calls++
		return uint64(readings[i] * bytesPerGB), nil
	}, &calls
}

func noSleep(context.Context, time.Duration) error { return nil }

func TestAwaitCapacityPollsUntilThreshold(t *testing.T) {
	statfs, calls := scripted(2, 3, 6)
	cfg := config.Capacity{PollInterval: 60, Hosts: map[string]string{"scope": "/data"}}
	var slept []time.Duration
	guard := New(cfg, "/images", logging.NewNop(),
		WithHostname("scope"),
		WithStatfs(statfs),
		WithSleep(func(_ context.Context, d time.Duration) error {
			slept = append(slept, d)
			return nil
		}),
	)

	if err := guard.AwaitCapacity(context.Background(), 5); err != nil {
		t.Fatalf("AwaitCapacity: %v", err)
	}
	if *calls != 3 {
		t.Fatalf("expected 3 polls, got %d", *calls)
	}
	if len(slept) != 2 || slept[0] != time.Minute {
		t.Fatalf("expected two 60s waits, got %v", slept)
	}
	if guard.Path() != "/data" {
		t.Fatalf("expected host mount to be probed, got %s", guard.Path())
	}
}

func TestAwaitCapacityReturnsImmediatelyWhenEnoughSpace(t *testing.T) {
	statfs, calls := scripted(5)
	guard := New(config.Capacity{Hosts: map[string]string{"scope": "/data"}}, "/images", logging.NewNop(),
		WithHostname("scope"), WithStatfs(statfs), WithSleep(noSleep))
	if err := guard.AwaitCapacity(context.Background(), 5); err != nil {
		t.Fatalf("AwaitCapacity: %v", err)
	}
	if *calls != 1 {
		t.Fatalf("expected a single poll, got %d", *calls)
	}
}

func TestAwaitCapacityHonoursCancellation(t *testing.T) {
	statfs, _ := scripted(1)
	ctx, cancel := context.WithCancel(context.Background())
	guard := New(config.Capacity{}, "/images", logging.NewNop(),
		WithHostname("scope"),
		WithStatfs(statfs),
		WithSleep(func(ctx context.Context, _ time.Duration) error {
			cancel()
			return ctx.Err()
		}),
	)
	err := guard.AwaitCapacity(ctx, 5)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
}

func TestUnknownHostSubtractsReserve(t *testing.T) {
	statfs, _ := scripted(12)
	cfg := config.Capacity{FallbackReserveGB: 10, Hosts: map[string]string{"scope": "/data"}}
	guard := New(cfg, "/images", logging.NewNop(), WithHostname("laptop"), WithStatfs(statfs))

	got, err := guard.AvailableGigabytes(context.Background())
	if err != nil {
		t.Fatalf("AvailableGigabytes: %v", err)
	}
	if got != 2 {
		t.Fatalf("expected reserve to be subtracted, got %v", got)
	}
	if guard.Path() != "/images" {
		t.Fatalf("unknown host should probe images dir, got %s", guard.Path())
	}

	statfs, _ = scripted(4)
	guard = New(cfg, "/images", logging.NewNop(), WithHostname("laptop"), WithStatfs(statfs))
	if got, _ := guard.AvailableGigabytes(context.Background()); got != 0 {
		t.Fatalf("expected clamp at zero, got %v", got)
	}
}

func TestLookupHostMatchesShortName(t *testing.T) {
	hosts := map[string]string{"scope": "/data"}
	if mount, ok := lookupHost(hosts, "scope.lab.example"); !ok || mount != "/data" {
		t.Fatalf("expected short hostname match, got %q %v", mount, ok)
	}
	if _, ok := lookupHost(hosts, ""); ok {
		t.Fatal("empty hostname must not match")
	}
}

func TestAvailableGigabytesReadsRealFilesystem(t *testing.T) {
	guard := New(config.Capacity{}, t.TempDir(), logging.NewNop(), WithHostname("scope"))
	if _, err := guard.AvailableGigabytes(context.Background()); err != nil {
		t.Fatalf("statfs on temp dir: %v", err)
	}
}
