package preflight

import (
	"context"

	"histosync/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// Requirements selects which tools a command needs.
type Requirements struct {
	Shrink bool
	RGBA   bool
}

// RunAll executes the local checks for cfg: directory access and the
// external tools the command needs.
func RunAll(ctx context.Context, cfg *config.Config, req Requirements) []Result {
	if cfg == nil {
		return nil
	}
	results := []Result{
		CheckDirectoryAccess("Images directory", cfg.Paths.ImagesDir),
		CheckDirectoryAccess("State directory", cfg.Paths.StateDir),
	}
	for _, status := range CheckSystemDeps(ctx, cfg, req) {
		result := Result{Name: status.Name, Passed: status.Available, Detail: status.Resolved}
		switch {
		case !status.Available && status.Optional:
			result.Passed = true
			result.Detail = status.Detail + " (not needed)"
		case !status.Available:
			result.Detail = status.Detail
		}
		results = append(results, result)
	}
	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}
