package preflight

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"histosync/internal/config"
	"histosync/internal/deps"
	"histosync/internal/services"
)

// Lister is the part of the remote archive a reachability check needs.
type Lister interface {
	List(ctx context.Context, dir string) ([]string, error)
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckSystemDeps evaluates the image tools. A tool the command does not
// need is still reported but marked optional.
func CheckSystemDeps(_ context.Context, cfg *config.Config, req Requirements) []deps.Status {
	return deps.CheckBinaries([]deps.Requirement{
		{
			Name:        "ShrinkImage",
			Command:     cfg.Tools.ShrinkBinary,
			Description: "Required for downsampling",
			Optional:    !req.Shrink,
		},
		{
			Name:        "ConvertRGBAToRGB",
			Command:     cfg.Tools.RGBABinary,
			Description: "Required for RGBA conversion",
			Optional:    !req.RGBA,
		},
	})
}

// CheckRemote lists dir with a short timeout to prove the archive is
// reachable and the credentials work.
func CheckRemote(ctx context.Context, name string, remote Lister, dir string) Result {
	checkCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	names, err := remote.List(checkCtx, dir)
	switch {
	case err == nil:
		return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (%d entries)", dir, len(names))}
	case errors.Is(err, services.ErrNotFound):
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", dir)}
	case errors.Is(err, services.ErrConfiguration):
		return Result{Name: name, Detail: "credentials rejected"}
	default:
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", dir, err)}
	}
}
