// Package rgba converts RGBA slice images to RGB with the external tool.
//
// Conversion is a local directory-to-directory stage: every image in the
// source directory that is missing from the destination is converted.
// Rejected images go to the destination directory's error list.
package rgba

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"

	"histosync/internal/dataset"
	"histosync/internal/fileutil"
	"histosync/internal/imagetool"
	"histosync/internal/inventory"
	"histosync/internal/logging"
	"histosync/internal/stage"
)

// StageName identifies the stage in logs and the journal.
const StageName = "rgba"

// Converter runs the RGBA to RGB tool.
type Converter interface {
	Binary() string
	Convert(ctx context.Context, src, dst string) (imagetool.Result, error)
}

// Handler implements stage.Handler.
type Handler struct {
	srcDir    string
	dstDir    string
	ext       string
	tool      Converter
	errorList *inventory.ErrorList
	logger    *slog.Logger
}

// New constructs a converter stage from srcDir into dstDir.
func New(srcDir, dstDir, ext string, tool Converter, logger *slog.Logger) *Handler {
	h := &Handler{
		srcDir:    srcDir,
		dstDir:    dstDir,
		ext:       ext,
		tool:      tool,
		errorList: inventory.NewErrorList(filepath.Join(dstDir, dataset.ErrorListName)),
	}
	h.SetLogger(logger)
	return h
}

// SetLogger implements stage.LoggerAware.
func (h *Handler) SetLogger(logger *slog.Logger) {
	h.logger = logging.NewComponentLogger(logger, StageName)
}

// Name implements stage.Handler.
func (h *Handler) Name() string {
	return StageName
}

// Plan implements stage.Handler.
func (h *Handler) Plan(context.Context) (stage.Plan, error) {
	if info, err := os.Stat(h.srcDir); err != nil || !info.IsDir() {
		return stage.Plan{}, fmt.Errorf("source directory %s is not readable", h.srcDir)
	}
	src, err := inventory.ListSet(h.srcDir, h.ext)
	if err != nil {
		return stage.Plan{}, err
	}
	dst, err := inventory.ListSet(h.dstDir, h.ext)
	if err != nil {
		return stage.Plan{}, err
	}
	listed, err := h.errorList.Read()
	if err != nil {
		return stage.Plan{}, err
	}
	failed := make(dataset.Set, len(listed))
	for name := range listed {
		failed[name] = dataset.ImageFile{Basename: name}
	}
	queue := src.Minus(dst, failed).Sorted()
	return stage.Plan{
		Queue:    queue,
		Progress: stage.Progress{Remaining: len(queue), Total: len(src)},
	}, nil
}

// Process implements stage.Handler.
func (h *Handler) Process(ctx context.Context, item dataset.ImageFile) (stage.Outcome, error) {
	src := filepath.Join(h.srcDir, item.Name)
	dst := filepath.Join(h.dstDir, item.Name)
	if err := os.MkdirAll(h.dstDir, 0o755); err != nil {
		return "", fmt.Errorf("create destination directory: %w", err)
	}
	part := fileutil.ToolPartPath(dst)
	if err := fileutil.RemoveIfExists(part); err != nil {
		return "", err
	}

	result, err := h.tool.Convert(ctx, src, part)
	if err != nil {
		_ = fileutil.RemoveIfExists(part)
		return "", err
	}
	if result.OK() {
		if _, statErr := os.Stat(part); statErr != nil {
			result.Outcome = imagetool.ToolFailure
		}
	}
	if !result.OK() {
		_ = fileutil.RemoveIfExists(part)
		if err := h.errorList.Add(item.Basename); err != nil {
			return "", fmt.Errorf("record tool failure: %w", err)
		}
		return stage.OutcomeToolFailure, nil
	}
	if err := fileutil.Commit(part, dst); err != nil {
		return "", err
	}
	return stage.OutcomeDone, nil
}

// HealthCheck implements stage.Handler.
func (h *Handler) HealthCheck(context.Context) stage.Health {
	if _, err := exec.LookPath(h.tool.Binary()); err != nil {
		return stage.Unhealthy(StageName, fmt.Sprintf("binary %q not found", h.tool.Binary()))
	}
	return stage.Healthy(StageName)
}
