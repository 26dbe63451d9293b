package imagetool

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"histosync/internal/logging"
	"histosync/internal/services"
)

const (
	stderrTail = 2048
	waitDelay  = 5 * time.Second
)

// Outcome classifies a tool invocation.
type Outcome int

const (
	Success Outcome = iota
	ToolFailure
)

func (o Outcome) String() string {
	if o == Success {
		return "success"
	}
	return "tool_failure"
}

// Result describes one completed invocation.
type Result struct {
	Outcome  Outcome
	ExitCode int
	TimedOut bool
	Stderr   string
	Duration time.Duration
}

// OK reports a zero exit status.
func (r Result) OK() bool {
	return r.Outcome == Success
}

// Err returns nil on success and an error marked services.ErrToolFailure
// otherwise.
func (r Result) Err(tool string) error {
	if r.OK() {
		return nil
	}
	detail := "exit status " + strconv.Itoa(r.ExitCode)
	if r.TimedOut {
		detail = "timed out"
	}
	if r.Stderr != "" {
		detail += ": " + r.Stderr
	}
	return services.Wrap(services.ErrToolFailure, tool, "run", detail, nil)
}

// Runner invokes one executable.
type Runner struct {
	binary  string
	timeout time.Duration
	logger  *slog.Logger
}

// NewRunner returns a runner for binary. A zero timeout means none.
func NewRunner(binary string, timeout time.Duration, logger *slog.Logger) *Runner {
	return &Runner{
		binary:  strings.TrimSpace(binary),
		timeout: timeout,
		logger:  logging.NewComponentLogger(logger, "imagetool"),
	}
}

// Binary returns the configured executable.
func (r *Runner) Binary() string {
	return r.binary
}

// Shrink runs `binary src dst ratio`.
func (r *Runner) Shrink(ctx context.Context, src, dst string, ratio int) (Result, error) {
	return r.Run(ctx, src, dst, strconv.Itoa(ratio))
}

// Convert runs `binary src dst`.
func (r *Runner) Convert(ctx context.Context, src, dst string) (Result, error) {
	return r.Run(ctx, src, dst)
}

// Run executes the binary with args.
func (r *Runner) Run(ctx context.Context, args ...string) (Result, error) {
	if r.binary == "" {
		return Result{}, services.Wrap(services.ErrConfiguration, "imagetool", "run", "tool binary not configured", nil)
	}
	runCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(runCtx, r.binary, args...) //nolint:gosec
	cmd.Stderr = &stderr
	cmd.WaitDelay = waitDelay
	start := time.Now()
	err := cmd.Run()
	result := Result{Duration: time.Since(start), Stderr: tail(stderr.String())}

	if err == nil {
		r.logger.Debug("tool finished",
			logging.String("binary", r.binary),
			logging.Duration("duration", result.Duration),
		)
		return result, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return result, ctxErr
	}

	var exitErr *exec.ExitError
	switch {
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		result.Outcome = ToolFailure
		result.ExitCode = -1
		result.TimedOut = true
	case errors.As(err, &exitErr):
		result.Outcome = ToolFailure
		result.ExitCode = exitErr.ExitCode()
	default:
		return result, services.Wrap(services.ErrExternalTool, "imagetool", "launch",
			fmt.Sprintf("cannot run %s", r.binary), err)
	}

	r.logger.Info("tool reported failure",
		logging.String("binary", r.binary),
		logging.Int("exit_code", result.ExitCode),
		logging.Bool("timed_out", result.TimedOut),
		logging.String("stderr", result.Stderr),
	)
	return result, nil
}

func tail(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= stderrTail {
		return s
	}
	return "..." + s[len(s)-stderrTail:]
}
