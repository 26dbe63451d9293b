package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrTransient     = errors.New("transient failure")
	ErrRemoteState   = errors.New("remote state error")
	ErrNotFound      = errors.New("not found")
	ErrToolFailure   = errors.New("tool failure")
	ErrExternalTool  = errors.New("external tool error")
	ErrConfiguration = errors.New("configuration error")
	ErrValidation    = errors.New("validation error")
)

// Wrap tags err with a marker so callers can classify it with errors.Is while
// the message keeps the stage and operation that produced it. A nil marker is
// treated as transient.
func Wrap(marker error, stage, operation, message string, err error) error {
	if marker == nil {
		marker = ErrTransient
	}
	detail := joinDetail(stage, operation, message)
	if err == nil {
		return fmt.Errorf("%w: %s", marker, detail)
	}
	return fmt.Errorf("%w: %s: %w", marker, detail, err)
}

// IsFatal reports whether err should stop a run rather than be retried or
// skipped. Configuration, validation and tool launch failures are fatal.
func IsFatal(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrConfiguration), errors.Is(err, ErrValidation), errors.Is(err, ErrExternalTool):
		return true
	default:
		return false
	}
}

// Skippable reports whether a single item failed because of remote state
// that will not change within this run.
func Skippable(err error) bool {
	return err != nil && !IsFatal(err) && errors.Is(err, ErrRemoteState)
}

// Hint returns the operator's next step for a classified error.
func Hint(err error) string {
	switch {
	case errors.Is(err, ErrConfiguration):
		return "check the dataset configuration and the remote directory"
	case errors.Is(err, ErrValidation):
		return "rename or remove the offending file"
	case errors.Is(err, ErrExternalTool):
		return "check that the tool binary is installed and executable"
	case errors.Is(err, ErrNotFound):
		return "check that the remote path exists"
	case errors.Is(err, ErrTransient):
		return "check connectivity and rerun"
	default:
		return "check logs for details"
	}
}

func joinDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	for _, part := range []string{stage, operation, message} {
		if part = strings.TrimSpace(part); part != "" {
			parts = append(parts, part)
		}
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
