// Package logging assembles structured slog loggers and formatting helpers used
// across histosync.
//
// It owns the console and JSON handlers, level and output plumbing, and the
// standard field keys (dataset, stage, run_id, basename, event_type). Context
// helpers lift the identifiers stamped by the services package into log
// fields. A no-op logger is provided for tests and wiring that cannot fail.
package logging
