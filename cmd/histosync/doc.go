// Package main hosts the histosync CLI entrypoint and command graph.
//
// Each stage command opens one session against a dataset: it takes the
// dataset run lock, starts a journal run, clears stale partial files, checks
// the tools it needs and connects to the remote archive before handing the
// stage handlers to the workflow runner. Read-only commands (status, errors,
// history) skip the lock.
//
// Keep this package lean: behaviour lives in the internal packages and is
// surfaced here through flags and output formatting.
package main
