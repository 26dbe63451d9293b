// Package logs finds and tails per-run log files.
//
// Every exclusive command writes `<dataset>-<command>-<timestamp>.log` under
// the configured log directory. Latest picks the newest one for a dataset,
// Last reads its final lines with bounded memory, and Follow streams lines
// appended afterwards until the context ends.
package logs
