// Package workflow drives stage handlers until their work is done.
//
// A Runner owns one stage: it asks the handler for a fresh plan, processes
// the first image that has not been skipped this run, and repeats. When the
// queue is empty it either waits for upstream work (a stalled plan) or
// confirms completion over several consecutive snapshots. A Pipeline
// interleaves several runners one unit at a time in a single process, the way
// the sync command runs download, downsample and upload together.
package workflow
