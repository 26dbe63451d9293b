// Package reconcile derives every stage's work queue from current state.
//
// Each call to Reconciler.Snapshot lists the remote and local directories
// once and returns an immutable Snapshot. Queues are set differences over that
// snapshot and are never cached between units of work, so a run that is
// interrupted at any point recomputes the same answer from the filesystem and
// the remote archive alone.
package reconcile
