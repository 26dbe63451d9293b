// Package capacity guards local disk space before downloads.
//
// The guard probes the filesystem holding the images directory, or the mount
// configured for the current host, and blocks a stage until enough space is
// free. Unknown hosts fall back to a conservative reading so the guard never
// assumes unlimited space.
package capacity
