// Package inventory reports which slice images exist in local directories and
// maintains the append-only error list of basenames the downsample tool could
// not process.
package inventory
