// Package journal records run history in SQLite.
//
// The journal is an audit trail only. Work queues are always derived from the
// filesystem and the remote archive, so deleting the database loses history
// but never changes what a run will do.
package journal
