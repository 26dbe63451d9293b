// Package services defines the error taxonomy and context helpers shared by
// the transport, stage and workflow packages.
//
// Errors are tagged with one of the exported sentinel markers through Wrap so
// the runner can decide, with errors.Is, whether a failure is retried inside a
// transport, skipped for the rest of a run, recorded in the error list, or
// fatal. Context helpers stamp stage, dataset and run identifiers that the
// logging package lifts into structured fields.
package services
