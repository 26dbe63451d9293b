// Package imagetool runs the external image-processing executables.
//
// Only the exit status of a tool matters. A non-zero exit is reported as a
// ToolFailure result rather than an error so callers can record the image and
// move on; an error is returned only when the tool cannot be launched at all
// or the caller's context ends.
package imagetool
