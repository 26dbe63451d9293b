// Package preflight provides readiness checks for the filesystem paths,
// external tools and remote archive histosync depends on.
//
// These checks run in two contexts:
//   - Stage commands call RunAll before the first unit of work and stop when
//     a required check fails, so a doomed run fails in seconds.
//   - The CLI "histosync status" command shows every result, including the
//     remote check, without stopping.
package preflight
