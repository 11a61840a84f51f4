// Package preflight provides readiness checks for the filesystem paths and
// coordinator a runner depends on.
//
// These checks run in two contexts:
//   - Job bootstrap calls CheckDirectoryAccess on the temp directory before
//     touching the coordinator. A failure there ends the process.
//   - The CLI "flowrunner check" command runs RunAll and prints every result.
package preflight
