// Package builtin provides the compiled-in "core" step bundle.
//
// Register adds every definition to a steps.Registry. Steps that talk to
// external systems (notifications, the video encoder) receive them through
// Dependencies so tests can substitute fakes.
package builtin
