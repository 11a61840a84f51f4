// Package flow models the step graphs a runner executes: flows, their parts
// (steps), and the numbered output connections that route between parts.
//
// A flow is an arena of parts addressed by UID. The package validates the
// single-entry invariant and answers routing questions; it does not execute
// anything.
package flow
