// Package library holds the coordinator-owned records a runner reads and
// updates: libraries, library files, their processing status, and the
// per-step execution history appended while a flow runs.
package library
