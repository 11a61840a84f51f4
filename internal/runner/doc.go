// Package runner executes a flow against one library file.
//
// A Runner walks the flow graph one step at a time, follows flow redirects,
// falls back to the default failure flow, and reports progress to the
// coordinator. A heartbeat goroutine keeps the live channel alive and
// cancels the job when the coordinator stops answering.
package runner
