// Package logging assembles structured slog loggers and formatting helpers used
// across the runner.
//
// It owns the configurable console/JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so engine and step code can
// automatically tag log lines with file IDs, flows, steps, and correlation IDs.
// FlowLog captures the per-job log text that is streamed to the coordinator
// line by line and uploaded in full when the job finishes. The package also
// provides a no-op logger for tests and wiring code that cannot fail.
package logging
