// Package services defines shared utilities consumed by the runner, the job
// bootstrap, and step implementations.
//
// Key responsibilities:
//   - Context helpers that stamp file IDs, flow names, step names, runner IDs,
//     and correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper that translate failures
//     into the terminal file statuses reported to the coordinator.
//
// Use these helpers when wiring new step logic so error classification and
// log annotation stay uniform across the runner.
package services
