// Package revision loads the configuration snapshot a runner is started with:
// every enabled flow and library, global variables, the step ceiling, and
// per-plugin settings. The snapshot is a JSON document that may be encrypted
// with a key supplied by the coordinator.
package revision
