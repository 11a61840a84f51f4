// Package outbox persists completion reports the coordinator never
// acknowledged.
//
// The runner saves a report here after its completion retries run out;
// `flowrunner outbox replay` delivers them later. Storage is a small SQLite
// database under the state directory.
package outbox
