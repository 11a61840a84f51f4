// Package liveness maintains the duplex channel between a running job and
// the coordinator.
//
// The runner sends Hello heartbeats (acknowledged) and log lines (fire and
// forget); the coordinator may invoke AbortFlow for a file. Unexpected
// disconnects are retried for a bounded window. The channel never cancels
// the job itself; the runner decides based on Hello results.
package liveness
