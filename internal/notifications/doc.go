// Package notifications publishes runner events to ntfy.
//
// NewService returns a no-op publisher when no topic is configured, so step
// code can publish unconditionally. The Notify builtin step is the main
// caller; failure flows use it to alert operators.
package notifications
