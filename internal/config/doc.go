// Package config loads, normalizes, and validates runner configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// FLOWRUNNER_API_TOKEN. The Config type centralizes every knob the runner
// needs: working directories, the coordinator endpoint, heartbeat and retry
// timings, logging, and notifications.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
