// Package main hosts the flowrunner CLI.
//
// The coordinator launches `flowrunner run` once per library file. The
// remaining commands are operator tools: scaffolding and encrypting
// configuration, checking that a node can run jobs, and inspecting or
// replaying completion reports that could not be delivered.
package main
