// Package job prepares a single library file for processing and hands it to
// the runner.
//
// Execute resolves the processing node, the file record, its library and
// flow, and settles every case that needs no flow execution (missing file,
// mapping issue, missing flow, invalid flow) directly with the coordinator.
// Only a file that passes every check is locked, marked Processing and run.
package job
