package preflight

import (
	"context"

	"flowrunner/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes every preflight check for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}
	return []Result{
		CheckDirectoryAccess("Temp directory", cfg.Paths.TempDir),
		CheckDirectoryAccess("Config directory", cfg.Paths.ConfigDir),
		CheckDirectoryAccess("State directory", cfg.Paths.StateDir),
		CheckCoordinator(ctx, cfg.Coordinator.BaseURL),
	}
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}
