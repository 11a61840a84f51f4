package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"flowrunner/internal/preflight"
)

func newCheckCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify directories and coordinator reachability",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := cfg.EnsureDirectories(); err != nil {
				return fmt.Errorf("ensure directories: %w", err)
			}

			results := preflight.RunAll(cmd.Context(), cfg)
			rows := make([][]string, 0, len(results))
			for _, r := range results {
				rows = append(rows, []string{r.Name, yesNo(r.Passed), r.Detail})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Check", "Passed", "Detail"}, rows))

			if failed := preflight.Failed(results); len(failed) > 0 {
				return fmt.Errorf("%d check(s) failed", len(failed))
			}
			return nil
		},
	}
}
