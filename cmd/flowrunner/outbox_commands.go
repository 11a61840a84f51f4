package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"flowrunner/internal/logging"
	"flowrunner/internal/outbox"
)

func newOutboxCommand(ctx *commandContext) *cobra.Command {
	outboxCmd := &cobra.Command{
		Use:   "outbox",
		Short: "Inspect and deliver stored completion reports",
	}
	outboxCmd.AddCommand(newOutboxListCommand(ctx))
	outboxCmd.AddCommand(newOutboxReplayCommand(ctx))
	return outboxCmd
}

func newOutboxListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List completion reports the coordinator never acknowledged",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openOutbox(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			entries, err := store.List(cmd.Context())
			if err != nil {
				return fmt.Errorf("list reports: %w", err)
			}
			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(out, "No pending reports")
				return nil
			}
			rows := make([][]string, 0, len(entries))
			for _, e := range entries {
				rows = append(rows, []string{
					strconv.FormatInt(e.ID, 10),
					e.FileName,
					e.Status.String(),
					e.CreatedAt.Local().Format(time.DateTime),
					strconv.Itoa(e.Attempts),
					e.LastError,
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"ID", "File", "Status", "Stored", "Attempts", "Last Error"},
				rows, 0, 4))
			return nil
		},
	}
}

func newOutboxReplayCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "replay",
		Short: "Send stored completion reports to the coordinator",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			store, err := openOutbox(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			client, err := newCoordinatorClient(cfg)
			if err != nil {
				return err
			}
			logger := logging.NewComponentLogger(ctx.logger(cfg), "outbox")
			result, err := store.Replay(cmd.Context(), client, logger)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Delivered: %d\n", result.Delivered)
			fmt.Fprintf(out, "Failed:    %d\n", result.Failed)
			if err != nil {
				return fmt.Errorf("replay reports: %w", err)
			}
			if result.Failed > 0 {
				return fmt.Errorf("%d report(s) could not be delivered", result.Failed)
			}
			return nil
		},
	}
}

func openOutbox(ctx *commandContext) (*outbox.Store, error) {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	store, err := outbox.Open(cfg.OutboxPath())
	if err != nil {
		return nil, fmt.Errorf("open outbox: %w", err)
	}
	return store, nil
}
