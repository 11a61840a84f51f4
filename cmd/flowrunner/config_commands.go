package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"flowrunner/internal/config"
	"flowrunner/internal/revision"
)

func newConfigCommand(ctx *commandContext) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration utilities",
	}

	configCmd.AddCommand(newConfigInitCommand())
	configCmd.AddCommand(newConfigValidateCommand(ctx))
	configCmd.AddCommand(newConfigEncryptCommand())

	return configCmd
}

func newConfigInitCommand() *cobra.Command {
	var targetPath string
	var overwrite bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a sample runner configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			target := strings.TrimSpace(targetPath)
			var err error
			if target == "" {
				target, err = config.DefaultConfigPath()
				if err != nil {
					return fmt.Errorf("determine default config path: %w", err)
				}
			} else if target, err = config.ExpandPath(target); err != nil {
				return fmt.Errorf("resolve config path: %w", err)
			}

			if !overwrite {
				if _, err := os.Stat(target); err == nil {
					return fmt.Errorf("config file already exists at %s (use --overwrite to replace it)", target)
				} else if !os.IsNotExist(err) {
					return fmt.Errorf("check config path: %w", err)
				}
			}

			if err := config.CreateSample(target); err != nil {
				return fmt.Errorf("create sample config: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Wrote sample configuration to %s\n", target)
			fmt.Fprintln(out, "Set coordinator.base_url (and api_token or FLOWRUNNER_API_TOKEN) before running jobs.")
			return nil
		},
	}

	cmd.Flags().StringVarP(&targetPath, "path", "p", "", "Destination for the configuration file")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Overwrite existing configuration if present")
	return cmd
}

func newConfigValidateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the runner configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := cfg.EnsureDirectories(); err != nil {
				return fmt.Errorf("ensure directories: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Coordinator: %s\n", cfg.Coordinator.BaseURL)
			fmt.Fprintf(out, "Hostname:    %s\n", cfg.Coordinator.Hostname)
			fmt.Fprintf(out, "Temp dir:    %s\n", cfg.Paths.TempDir)
			fmt.Fprintf(out, "API token:   %s\n", yesNo(cfg.Coordinator.APIToken != ""))
			fmt.Fprintln(out, "Configuration valid")
			return nil
		},
	}
}

// newConfigEncryptCommand produces an encrypted configuration snapshot the
// way the coordinator writes it, for running jobs by hand.
func newConfigEncryptCommand() *cobra.Command {
	var inPath, outPath, key string

	cmd := &cobra.Command{
		Use:   "encrypt",
		Short: "Encrypt a plain-text configuration snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(key) == "" || key == revision.NoEncryptKey {
				return fmt.Errorf("--key must be a real key, not empty or %s", revision.NoEncryptKey)
			}
			data, err := os.ReadFile(inPath)
			if err != nil {
				return fmt.Errorf("read snapshot: %w", err)
			}
			rev, err := revision.Parse(data)
			if err != nil {
				return fmt.Errorf("snapshot is not valid: %w", err)
			}
			sealed, err := revision.Encrypt(string(data), key)
			if err != nil {
				return err
			}
			if err := os.WriteFile(outPath, []byte(sealed), 0o600); err != nil {
				return fmt.Errorf("write snapshot: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Encrypted revision %d (%d flows, %d libraries) to %s\n",
				rev.Revision, len(rev.Flows), len(rev.Libraries), outPath)
			return nil
		},
	}

	cmd.Flags().StringVar(&inPath, "in", "", "Plain-text snapshot to encrypt")
	cmd.Flags().StringVar(&outPath, "out", "", "Destination for the encrypted snapshot")
	cmd.Flags().StringVar(&key, "key", "", "Encryption key (pass the same value as --cfgKey)")
	_ = cmd.MarkFlagRequired("in")
	_ = cmd.MarkFlagRequired("out")
	_ = cmd.MarkFlagRequired("key")
	return cmd
}
