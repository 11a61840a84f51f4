package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"flowrunner/internal/config"
	"flowrunner/internal/job"
	"flowrunner/internal/liveness"
	"flowrunner/internal/logging"
	"flowrunner/internal/notifications"
	"flowrunner/internal/outbox"
	"flowrunner/internal/resolver"
	"flowrunner/internal/revision"
	"flowrunner/internal/runner"
	"flowrunner/internal/steps"
	"flowrunner/internal/steps/builtin"
)

type runOptions struct {
	runnerUID string
	fileUID   string
	cfgPath   string
	cfgKey    string
	baseURL   string
	tempPath  string
	hostname  string
	server    bool
	docker    bool
}

func newRunCommand(ctx *commandContext) *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Process one library file through its flow",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJob(cmd.Context(), ctx, opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.runnerUID, "uid", "", "Runner identifier assigned by the coordinator")
	flags.StringVar(&opts.fileUID, "libfile", "", "Library file to process")
	flags.StringVar(&opts.cfgPath, "cfgPath", "", "Directory holding the configuration snapshot")
	flags.StringVar(&opts.cfgKey, "cfgKey", "", "Configuration snapshot key, or NO_ENCRYPT")
	flags.StringVar(&opts.baseURL, "baseUrl", "", "Coordinator base URL")
	flags.StringVar(&opts.tempPath, "tempPath", "", "Temporary working directory")
	flags.StringVar(&opts.hostname, "hostname", "", "Processing node hostname")
	flags.BoolVar(&opts.server, "server", false, "Run as the coordinator's internal node")
	flags.BoolVar(&opts.docker, "docker", false, "Running inside a container")
	_ = cmd.MarkFlagRequired("uid")
	_ = cmd.MarkFlagRequired("libfile")
	_ = cmd.MarkFlagRequired("cfgKey")

	return cmd
}

func runJob(parent context.Context, cmdCtx *commandContext, opts runOptions) error {
	runnerUID, err := uuid.Parse(strings.TrimSpace(opts.runnerUID))
	if err != nil {
		return fmt.Errorf("invalid --uid: %w", err)
	}
	fileUID, err := uuid.Parse(strings.TrimSpace(opts.fileUID))
	if err != nil {
		return fmt.Errorf("invalid --libfile: %w", err)
	}

	cfg, err := cmdCtx.ensureConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ApplyOverrides(opts.baseURL, opts.hostname, opts.tempPath, opts.cfgPath); err != nil {
		return fmt.Errorf("apply overrides: %w", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	rev, err := revision.Load(cfg.RevisionPath(), opts.cfgKey)
	if err != nil {
		logging.ErrorWithContext(logger, "failed to load configuration snapshot", "config_load_failed",
			logging.String("path", cfg.RevisionPath()),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check --cfgPath and --cfgKey"))
		return err
	}

	client, err := newCoordinatorClient(cfg)
	if err != nil {
		return err
	}

	registry := steps.NewRegistry()
	if err := builtin.Register(registry, builtin.Dependencies{
		Notifier: notifications.NewService(cfg.Notifications),
	}); err != nil {
		return fmt.Errorf("register builtin steps: %w", err)
	}
	res := resolver.New(resolver.Options{
		Registry:    registry,
		ConfigDir:   cfg.Paths.ConfigDir,
		CoreVersion: version,
		Logger:      logger,
	})

	var reports runner.ReportStore
	store, err := outbox.Open(cfg.OutboxPath())
	if err != nil {
		logger.Warn("outbox unavailable; undelivered reports will be lost",
			logging.String("path", cfg.OutboxPath()),
			logging.Error(err))
	} else {
		defer store.Close()
		reports = store
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	timing := cfg.Timing()
	err = job.Execute(ctx, job.Args{
		RunnerUID: runnerUID,
		FileUID:   fileUID,
		ConfigDir: cfg.Paths.ConfigDir,
		TempDir:   cfg.Paths.TempDir,
		BaseURL:   cfg.Coordinator.BaseURL,
		Hostname:  cfg.Coordinator.Hostname,
		IsServer:  opts.server,
		Docker:    opts.docker,
	}, job.Dependencies{
		Coordinator: client,
		Revision:    rev,
		Resolver:    res,
		Dial:        liveDialer(cfg, timing, logger),
		Outbox:      reports,
		Logger:      logger,
		Timing:      timing,
		Version:     version,
	})
	if err != nil {
		return err
	}

	if store != nil {
		replayPending(context.WithoutCancel(ctx), store, client, logger)
	}
	return nil
}

// liveDialer connects the liveness channel with the runner's credentials.
func liveDialer(cfg *config.Config, timing config.Timing, logger *slog.Logger) job.Dialer {
	header := http.Header{}
	if token := cfg.Coordinator.APIToken; token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	return func(ctx context.Context, endpoint string, fileUID uuid.UUID, onAbort func()) (runner.Channel, error) {
		ch, err := liveness.Dial(ctx, liveness.Options{
			URL:               endpoint,
			FileUID:           fileUID,
			Header:            header,
			Logger:            logger,
			OnAbort:           onAbort,
			HelloTimeout:      timing.HelloTimeout,
			ReconnectInterval: timing.ReconnectInterval,
			ReconnectWindow:   timing.ReconnectWindow,
		})
		if err != nil {
			return nil, err
		}
		return ch, nil
	}
}

// replayPending retries reports left by earlier runs now that the
// coordinator has answered this one.
func replayPending(ctx context.Context, store *outbox.Store, sender outbox.Sender, logger *slog.Logger) {
	entries, err := store.List(ctx)
	if err != nil || len(entries) == 0 {
		return
	}
	result, err := store.Replay(ctx, sender, logging.NewComponentLogger(logger, "outbox"))
	if err != nil {
		logger.Warn("outbox replay stopped", logging.Error(err))
		return
	}
	logger.Info("outbox replayed",
		logging.Int("delivered", result.Delivered),
		logging.Int("failed", result.Failed))
}
