package main

import (
	"log/slog"
	"strings"
	"sync"

	"flowrunner/internal/config"
	"flowrunner/internal/coordinator"
	"flowrunner/internal/logging"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

// ensureConfig loads the runner configuration once. Directories are not
// created here because `run` overrides paths first.
func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) logger(cfg *config.Config) *slog.Logger {
	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return logging.NewNop()
	}
	return logger
}

func newCoordinatorClient(cfg *config.Config) (*coordinator.Client, error) {
	return coordinator.New(coordinator.Config{
		BaseURL:  cfg.Coordinator.BaseURL,
		APIToken: cfg.Coordinator.APIToken,
		Timeout:  cfg.RequestTimeout(),
	})
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
