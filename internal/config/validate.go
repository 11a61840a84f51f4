package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateCoordinator(); err != nil {
		return err
	}
	if err := c.validateRunner(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return c.validateNotifications()
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.TempDir) == "" {
		return errors.New("paths.temp_dir must be set")
	}
	if strings.TrimSpace(c.Paths.ConfigDir) == "" {
		return errors.New("paths.config_dir must be set")
	}
	return nil
}

func (c *Config) validateCoordinator() error {
	raw := strings.TrimSpace(c.Coordinator.BaseURL)
	if raw == "" {
		return errors.New("coordinator.base_url must be set")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("coordinator.base_url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("coordinator.base_url must use http or https, got %q", parsed.Scheme)
	}
	if c.Coordinator.RequestTimeout <= 0 {
		return errors.New("coordinator.request_timeout must be positive")
	}
	return nil
}

func (c *Config) validateRunner() error {
	r := c.Runner
	positive := []struct {
		name  string
		value int
	}{
		{"runner.heartbeat_interval", r.HeartbeatInterval},
		{"runner.heartbeat_timeout", r.HeartbeatTimeout},
		{"runner.hello_timeout", r.HelloTimeout},
		{"runner.reconnect_interval", r.ReconnectInterval},
		{"runner.reconnect_window", r.ReconnectWindow},
		{"runner.progress_interval", r.ProgressInterval},
		{"runner.status_retry_interval", r.StatusRetryInterval},
		{"runner.status_retry_window", r.StatusRetryWindow},
		{"runner.completion_retry_interval", r.CompletionRetryInterval},
		{"runner.completion_retry_window", r.CompletionRetryWindow},
	}
	for _, field := range positive {
		if field.value <= 0 {
			return fmt.Errorf("%s must be positive", field.name)
		}
	}
	if r.HeartbeatTimeout < r.HeartbeatInterval {
		return errors.New("runner.heartbeat_timeout must be at least runner.heartbeat_interval")
	}
	if r.ProgressThreshold < 0 || r.ProgressThreshold >= 100 {
		return errors.New("runner.progress_threshold must be between 0 and 100")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "auto", "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}

func (c *Config) validateNotifications() error {
	if c.Notifications.NtfyTopic != "" && c.Notifications.RequestTimeout <= 0 {
		return errors.New("notifications.request_timeout must be positive")
	}
	return nil
}
