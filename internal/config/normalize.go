package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeCoordinator()
	c.normalizeLogging()
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.TempDir, err = expandPath(c.Paths.TempDir); err != nil {
		return fmt.Errorf("paths.temp_dir: %w", err)
	}
	if c.Paths.ConfigDir, err = expandPath(c.Paths.ConfigDir); err != nil {
		return fmt.Errorf("paths.config_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeCoordinator() {
	c.Coordinator.BaseURL = strings.TrimRight(strings.TrimSpace(c.Coordinator.BaseURL), "/")
	c.Coordinator.Hostname = strings.TrimSpace(c.Coordinator.Hostname)
	if c.Coordinator.Hostname == "" {
		if host, err := os.Hostname(); err == nil {
			c.Coordinator.Hostname = host
		}
	}
	if c.Coordinator.APIToken == "" {
		if value, ok := os.LookupEnv("FLOWRUNNER_API_TOKEN"); ok {
			c.Coordinator.APIToken = strings.TrimSpace(value)
		}
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

// ApplyOverrides replaces configured values with command-line flags. Empty
// values leave the configuration untouched.
func (c *Config) ApplyOverrides(baseURL, hostname, tempDir, configDir string) error {
	if v := strings.TrimSpace(baseURL); v != "" {
		c.Coordinator.BaseURL = strings.TrimRight(v, "/")
	}
	if v := strings.TrimSpace(hostname); v != "" {
		c.Coordinator.Hostname = v
	}
	var err error
	if v := strings.TrimSpace(tempDir); v != "" {
		if c.Paths.TempDir, err = expandPath(v); err != nil {
			return fmt.Errorf("temp path: %w", err)
		}
	}
	if v := strings.TrimSpace(configDir); v != "" {
		if c.Paths.ConfigDir, err = expandPath(v); err != nil {
			return fmt.Errorf("config path: %w", err)
		}
	}
	return c.Validate()
}
