package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	TempDir   string `toml:"temp_dir"`
	ConfigDir string `toml:"config_dir"`
	LogDir    string `toml:"log_dir"`
	StateDir  string `toml:"state_dir"`
}

// Coordinator contains connection settings for the coordinating server.
type Coordinator struct {
	BaseURL        string `toml:"base_url"`
	Hostname       string `toml:"hostname"`
	APIToken       string `toml:"api_token"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Runner contains heartbeat, progress, and retry timings. All values are
// seconds except ProgressThreshold.
type Runner struct {
	HeartbeatInterval       int     `toml:"heartbeat_interval"`
	HeartbeatTimeout        int     `toml:"heartbeat_timeout"`
	HelloTimeout            int     `toml:"hello_timeout"`
	ReconnectInterval       int     `toml:"reconnect_interval"`
	ReconnectWindow         int     `toml:"reconnect_window"`
	ProgressInterval        int     `toml:"progress_interval"`
	ProgressThreshold       float64 `toml:"progress_threshold"`
	StatusRetryInterval     int     `toml:"status_retry_interval"`
	StatusRetryWindow       int     `toml:"status_retry_window"`
	CompletionRetryInterval int     `toml:"completion_retry_interval"`
	CompletionRetryWindow   int     `toml:"completion_retry_window"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Config encapsulates all configuration values for the runner.
//
// Configuration sections by subsystem:
//   - Paths: working, configuration, log, and state directories
//   - Coordinator: base URL, worker hostname, and API credentials
//   - Runner: heartbeat, reconnect, progress, and completion retry timings
//   - Logging: log format and level
//   - Notifications: ntfy push notification settings
type Config struct {
	Paths         Paths         `toml:"paths"`
	Coordinator   Coordinator   `toml:"coordinator"`
	Runner        Runner        `toml:"runner"`
	Logging       Logging       `toml:"logging"`
	Notifications Notifications `toml:"notifications"`
}

// Timing is the Runner section converted to durations.
type Timing struct {
	HeartbeatInterval       time.Duration
	HeartbeatTimeout        time.Duration
	HelloTimeout            time.Duration
	ReconnectInterval       time.Duration
	ReconnectWindow         time.Duration
	ProgressInterval        time.Duration
	ProgressThreshold       float64
	StatusRetryInterval     time.Duration
	StatusRetryWindow       time.Duration
	CompletionRetryInterval time.Duration
	CompletionRetryWindow   time.Duration
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("flowrunner.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the directories the runner writes to.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.TempDir, c.Paths.LogDir, c.Paths.StateDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// OutboxPath returns the SQLite database holding undelivered completion reports.
func (c *Config) OutboxPath() string {
	return filepath.Join(c.Paths.StateDir, "outbox.db")
}

// RevisionPath returns the configuration snapshot file inside the config directory.
func (c *Config) RevisionPath() string {
	return filepath.Join(c.Paths.ConfigDir, "config.json")
}

// Timing converts the runner timings to durations.
func (c *Config) Timing() Timing {
	r := c.Runner
	return Timing{
		HeartbeatInterval:       seconds(r.HeartbeatInterval),
		HeartbeatTimeout:        seconds(r.HeartbeatTimeout),
		HelloTimeout:            seconds(r.HelloTimeout),
		ReconnectInterval:       seconds(r.ReconnectInterval),
		ReconnectWindow:         seconds(r.ReconnectWindow),
		ProgressInterval:        seconds(r.ProgressInterval),
		ProgressThreshold:       r.ProgressThreshold,
		StatusRetryInterval:     seconds(r.StatusRetryInterval),
		StatusRetryWindow:       seconds(r.StatusRetryWindow),
		CompletionRetryInterval: seconds(r.CompletionRetryInterval),
		CompletionRetryWindow:   seconds(r.CompletionRetryWindow),
	}
}

// RequestTimeout returns the HTTP timeout for coordinator requests.
func (c *Config) RequestTimeout() time.Duration {
	return seconds(c.Coordinator.RequestTimeout)
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
