package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"flowrunner/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// Every directory exists when NewConfig returns.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.TempDir = filepath.Join(base, "temp")
	cfgVal.Paths.ConfigDir = filepath.Join(base, "config")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Coordinator.BaseURL = "http://127.0.0.1:0"

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("create config directories: %v", err)
	}
	if err := os.MkdirAll(builder.cfg.Paths.ConfigDir, 0o755); err != nil {
		t.Fatalf("create config dir: %v", err)
	}
	return builder.cfg
}

// WithCoordinator points the config at a coordinator base URL.
func WithCoordinator(baseURL string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Coordinator.BaseURL = baseURL
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.TempDir)
}
