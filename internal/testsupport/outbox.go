package testsupport

import (
	"testing"

	"flowrunner/internal/config"
	"flowrunner/internal/outbox"
)

// MustOpenOutbox opens the config's outbox store and registers cleanup.
func MustOpenOutbox(t testing.TB, cfg *config.Config) *outbox.Store {
	t.Helper()

	store, err := outbox.Open(cfg.OutboxPath())
	if err != nil {
		t.Fatalf("outbox.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}
