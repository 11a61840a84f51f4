package resolver_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"flowrunner/internal/resolver"
	"flowrunner/internal/scripting"
	"flowrunner/internal/services"
	"flowrunner/internal/steps"
	"flowrunner/internal/steps/builtin"
)

func newResolver(t *testing.T, configDir string) *resolver.Resolver {
	t.Helper()
	registry := steps.NewRegistry()
	if err := builtin.Register(registry, builtin.Dependencies{}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	return resolver.New(resolver.Options{Registry: registry, ConfigDir: configDir, CoreVersion: "1.0.0"})
}

func write(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestResolveBuiltinBindsProperties(t *testing.T) {
	r := newResolver(t, t.TempDir())
	step, err := r.Resolve(builtin.TypeFail, map[string]any{"Name": "ignored", "Reason": "stop here", "Bogus": 1})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	fail, ok := step.(*builtin.Fail)
	if !ok || fail.Reason != "stop here" {
		t.Fatalf("unexpected step %#v", step)
	}
}

func TestResolveUnknownType(t *testing.T) {
	r := newResolver(t, t.TempDir())
	_, err := r.Resolve("Missing.Step", nil)
	if !errors.Is(err, services.ErrNodeLoad) {
		t.Fatalf("expected ErrNodeLoad, got %v", err)
	}
}

func TestResolveScript(t *testing.T) {
	dir := t.TempDir()
	write(t, filepath.Join(dir, "Scripts", "Flow", "Route.js"), "/**\n * Routes\n * @param {int} Target output\n * @output one\n * @output two\n */\nfunction Script(Target) { return Target; }\n")
	r := newResolver(t, dir)

	step, err := r.Resolve("Scripts.Route", map[string]any{"Target": float64(2)})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if _, ok := step.(*scripting.Step); !ok {
		t.Fatalf("expected script step, got %T", step)
	}
	out, err := step.Execute(context.Background(), steps.NewArgs(nil, "/f", steps.Hooks{}))
	if err != nil || out != 2 {
		t.Fatalf("expected output 2, got %d %v", out, err)
	}

	_, err = r.Resolve("Scripts.Missing", nil)
	if !errors.Is(err, resolver.ErrScriptNotFound) || !errors.Is(err, services.ErrNodeLoad) {
		t.Fatalf("expected ErrScriptNotFound, got %v", err)
	}
	if !resolver.IsScript("Scripts.Route") || resolver.IsScript(builtin.TypeLog) {
		t.Fatal("unexpected IsScript result")
	}
}

func TestResolvePluginBundleAndCache(t *testing.T) {
	dir := t.TempDir()
	write(t, filepath.Join(dir, "Plugins", "media", "plugin.toml"), `
name = "Media"
version = "2.1.0"

[[elements]]
type = "Media.Halt"
builtin = "core.Fail"

[[elements]]
type = "Probe"
command = "sh"
arguments = ["-c", "exit 0"]
`)
	write(t, filepath.Join(dir, "Plugins", "broken", "plugin.toml"), "name = \n")
	r := newResolver(t, dir)

	step, err := r.Resolve("Media.Halt", map[string]any{"Reason": "plugin"})
	if err != nil {
		t.Fatalf("Resolve builtin element: %v", err)
	}
	if fail, ok := step.(*builtin.Fail); !ok || fail.Reason != "plugin" {
		t.Fatalf("unexpected step %#v", step)
	}

	step, err = r.Resolve("Media.Probe", nil)
	if err != nil {
		t.Fatalf("Resolve command element: %v", err)
	}
	cmd, ok := step.(*builtin.Command)
	if !ok || cmd.Executable != "sh" || len(cmd.Arguments) != 2 {
		t.Fatalf("unexpected command step %#v", step)
	}

	bundles := r.Bundles()
	if len(bundles) != 2 || bundles[0].Name != builtin.BundleName || bundles[1].Name != "Media" || bundles[1].Version != "2.1.0" {
		t.Fatalf("unexpected bundles %+v", bundles)
	}

	write(t, filepath.Join(dir, "Plugins", "late", "plugin.toml"), "name = \"Late\"\n[[elements]]\ntype = \"Late.Step\"\nbuiltin = \"core.Log\"\n")
	if _, err := r.Resolve("Late.Step", nil); !errors.Is(err, services.ErrNodeLoad) {
		t.Fatalf("expected cached scan to miss late bundle, got %v", err)
	}
}
