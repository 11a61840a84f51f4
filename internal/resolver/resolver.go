package resolver

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"flowrunner/internal/logging"
	"flowrunner/internal/scripting"
	"flowrunner/internal/services"
	"flowrunner/internal/steps"
	"flowrunner/internal/steps/builtin"
)

// ScriptPrefix marks part types that refer to flow scripts.
const ScriptPrefix = "Scripts."

// ErrScriptNotFound is returned when a flow script file is missing.
var ErrScriptNotFound = fmt.Errorf("%w: script not found", services.ErrNodeLoad)

// Options configures a Resolver.
type Options struct {
	Registry    *steps.Registry
	ConfigDir   string
	CoreVersion string
	Logger      *slog.Logger
}

// Resolver builds steps for the engine. Safe for concurrent use.
type Resolver struct {
	registry    *steps.Registry
	configDir   string
	coreVersion string
	logger      *slog.Logger

	scanOnce sync.Once
	bundles  []Bundle
	elements map[string]Element
}

// New constructs a Resolver.
func New(opts Options) *Resolver {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	registry := opts.Registry
	if registry == nil {
		registry = steps.NewRegistry()
	}
	return &Resolver{
		registry:    registry,
		configDir:   opts.ConfigDir,
		coreVersion: opts.CoreVersion,
		logger:      logging.NewComponentLogger(logger, "resolver"),
	}
}

// IsScript reports whether typeID names a flow script.
func IsScript(typeID string) bool {
	return strings.HasPrefix(typeID, ScriptPrefix)
}

// Resolve returns a step for typeID with props bound onto it.
func (r *Resolver) Resolve(typeID string, props map[string]any) (steps.Step, error) {
	if IsScript(typeID) {
		return r.resolveScript(strings.TrimPrefix(typeID, ScriptPrefix), props)
	}

	def, err := r.definition(typeID)
	if err != nil {
		return nil, err
	}
	step := def.New()
	steps.Bind(r.logger, def, step, props)
	return step, nil
}

func (r *Resolver) definition(typeID string) (steps.Definition, error) {
	def, err := r.registry.Get(typeID)
	if err == nil {
		return def, nil
	}
	if !errors.Is(err, steps.ErrStepNotFound) {
		return steps.Definition{}, err
	}

	r.scan()
	el, ok := r.elements[typeID]
	if !ok {
		return steps.Definition{}, services.Wrap(services.ErrNodeLoad, "resolver", "resolve", "failed to load step: "+typeID, nil)
	}
	if el.Command != "" {
		return builtin.CommandDefinition(typeID, el.Command, el.Arguments), nil
	}
	def, err = r.registry.Get(el.Builtin)
	if err != nil {
		return steps.Definition{}, services.Wrap(services.ErrNodeLoad, "resolver", "resolve", "failed to load step: "+typeID, err)
	}
	return def, nil
}

func (r *Resolver) resolveScript(name string, props map[string]any) (steps.Step, error) {
	file := name
	if !strings.HasSuffix(strings.ToLower(file), ".js") {
		file += ".js"
	}
	path := filepath.Join(r.configDir, "Scripts", "Flow", file)
	code, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrScriptNotFound, path)
		}
		return nil, services.Wrap(services.ErrNodeLoad, "resolver", "read script", path, err)
	}
	step, err := scripting.NewStep(name, string(code), props)
	if err != nil {
		return nil, services.Wrap(services.ErrNodeLoad, "resolver", "parse script", name, err)
	}
	return step, nil
}

// Bundles lists the compiled-in bundle followed by discovered plugin bundles.
func (r *Resolver) Bundles() []Bundle {
	r.scan()
	out := make([]Bundle, 0, len(r.bundles)+1)
	out = append(out, Bundle{Name: builtin.BundleName, Version: r.coreVersion, Elements: r.registry.Types()})
	return append(out, r.bundles...)
}
