package steps

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrStepNotFound is returned when no definition is registered for a type.
var ErrStepNotFound = errors.New("step type not found")

// Registry maps step type identifiers to definitions. Safe for concurrent use.
type Registry struct {
	mu   sync.RWMutex
	defs map[string]Definition
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{defs: make(map[string]Definition)}
}

// Register adds or replaces a definition.
func (r *Registry) Register(def Definition) error {
	if def.TypeID == "" {
		return errors.New("step definition requires a type id")
	}
	if def.New == nil {
		return fmt.Errorf("step definition %s has no constructor", def.TypeID)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defs[def.TypeID] = def
	return nil
}

// MustRegister registers def and panics on an invalid definition.
func (r *Registry) MustRegister(def Definition) {
	if err := r.Register(def); err != nil {
		panic(err)
	}
}

// Get returns the definition for a type.
func (r *Registry) Get(typeID string) (Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.defs[typeID]
	if !ok {
		return Definition{}, fmt.Errorf("%w: %s", ErrStepNotFound, typeID)
	}
	return def, nil
}

// Has reports whether a type is registered.
func (r *Registry) Has(typeID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.defs[typeID]
	return ok
}

// Types lists registered type identifiers in sorted order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.defs))
	for t := range r.defs {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Count returns the number of registered types.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.defs)
}
