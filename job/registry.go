package job

import (
	"sync"

	"github.com/cascadehq/cascade"
)

// Registry maps job class names to definitions. The worker looks up a
// job's perform function by its persisted klass through this registry,
// replacing runtime class-name resolution with explicit registration.
// It is safe for concurrent use.
type Registry struct {
	mu   sync.RWMutex
	defs map[string]*Definition
}

// NewRegistry creates an empty job registry.
func NewRegistry() *Registry {
	return &Registry{
		defs: make(map[string]*Definition),
	}
}

// Register adds a definition. A later registration with the same klass
// replaces the earlier one.
func (r *Registry) Register(def *Definition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defs[def.Klass] = def
}

// Get returns the definition for the given klass, or
// cascade.ErrJobNotRegistered.
func (r *Registry) Get(klass string) (*Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.defs[klass]
	if !ok {
		return nil, cascade.ErrJobNotRegistered
	}
	return def, nil
}

// Names returns all registered klass names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.defs))
	for name := range r.defs {
		names = append(names, name)
	}
	return names
}
