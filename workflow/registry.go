package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/cascadehq/cascade"
)

// Definition binds a workflow class name to the function that declares
// its topology. Setup runs once per Create with the captured
// constructor arguments.
type Definition struct {
	// Name is the symbolic workflow class name stored in headers.
	Name string

	// Setup declares the job nodes and edges on the builder.
	Setup func(b *Builder, args []json.RawMessage) error
}

// NewDefinition creates a workflow definition.
func NewDefinition(name string, setup func(b *Builder, args []json.RawMessage) error) *Definition {
	return &Definition{Name: name, Setup: setup}
}

// Registry maps workflow class names to definitions, replacing runtime
// class-name resolution with explicit registration. It is safe for
// concurrent use.
type Registry struct {
	mu   sync.RWMutex
	defs map[string]*Definition
}

// NewRegistry creates an empty workflow registry.
func NewRegistry() *Registry {
	return &Registry{
		defs: make(map[string]*Definition),
	}
}

// Register adds a definition. A later registration with the same name
// replaces the earlier one.
func (r *Registry) Register(def *Definition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defs[def.Name] = def
}

// Get returns the definition for the given name, or
// cascade.ErrWorkflowNotRegistered.
func (r *Registry) Get(name string) (*Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.defs[name]
	if !ok {
		return nil, cascade.ErrWorkflowNotRegistered
	}
	return def, nil
}

// Names returns all registered workflow names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.defs))
	for name := range r.defs {
		names = append(names, name)
	}
	return names
}

// Create constructs an unpersisted workflow instance of the given
// definition: it assigns a workflow id, runs Setup, validates the
// declared graph, and materializes the jobs with store-unique ids.
func Create(ctx context.Context, def *Definition, args []json.RawMessage, ids IDSource) (*Workflow, error) {
	workflowID, err := ids.WorkflowID(ctx)
	if err != nil {
		return nil, err
	}

	b := NewBuilder()
	if err := def.Setup(b, args); err != nil {
		return nil, fmt.Errorf("workflow %s: setup: %w", def.Name, err)
	}

	jobs, err := b.materialize(ctx, workflowID, ids)
	if err != nil {
		return nil, fmt.Errorf("workflow %s: %w", def.Name, err)
	}

	return &Workflow{
		ID:        workflowID,
		Klass:     def.Name,
		Arguments: args,
		Jobs:      jobs,
	}, nil
}
