package job

import (
	"context"
	"encoding/json"
)

// RunContext carries execution-time inputs into a perform function.
type RunContext struct {
	// WorkflowID identifies the workflow this invocation belongs to.
	WorkflowID string

	// Name is the canonical "<klass>|<id>" name of the executing job.
	Name string

	// Payloads holds the outputs of every upstream job, in the order
	// the incoming edges were declared.
	Payloads []Payload
}

// PerformFunc is the user code of a job class. The returned raw message
// becomes the job's output payload and is delivered downstream.
type PerformFunc func(ctx context.Context, rc *RunContext) (json.RawMessage, error)

// Definition binds a job class name to its perform function and options.
type Definition struct {
	// Klass is the symbolic class name used in workflow topologies and
	// store keys.
	Klass string

	// Perform executes the job's user code.
	Perform PerformFunc

	// Opts configures the target queue.
	Opts Options
}

// NewDefinition creates a job definition.
func NewDefinition(klass string, perform PerformFunc, opts ...Option) *Definition {
	def := &Definition{
		Klass:   klass,
		Perform: perform,
	}
	for _, opt := range opts {
		opt(&def.Opts)
	}
	return def
}

// Options configures per-class job behavior.
type Options struct {
	// Queue is the queue jobs of this class are dispatched to.
	// Empty means the engine's default namespace.
	Queue string
}

// Option is a functional option for configuring a job definition.
type Option func(*Options)

// WithQueue sets the target queue for the job class.
func WithQueue(q string) Option {
	return func(o *Options) { o.Queue = q }
}
