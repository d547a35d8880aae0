package cascade

import "context"

// Payload is what the engine hands to the execution queue and what the
// queue delivers back to the worker runtime.
type Payload struct {
	WorkflowID string `json:"workflow_id" msgpack:"workflow_id"`
	JobName    string `json:"job_name" msgpack:"job_name"`
}

// Enqueuer is the minimal contract the engine requires from the
// background execution framework. Implementations own retries,
// scheduling delays, and delivery back to the worker runtime.
//
// Delivery is at-least-once; the worker runtime's state transitions are
// idempotent under replay.
type Enqueuer interface {
	// Enqueue dispatches a payload to the named queue after delay.
	Enqueue(ctx context.Context, queue string, delay float64, payload Payload) error
}
