// Package job defines the single-job state machine. A job is a node of
// a workflow DAG; its lifecycle flags are monotonic and its derived
// state never reverts.
package job

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cascadehq/cascade"
)

// State is the derived lifecycle state of a job, a pure function of the
// lifecycle timestamps.
type State string

const (
	// StatePending means no lifecycle flag is set.
	StatePending State = "pending"
	// StateEnqueued means the job was handed to the execution queue.
	StateEnqueued State = "enqueued"
	// StateRunning means a worker is executing the job.
	StateRunning State = "running"
	// StateSucceeded means the job finished successfully.
	StateSucceeded State = "succeeded"
	// StateFailed means the job's perform raised an error.
	StateFailed State = "failed"
)

// Payload is one upstream job's contribution to a job's inputs,
// collected by the worker runtime at execution time.
type Payload struct {
	ID     string          `json:"id" msgpack:"id"`
	Klass  string          `json:"class" msgpack:"class"`
	Output json.RawMessage `json:"output" msgpack:"output"`
}

// Job is a node of the DAG, identified by (WorkflowID, Klass, ID).
// Incoming and Outgoing hold sibling job names and define the graph.
// Payloads is transient: populated by the worker before perform runs,
// never persisted.
type Job struct {
	WorkflowID string   `json:"workflow_id" msgpack:"workflow_id"`
	Klass      string   `json:"klass" msgpack:"klass"`
	ID         string   `json:"id" msgpack:"id"`
	Queue      string   `json:"queue,omitempty" msgpack:"queue,omitempty"`
	Incoming   []string `json:"incoming" msgpack:"incoming"`
	Outgoing   []string `json:"outgoing" msgpack:"outgoing"`

	Payloads []Payload       `json:"-" msgpack:"-"`
	Output   json.RawMessage `json:"output_payload,omitempty" msgpack:"output_payload,omitempty"`

	EnqueuedAt *time.Time `json:"enqueued_at,omitempty" msgpack:"enqueued_at,omitempty"`
	StartedAt  *time.Time `json:"started_at,omitempty" msgpack:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty" msgpack:"finished_at,omitempty"`
	FailedAt   *time.Time `json:"failed_at,omitempty" msgpack:"failed_at,omitempty"`
}

// Name returns the canonical "<klass>|<id>" name of the job.
func (j *Job) Name() string {
	return j.Klass + "|" + j.ID
}

// SplitName splits a canonical job name into klass and id. The id part
// is empty when the name carries only a klass.
func SplitName(name string) (klass, jobID string) {
	klass, jobID, _ = strings.Cut(name, "|")
	return klass, jobID
}

// State derives the current lifecycle state from the timestamps.
func (j *Job) State() State {
	switch {
	case j.FailedAt != nil:
		return StateFailed
	case j.FinishedAt != nil:
		return StateSucceeded
	case j.StartedAt != nil:
		return StateRunning
	case j.EnqueuedAt != nil:
		return StateEnqueued
	default:
		return StatePending
	}
}

// ──────────────────────────────────────────────────
// Transitions — monotonic, pending → enqueued → running → terminal
// ──────────────────────────────────────────────────

// Enqueue marks the job as handed to the execution queue.
// Requires state pending.
func (j *Job) Enqueue() error {
	if s := j.State(); s != StatePending {
		return fmt.Errorf("job %s: enqueue from %s: %w", j.Name(), s, cascade.ErrInvalidTransition)
	}
	now := time.Now().UTC()
	j.EnqueuedAt = &now
	return nil
}

// Start marks the job as running. Requires state enqueued.
func (j *Job) Start() error {
	if s := j.State(); s != StateEnqueued {
		return fmt.Errorf("job %s: start from %s: %w", j.Name(), s, cascade.ErrInvalidTransition)
	}
	now := time.Now().UTC()
	j.StartedAt = &now
	return nil
}

// Finish marks the job as succeeded. Requires state running.
func (j *Job) Finish() error {
	if s := j.State(); s != StateRunning {
		return fmt.Errorf("job %s: finish from %s: %w", j.Name(), s, cascade.ErrInvalidTransition)
	}
	now := time.Now().UTC()
	j.FinishedAt = &now
	return nil
}

// Fail marks the job as failed. Requires state running.
func (j *Job) Fail() error {
	if s := j.State(); s != StateRunning {
		return fmt.Errorf("job %s: fail from %s: %w", j.Name(), s, cascade.ErrInvalidTransition)
	}
	now := time.Now().UTC()
	j.FailedAt = &now
	return nil
}

// ──────────────────────────────────────────────────
// Predicates
// ──────────────────────────────────────────────────

// Succeeded reports whether the job finished successfully.
func (j *Job) Succeeded() bool { return j.FinishedAt != nil && j.FailedAt == nil }

// Failed reports whether the job failed.
func (j *Job) Failed() bool { return j.FailedAt != nil }

// Finished reports whether the job reached a terminal state.
func (j *Job) Finished() bool { return j.Succeeded() || j.Failed() }

// Enqueued reports whether the job was handed to the execution queue.
func (j *Job) Enqueued() bool { return j.EnqueuedAt != nil }

// Started reports whether a worker picked the job up.
func (j *Job) Started() bool { return j.StartedAt != nil }

// Ready reports whether the job may be enqueued: it is pending and
// every upstream job has succeeded. The caller supplies the upstream
// jobs, loaded from the workflow snapshot or fetched from the store.
func (j *Job) Ready(upstream []*Job) bool {
	if j.State() != StatePending {
		return false
	}
	for _, up := range upstream {
		if !up.Succeeded() {
			return false
		}
	}
	return true
}
