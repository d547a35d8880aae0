// Package workflow defines the workflow aggregate: a named DAG of jobs
// with aggregate state, plus the builder and registry used to declare
// workflow classes.
package workflow

import (
	"encoding/json"
	"strings"

	"github.com/cascadehq/cascade/job"
)

// Workflow is the aggregate: a DAG of jobs persisted as a header key
// plus per-class job hashes. In-memory instances are snapshots; the
// store owns the authoritative state.
type Workflow struct {
	ID        string
	Klass     string
	Arguments []json.RawMessage
	Jobs      []*job.Job
	Stopped   bool

	// LinkedType and LinkedID optionally reference an external record,
	// used only as a lookup predicate.
	LinkedType string
	LinkedID   string

	// Persisted is transient: true when the snapshot matches the store.
	Persisted bool

	// Monitor is an optional external observer attached at load time.
	Monitor any
}

// Header is the encoded form of the workflow aggregate, excluding jobs
// (they live in per-class hashes).
type Header struct {
	ID         string            `json:"id" msgpack:"id"`
	Klass      string            `json:"klass" msgpack:"klass"`
	Arguments  []json.RawMessage `json:"arguments" msgpack:"arguments"`
	Stopped    bool              `json:"stopped" msgpack:"stopped"`
	LinkedType string            `json:"linked_type,omitempty" msgpack:"linked_type,omitempty"`
	LinkedID   string            `json:"linked_id,omitempty" msgpack:"linked_id,omitempty"`
}

// Header returns the encodable header of the workflow.
func (w *Workflow) Header() *Header {
	return &Header{
		ID:         w.ID,
		Klass:      w.Klass,
		Arguments:  w.Arguments,
		Stopped:    w.Stopped,
		LinkedType: w.LinkedType,
		LinkedID:   w.LinkedID,
	}
}

// FindJob resolves a job by name. A name containing "|" matches
// exactly; a bare klass matches the first job of that class in Jobs
// (declaration order on a freshly created instance, name order on one
// reloaded through the client).
func (w *Workflow) FindJob(name string) (*job.Job, bool) {
	if strings.Contains(name, "|") {
		for _, j := range w.Jobs {
			if j.Name() == name {
				return j, true
			}
		}
		return nil, false
	}
	for _, j := range w.Jobs {
		if j.Klass == name {
			return j, true
		}
	}
	return nil, false
}

// InitialJobs returns the jobs with no incoming edges, in the order of
// Jobs (declaration order on a freshly created instance). These are the
// jobs enqueued when the workflow starts.
func (w *Workflow) InitialJobs() []*job.Job {
	var initial []*job.Job
	for _, j := range w.Jobs {
		if len(j.Incoming) == 0 {
			initial = append(initial, j)
		}
	}
	return initial
}

// Upstream returns the jobs named by j's incoming edges, resolved
// against this workflow snapshot.
func (w *Workflow) Upstream(j *job.Job) []*job.Job {
	ups := make([]*job.Job, 0, len(j.Incoming))
	for _, name := range j.Incoming {
		if up, ok := w.FindJob(name); ok {
			ups = append(ups, up)
		}
	}
	return ups
}

// MarkAsStarted clears the stopped flag and dirties the snapshot.
func (w *Workflow) MarkAsStarted() {
	w.Stopped = false
	w.Persisted = false
}

// MarkAsStopped sets the stopped flag and dirties the snapshot.
// Stopped workflows refuse further enqueues at enqueue time.
func (w *Workflow) MarkAsStopped() {
	w.Stopped = true
	w.Persisted = false
}

// Link attaches an external record reference.
func (w *Workflow) Link(recordType, recordID string) {
	w.LinkedType = recordType
	w.LinkedID = recordID
}

// Started reports whether any job has been enqueued.
func (w *Workflow) Started() bool {
	for _, j := range w.Jobs {
		if j.Enqueued() {
			return true
		}
	}
	return false
}

// Failed reports whether any job has failed.
func (w *Workflow) Failed() bool {
	for _, j := range w.Jobs {
		if j.Failed() {
			return true
		}
	}
	return false
}

// Finished reports whether every job is settled: succeeded, failed, or
// pending with a failed job somewhere upstream (such a job can never
// become ready, so the workflow cannot make further progress). A failed
// branch therefore finishes the workflow and lets TTL expiration apply,
// while a live branch keeps it unfinished.
func (w *Workflow) Finished() bool {
	dead := make(map[string]int) // 0 unknown, 1 live, 2 dead
	for _, j := range w.Jobs {
		if j.Finished() {
			continue
		}
		if j.State() == job.StatePending && w.hasFailedAncestor(j, dead) {
			continue
		}
		return false
	}
	return true
}

// hasFailedAncestor reports whether any transitive upstream job of j
// has failed. memo caches per-name verdicts across the traversal.
func (w *Workflow) hasFailedAncestor(j *job.Job, memo map[string]int) bool {
	switch memo[j.Name()] {
	case 1:
		return false
	case 2:
		return true
	}
	memo[j.Name()] = 1 // mark live before descending so a revisit terminates
	for _, up := range w.Upstream(j) {
		if up.Failed() || w.hasFailedAncestor(up, memo) {
			memo[j.Name()] = 2
			return true
		}
	}
	return false
}
