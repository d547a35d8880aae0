package workflow

import (
	"context"
	"fmt"

	"github.com/cascadehq/cascade"
	"github.com/cascadehq/cascade/job"
)

// Builder collects the topology a workflow class declares in its Setup
// function. Each Run call adds one node; After options draw the edges.
//
//	b.Run("FetchOrders")
//	b.Run("ChargeCard", workflow.After("FetchOrders"))
//
// Run returns a reference usable in later After options. The first node
// of a klass is referenced by the bare klass name; repeated nodes of
// the same klass get "#2", "#3", ... suffixes.
type Builder struct {
	nodes []*builderNode
	byRef map[string]*builderNode
	count map[string]int
}

type builderNode struct {
	ref   string
	klass string
	queue string
	after []string
}

// NewBuilder creates an empty topology builder.
func NewBuilder() *Builder {
	return &Builder{
		byRef: make(map[string]*builderNode),
		count: make(map[string]int),
	}
}

// RunOption configures a single Run call.
type RunOption func(*builderNode)

// After declares incoming edges from the named nodes.
func After(refs ...string) RunOption {
	return func(n *builderNode) { n.after = append(n.after, refs...) }
}

// Queue routes jobs of this node to a specific queue.
func Queue(q string) RunOption {
	return func(n *builderNode) { n.queue = q }
}

// Run adds a job node of the given klass and returns its reference.
func (b *Builder) Run(klass string, opts ...RunOption) string {
	b.count[klass]++
	ref := klass
	if n := b.count[klass]; n > 1 {
		ref = fmt.Sprintf("%s#%d", klass, n)
	}

	node := &builderNode{ref: ref, klass: klass}
	for _, opt := range opts {
		opt(node)
	}
	b.nodes = append(b.nodes, node)
	b.byRef[ref] = node
	return ref
}

// IDSource assigns store-unique identifiers during workflow creation.
// The client implements it with generate-and-probe against the store.
type IDSource interface {
	// WorkflowID returns a fresh workflow id not present in the store.
	WorkflowID(ctx context.Context) (string, error)

	// JobID returns a fresh job id for the given workflow and klass.
	JobID(ctx context.Context, workflowID, klass string) (string, error)
}

// materialize validates the declared topology and turns it into jobs.
// Edges are checked for unknown references; the graph is checked for
// acyclicity with Kahn's algorithm. Incoming and outgoing sets are kept
// mutually consistent by construction.
func (b *Builder) materialize(ctx context.Context, workflowID string, ids IDSource) ([]*job.Job, error) {
	// Validate edge references.
	for _, n := range b.nodes {
		for _, ref := range n.after {
			if _, ok := b.byRef[ref]; !ok {
				return nil, fmt.Errorf("node %s after %q: %w", n.ref, ref, cascade.ErrUnknownNode)
			}
		}
	}

	// Kahn's algorithm over refs.
	indegree := make(map[string]int, len(b.nodes))
	succs := make(map[string][]string, len(b.nodes))
	for _, n := range b.nodes {
		indegree[n.ref] += 0
		for _, ref := range n.after {
			indegree[n.ref]++
			succs[ref] = append(succs[ref], n.ref)
		}
	}
	queue := make([]string, 0, len(b.nodes))
	for _, n := range b.nodes {
		if indegree[n.ref] == 0 {
			queue = append(queue, n.ref)
		}
	}
	visited := 0
	for len(queue) > 0 {
		ref := queue[0]
		queue = queue[1:]
		visited++
		for _, succ := range succs[ref] {
			indegree[succ]--
			if indegree[succ] == 0 {
				queue = append(queue, succ)
			}
		}
	}
	if visited != len(b.nodes) {
		return nil, cascade.ErrCyclicGraph
	}

	// Assign ids and build jobs in declaration order.
	jobs := make([]*job.Job, 0, len(b.nodes))
	names := make(map[string]string, len(b.nodes)) // ref → canonical name
	for _, n := range b.nodes {
		jobID, err := ids.JobID(ctx, workflowID, n.klass)
		if err != nil {
			return nil, err
		}
		j := &job.Job{
			WorkflowID: workflowID,
			Klass:      n.klass,
			ID:         jobID,
			Queue:      n.queue,
			Incoming:   []string{},
			Outgoing:   []string{},
		}
		jobs = append(jobs, j)
		names[n.ref] = j.Name()
	}

	byName := make(map[string]*job.Job, len(jobs))
	for _, j := range jobs {
		byName[j.Name()] = j
	}
	for i, n := range b.nodes {
		j := jobs[i]
		for _, ref := range n.after {
			upName := names[ref]
			j.Incoming = append(j.Incoming, upName)
			byName[upName].Outgoing = append(byName[upName].Outgoing, j.Name())
		}
	}

	return jobs, nil
}
