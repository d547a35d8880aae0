// Package client implements the orchestrator: CRUD over workflows and
// jobs, readiness transitions, and dispatch to the execution queue. The
// store owns the authoritative state; in-memory instances are snapshots
// re-established by the persist operations.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/cascadehq/cascade"
	"github.com/cascadehq/cascade/codec"
	"github.com/cascadehq/cascade/id"
	"github.com/cascadehq/cascade/job"
	"github.com/cascadehq/cascade/store"
	"github.com/cascadehq/cascade/workflow"
)

// Compile-time check: the client is the id source for workflow creation.
var _ workflow.IDSource = (*Client)(nil)

// Client orchestrates workflow persistence and job dispatch.
type Client struct {
	store     store.Store
	enqueuer  cascade.Enqueuer
	workflows *workflow.Registry
	codec     codec.Codec
	config    cascade.Config
	observer  Observer
	probe     LinkedRecordProbe
	logger    *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithCodec sets the record codec. Defaults to JSON.
func WithCodec(c codec.Codec) Option {
	return func(cl *Client) { cl.codec = c }
}

// WithConfig sets the engine configuration.
func WithConfig(cfg cascade.Config) Option {
	return func(cl *Client) { cl.config = cfg }
}

// WithObserver sets the monitor loader hook.
func WithObserver(o Observer) Option {
	return func(cl *Client) { cl.observer = o }
}

// WithLinkedRecordProbe sets the external record existence probe.
func WithLinkedRecordProbe(p LinkedRecordProbe) Option {
	return func(cl *Client) { cl.probe = p }
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(cl *Client) { cl.logger = l }
}

// New creates a Client on the given store, enqueuer, and workflow
// registry.
func New(s store.Store, enq cascade.Enqueuer, workflows *workflow.Registry, opts ...Option) *Client {
	cl := &Client{
		store:     s,
		enqueuer:  enq,
		workflows: workflows,
		codec:     &codec.JSON{},
		config:    cascade.DefaultConfig(),
		observer:  noopObserver{},
		probe:     noopProbe{},
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(cl)
	}
	return cl
}

// Config returns the client's configuration.
func (c *Client) Config() cascade.Config { return c.config }

// Store returns the client's store.
func (c *Client) Store() store.Store { return c.store }

// ──────────────────────────────────────────────────
// Identifier service
// ──────────────────────────────────────────────────

// WorkflowID returns a fresh workflow id with no header key in the store.
func (c *Client) WorkflowID(ctx context.Context) (string, error) {
	return id.Unique(ctx, func(ctx context.Context, candidate string) (bool, error) {
		return c.store.Exists(ctx, workflowKey(candidate))
	})
}

// JobID returns a fresh job id absent from the workflow's class hash.
func (c *Client) JobID(ctx context.Context, workflowID, klass string) (string, error) {
	return id.Unique(ctx, func(ctx context.Context, candidate string) (bool, error) {
		return c.store.HExists(ctx, jobsKey(workflowID, klass), candidate)
	})
}

// ──────────────────────────────────────────────────
// Workflow lifecycle
// ──────────────────────────────────────────────────

// CreateWorkflow resolves the registered workflow class, constructs an
// instance with fresh ids, and persists it. Unknown names yield
// cascade.ErrWorkflowNotFound.
func (c *Client) CreateWorkflow(ctx context.Context, name string, args ...json.RawMessage) (*workflow.Workflow, error) {
	def, err := c.workflows.Get(name)
	if err != nil {
		return nil, fmt.Errorf("create workflow %q: %w", name, cascade.ErrWorkflowNotFound)
	}

	wf, err := workflow.Create(ctx, def, args, c)
	if err != nil {
		return nil, err
	}
	if err := c.PersistWorkflow(ctx, wf); err != nil {
		return nil, err
	}
	return wf, nil
}

// StartWorkflow marks the workflow started, persists it, and enqueues
// either the initial jobs (empty incoming set, in the order of wf.Jobs)
// or the named subset, in the order the names are given.
func (c *Client) StartWorkflow(ctx context.Context, wf *workflow.Workflow, jobNames ...string) error {
	wf.MarkAsStarted()
	if err := c.PersistWorkflow(ctx, wf); err != nil {
		return err
	}

	var targets []*job.Job
	if len(jobNames) == 0 {
		targets = wf.InitialJobs()
	} else {
		for _, name := range jobNames {
			j, ok := wf.FindJob(name)
			if !ok {
				return fmt.Errorf("start workflow %s: job %q: %w", wf.ID, name, cascade.ErrJobNotFound)
			}
			targets = append(targets, j)
		}
	}

	for _, j := range targets {
		if err := c.EnqueueJob(ctx, wf.ID, j); err != nil {
			return err
		}
	}
	return nil
}

// StopWorkflow loads the workflow, marks it stopped, and persists.
// Workers already running continue; no further jobs are enqueued.
func (c *Client) StopWorkflow(ctx context.Context, workflowID string) error {
	wf, err := c.FindWorkflow(ctx, workflowID)
	if err != nil {
		return err
	}
	wf.MarkAsStopped()
	return c.PersistWorkflow(ctx, wf)
}

// FindWorkflow loads the header and every job hash and reconstructs the
// aggregate. Job order across reloads is backend-defined; jobs are
// sorted by name for determinism.
func (c *Client) FindWorkflow(ctx context.Context, workflowID string) (*workflow.Workflow, error) {
	raw, err := c.store.Get(ctx, workflowKey(workflowID))
	if err != nil {
		if errors.Is(err, store.ErrKeyNotFound) {
			return nil, fmt.Errorf("workflow %s: %w", workflowID, cascade.ErrWorkflowNotFound)
		}
		return nil, err
	}

	var header workflow.Header
	if err := c.codec.Decode(raw, &header); err != nil {
		return nil, fmt.Errorf("decode workflow %s: %w", workflowID, err)
	}

	var jobs []*job.Job
	var scanKeys []string
	if err := c.store.Scan(ctx, jobsPattern(workflowID), func(key string) bool {
		scanKeys = append(scanKeys, key)
		return true
	}); err != nil {
		return nil, err
	}
	for _, key := range scanKeys {
		vals, err := c.store.HVals(ctx, key)
		if err != nil {
			return nil, err
		}
		for _, v := range vals {
			var j job.Job
			if err := c.codec.Decode(v, &j); err != nil {
				return nil, fmt.Errorf("decode job in %s: %w", key, err)
			}
			jobs = append(jobs, &j)
		}
	}
	sort.Slice(jobs, func(i, k int) bool { return jobs[i].Name() < jobs[k].Name() })

	return c.workflowFromHash(ctx, &header, jobs)
}

// workflowFromHash reconstructs the aggregate from its persisted parts:
// the klass must be registered, the persisted jobs replace the class's
// default jobs, and the monitor hook may attach an observer.
func (c *Client) workflowFromHash(ctx context.Context, header *workflow.Header, jobs []*job.Job) (*workflow.Workflow, error) {
	if _, err := c.workflows.Get(header.Klass); err != nil {
		return nil, fmt.Errorf("workflow %s klass %q: %w", header.ID, header.Klass, cascade.ErrWorkflowNotFound)
	}

	wf := &workflow.Workflow{
		ID:         header.ID,
		Klass:      header.Klass,
		Arguments:  header.Arguments,
		Jobs:       jobs,
		Stopped:    header.Stopped,
		LinkedType: header.LinkedType,
		LinkedID:   header.LinkedID,
		Persisted:  true,
	}

	monitor, err := c.observer.LoadFor(ctx, wf)
	if err != nil {
		return nil, fmt.Errorf("load monitor for %s: %w", wf.ID, err)
	}
	if monitor != nil {
		wf.Monitor = monitor
		wf.Link(monitor.Monitorable())
	}
	return wf, nil
}

// PersistWorkflow writes the header key and every job, then marks the
// snapshot persisted.
func (c *Client) PersistWorkflow(ctx context.Context, wf *workflow.Workflow) error {
	raw, err := c.codec.Encode(wf.Header())
	if err != nil {
		return fmt.Errorf("encode workflow %s: %w", wf.ID, err)
	}
	if err := c.store.Set(ctx, workflowKey(wf.ID), raw); err != nil {
		return err
	}
	for _, j := range wf.Jobs {
		if err := c.PersistJob(ctx, wf.ID, j); err != nil {
			return err
		}
	}
	wf.Persisted = true
	return nil
}

// PersistJob writes one job into its per-class hash.
func (c *Client) PersistJob(ctx context.Context, workflowID string, j *job.Job) error {
	raw, err := c.codec.Encode(j)
	if err != nil {
		return fmt.Errorf("encode job %s: %w", j.Name(), err)
	}
	return c.store.HSet(ctx, jobsKey(workflowID, j.Klass), j.ID, raw)
}

// FindJob resolves a job by name. Names containing "|" address one job
// exactly; a bare klass returns the first field of the class hash
// (backend-defined order). Absent jobs yield cascade.ErrJobNotFound.
func (c *Client) FindJob(ctx context.Context, workflowID, name string) (*job.Job, error) {
	klass, jobID := job.SplitName(name)

	var raw []byte
	var err error
	if jobID != "" {
		raw, err = c.store.HGet(ctx, jobsKey(workflowID, klass), jobID)
		if err != nil {
			if errors.Is(err, store.ErrKeyNotFound) {
				return nil, fmt.Errorf("job %s in workflow %s: %w", name, workflowID, cascade.ErrJobNotFound)
			}
			return nil, err
		}
	} else {
		fields, scanErr := c.store.HScan(ctx, jobsKey(workflowID, klass), 1)
		if scanErr != nil {
			return nil, scanErr
		}
		if len(fields) == 0 {
			return nil, fmt.Errorf("job %s in workflow %s: %w", name, workflowID, cascade.ErrJobNotFound)
		}
		raw, err = c.store.HGet(ctx, jobsKey(workflowID, klass), fields[0])
		if err != nil {
			return nil, err
		}
	}

	var j job.Job
	if err := c.codec.Decode(raw, &j); err != nil {
		return nil, fmt.Errorf("decode job %s: %w", name, err)
	}
	return &j, nil
}

// DestroyWorkflow deletes the header and every per-class job hash.
func (c *Client) DestroyWorkflow(ctx context.Context, wf *workflow.Workflow) error {
	if err := c.store.Del(ctx, workflowKey(wf.ID)); err != nil {
		return err
	}
	var keys []string
	if err := c.store.Scan(ctx, jobsPattern(wf.ID), func(key string) bool {
		keys = append(keys, key)
		return true
	}); err != nil {
		return err
	}
	for _, key := range keys {
		if err := c.store.Del(ctx, key); err != nil {
			return err
		}
	}
	return nil
}

// ExpireWorkflow applies a TTL to the header and every per-class job
// hash. A non-positive TTL is a no-op (keys live forever).
func (c *Client) ExpireWorkflow(ctx context.Context, wf *workflow.Workflow, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := c.store.Expire(ctx, workflowKey(wf.ID), ttl); err != nil {
		return err
	}
	var keys []string
	if err := c.store.Scan(ctx, jobsPattern(wf.ID), func(key string) bool {
		keys = append(keys, key)
		return true
	}); err != nil {
		return err
	}
	for _, key := range keys {
		if err := c.store.Expire(ctx, key, ttl); err != nil {
			return err
		}
	}
	return nil
}

// EnqueueJob transitions the job to enqueued, persists it, and hands it
// to the execution queue. The persisted header is re-read first:
// enqueues against a stopped workflow are refused with
// cascade.ErrStopped. This is the single place stop semantics are
// enforced; the worker's propagation path treats ErrStopped as a skip.
func (c *Client) EnqueueJob(ctx context.Context, workflowID string, j *job.Job) error {
	raw, err := c.store.Get(ctx, workflowKey(workflowID))
	if err != nil {
		if errors.Is(err, store.ErrKeyNotFound) {
			return fmt.Errorf("workflow %s: %w", workflowID, cascade.ErrWorkflowNotFound)
		}
		return err
	}
	var header workflow.Header
	if err := c.codec.Decode(raw, &header); err != nil {
		return fmt.Errorf("decode workflow %s: %w", workflowID, err)
	}
	if header.Stopped {
		return fmt.Errorf("enqueue %s: %w", j.Name(), cascade.ErrStopped)
	}

	if err := j.Enqueue(); err != nil {
		return err
	}
	if err := c.PersistJob(ctx, workflowID, j); err != nil {
		return err
	}

	queue := j.Queue
	if queue == "" {
		queue = c.config.Namespace
	}
	delay := c.config.JobDelay.Seconds()

	c.logger.Debug("job enqueued",
		slog.String("workflow_id", workflowID),
		slog.String("job", j.Name()),
		slog.String("queue", queue),
	)
	return c.enqueuer.Enqueue(ctx, queue, delay, cascade.Payload{
		WorkflowID: workflowID,
		JobName:    j.Name(),
	})
}

// ──────────────────────────────────────────────────
// Enumeration / lookup
// ──────────────────────────────────────────────────

// AllWorkflows lazily enumerates every stored workflow, invoking fn for
// each. fn returning false stops the enumeration. Entries that vanish
// between scan and load are skipped.
func (c *Client) AllWorkflows(ctx context.Context, fn func(wf *workflow.Workflow) bool) error {
	var ids []string
	if err := c.store.Scan(ctx, workflowsPattern, func(key string) bool {
		ids = append(ids, key[len("workflows:"):])
		return true
	}); err != nil {
		return err
	}
	for _, wfID := range ids {
		wf, err := c.FindWorkflow(ctx, wfID)
		if err != nil {
			if errors.Is(err, cascade.ErrWorkflowNotFound) {
				continue
			}
			return err
		}
		if !fn(wf) {
			return nil
		}
	}
	return nil
}

// FindNotFinishedWorkflowBy linearly scans for the first workflow whose
// header matches every key/value pair in params and which is not
// finished. When params contains "linked_type", the linked external
// record must additionally exist per the configured probe. No match
// yields cascade.ErrWorkflowNotFound.
func (c *Client) FindNotFinishedWorkflowBy(ctx context.Context, params map[string]any) (*workflow.Workflow, error) {
	var (
		found    *workflow.Workflow
		probeErr error
	)
	_, wantLinked := params["linked_type"]

	err := c.AllWorkflows(ctx, func(wf *workflow.Workflow) bool {
		if !headerMatches(wf.Header(), params) {
			return true
		}
		if wf.Finished() {
			return true
		}
		if wantLinked {
			exists, err := c.probe.Exists(ctx, wf.LinkedType, wf.LinkedID)
			if err != nil {
				probeErr = err
				return false
			}
			if !exists {
				return true
			}
		}
		found = wf
		return false
	})
	if err != nil {
		return nil, err
	}
	if probeErr != nil {
		return nil, probeErr
	}
	if found == nil {
		return nil, cascade.ErrWorkflowNotFound
	}
	return found, nil
}

// headerMatches compares params against the header's encoded fields.
// Values are normalized through JSON so callers can pass plain Go
// values for any field type.
func headerMatches(header *workflow.Header, params map[string]any) bool {
	raw, err := json.Marshal(header)
	if err != nil {
		return false
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return false
	}
	for key, want := range params {
		got, ok := fields[key]
		if !ok {
			return false
		}
		wantRaw, _ := json.Marshal(want)
		gotRaw, _ := json.Marshal(got)
		if string(wantRaw) != string(gotRaw) {
			return false
		}
	}
	return true
}
