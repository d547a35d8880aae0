// Package worker executes a single job and propagates readiness to its
// successors. Multiple workers run concurrently; the successor lock
// serializes the "check ready then enqueue" pair so each successor is
// enqueued exactly once no matter how predecessor completions interleave.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/cascadehq/cascade"
	"github.com/cascadehq/cascade/backoff"
	"github.com/cascadehq/cascade/client"
	"github.com/cascadehq/cascade/job"
	"github.com/cascadehq/cascade/middleware"
	"github.com/cascadehq/cascade/store"
)

// Worker runs jobs delivered by the execution queue.
type Worker struct {
	client   *client.Client
	jobs     *job.Registry
	locker   store.Locker
	enqueuer cascade.Enqueuer
	requeue  backoff.Strategy
	mws      []middleware.Middleware
	mw       middleware.Middleware
	config   cascade.Config
	logger   *slog.Logger
}

// Option configures a Worker.
type Option func(*Worker)

// WithMiddleware appends middleware to the execution chain.
func WithMiddleware(mws ...middleware.Middleware) Option {
	return func(w *Worker) { w.mws = append(w.mws, mws...) }
}

// WithRequeueBackoff sets the delay strategy used when a successor lock
// could not be acquired and the invocation reschedules itself.
func WithRequeueBackoff(b backoff.Strategy) Option {
	return func(w *Worker) { w.requeue = b }
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Worker) { w.logger = l }
}

// New creates a Worker. The locker is typically the same store the
// client persists through.
func New(cl *client.Client, jobs *job.Registry, locker store.Locker, enq cascade.Enqueuer, opts ...Option) *Worker {
	w := &Worker{
		client:   cl,
		jobs:     jobs,
		locker:   locker,
		enqueuer: enq,
		config:   cl.Config(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.requeue == nil {
		w.requeue = backoff.NewConstant(w.config.RequeueDelay)
	}
	w.mw = middleware.Chain(w.mws...)
	return w
}

// Perform executes one job invocation end to end: load, gather upstream
// payloads, run user code through the middleware chain, persist the
// transition, and propagate readiness to successors under the
// per-successor lock. Replays of an already-succeeded job skip user
// code but still propagate. On any exit path the workflow's
// finished-ness is computed and TTL applied when it finished.
func (w *Worker) Perform(ctx context.Context, workflowID, jobName string) error {
	j, err := w.client.FindJob(ctx, workflowID, jobName)
	if err != nil {
		w.finishCheck(ctx, workflowID)
		return err
	}

	if !j.Succeeded() {
		if err := w.run(ctx, workflowID, j); err != nil {
			// The run failed: successors are not propagated and the
			// error surfaces to the execution framework for its own
			// retry accounting. A failure of user code has already been
			// persisted as failed_at; other errors leave the job's
			// stored state as it was.
			w.finishCheck(ctx, workflowID)
			return err
		}
	}

	if err := w.propagate(ctx, workflowID, j); err != nil {
		if errors.Is(err, cascade.ErrLockNotAcquired) {
			w.finishCheck(ctx, workflowID)
			return w.reschedule(ctx, workflowID, j)
		}
		w.finishCheck(ctx, workflowID)
		return err
	}

	w.finishCheck(ctx, workflowID)
	return nil
}

// run transitions the job to running, gathers upstream payloads,
// executes user code, and persists the terminal transition.
func (w *Worker) run(ctx context.Context, workflowID string, j *job.Job) error {
	def, err := w.jobs.Get(j.Klass)
	if err != nil {
		return fmt.Errorf("worker: job %s: %w", j.Name(), err)
	}

	payloads, err := w.gatherPayloads(ctx, workflowID, j)
	if err != nil {
		return err
	}
	j.Payloads = payloads

	// pending → enqueued covers deliveries that bypassed EnqueueJob.
	if j.State() == job.StatePending {
		if err := j.Enqueue(); err != nil {
			return err
		}
	}
	if err := j.Start(); err != nil {
		return err
	}
	if err := w.client.PersistJob(ctx, workflowID, j); err != nil {
		return err
	}

	rc := &job.RunContext{
		WorkflowID: workflowID,
		Name:       j.Name(),
		Payloads:   j.Payloads,
	}

	performErr := w.mw(ctx, j, func(ctx context.Context) error {
		output, err := def.Perform(ctx, rc)
		if err != nil {
			return err
		}
		j.Output = output
		return nil
	})

	if performErr != nil {
		if err := j.Fail(); err != nil {
			return err
		}
		if err := w.client.PersistJob(ctx, workflowID, j); err != nil {
			return err
		}
		return fmt.Errorf("worker: job %s failed: %w", j.Name(), performErr)
	}

	if err := j.Finish(); err != nil {
		return err
	}
	return w.client.PersistJob(ctx, workflowID, j)
}

// gatherPayloads loads every upstream job concurrently and collects
// {id, class, output} triples in incoming-edge order.
func (w *Worker) gatherPayloads(ctx context.Context, workflowID string, j *job.Job) ([]job.Payload, error) {
	if len(j.Incoming) == 0 {
		return nil, nil
	}

	payloads := make([]job.Payload, len(j.Incoming))
	g, gctx := errgroup.WithContext(ctx)
	for i, name := range j.Incoming {
		g.Go(func() error {
			up, err := w.client.FindJob(gctx, workflowID, name)
			if err != nil {
				return err
			}
			payloads[i] = job.Payload{
				ID:     up.ID,
				Klass:  up.Klass,
				Output: up.Output,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return payloads, nil
}

// propagate walks the outgoing edges. For each successor it acquires
// the successor lock, re-loads the successor and its upstream set from
// the store, and enqueues it when ready. The first lock that cannot be
// acquired aborts with cascade.ErrLockNotAcquired so the whole
// invocation reschedules; successors already handled stay handled (the
// monotonic enqueued flag makes the replay idempotent).
func (w *Worker) propagate(ctx context.Context, workflowID string, j *job.Job) error {
	for _, name := range j.Outgoing {
		lock := client.SuccessorLock(workflowID, name)
		err := w.locker.WithLock(ctx, lock, w.config.LockAcquireTimeout, w.config.LockHoldTimeout, func() error {
			return w.enqueueIfReady(ctx, workflowID, name)
		})
		if err != nil {
			if errors.Is(err, cascade.ErrStopped) {
				w.logger.Info("workflow stopped, skipping successor",
					slog.String("workflow_id", workflowID),
					slog.String("successor", name),
				)
				continue
			}
			return err
		}
	}
	return nil
}

// enqueueIfReady re-reads the successor under the lock and enqueues it
// when it is pending with every upstream job succeeded. Reading
// post-persist state inside the lock is what makes the enqueue
// exactly-once across racing predecessors.
func (w *Worker) enqueueIfReady(ctx context.Context, workflowID, name string) error {
	succ, err := w.client.FindJob(ctx, workflowID, name)
	if err != nil {
		return err
	}

	upstream := make([]*job.Job, 0, len(succ.Incoming))
	for _, upName := range succ.Incoming {
		up, err := w.client.FindJob(ctx, workflowID, upName)
		if err != nil {
			return err
		}
		upstream = append(upstream, up)
	}

	if !succ.Ready(upstream) {
		return nil
	}
	return w.client.EnqueueJob(ctx, workflowID, succ)
}

// reschedule re-enqueues this worker invocation after the requeue
// delay, preserving at-least-once propagation without blocking the
// executor on a contended lock.
func (w *Worker) reschedule(ctx context.Context, workflowID string, j *job.Job) error {
	queue := j.Queue
	if queue == "" {
		queue = w.config.Namespace
	}
	delay := w.requeue.Delay(1).Seconds()

	w.logger.Debug("successor lock contended, rescheduling",
		slog.String("workflow_id", workflowID),
		slog.String("job", j.Name()),
	)
	return w.enqueuer.Enqueue(ctx, queue, delay, cascade.Payload{
		WorkflowID: workflowID,
		JobName:    j.Name(),
	})
}

// finishCheck loads the workflow and applies the configured TTL when
// every job is settled. Failures here are logged, not surfaced; the
// job's own outcome already reached the store.
func (w *Worker) finishCheck(ctx context.Context, workflowID string) {
	wf, err := w.client.FindWorkflow(ctx, workflowID)
	if err != nil {
		w.logger.Warn("finished-check load failed",
			slog.String("workflow_id", workflowID),
			slog.String("error", err.Error()),
		)
		return
	}
	if !wf.Finished() {
		return
	}
	if err := w.client.ExpireWorkflow(ctx, wf, w.config.TTL); err != nil {
		w.logger.Warn("ttl application failed",
			slog.String("workflow_id", workflowID),
			slog.String("error", err.Error()),
		)
	}
}
