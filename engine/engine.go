// Package engine wires the cascade subsystems together: store, codec,
// registries, client, middleware, worker, and pool. It exists so the
// leaf packages stay independent; the engine sits above all of them and
// below the application layer.
package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cascadehq/cascade"
	"github.com/cascadehq/cascade/backoff"
	"github.com/cascadehq/cascade/client"
	"github.com/cascadehq/cascade/codec"
	"github.com/cascadehq/cascade/job"
	mw "github.com/cascadehq/cascade/middleware"
	"github.com/cascadehq/cascade/store"
	redisstore "github.com/cascadehq/cascade/store/redis"
	"github.com/cascadehq/cascade/worker"
	"github.com/cascadehq/cascade/workflow"
)

// Engine is the assembled workflow engine.
type Engine struct {
	config    cascade.Config
	logger    *slog.Logger
	cdc       codec.Codec
	store     store.Store
	enqueuer  cascade.Enqueuer
	workflows *workflow.Registry
	jobs      *job.Registry
	observer  client.Observer
	probe     client.LinkedRecordProbe
	mws       []mw.Middleware
	requeue   backoff.Strategy

	concurrency int
	client      *client.Client
	worker      *worker.Worker
	pool        *worker.Pool

	stores *storeCache
}

// Option configures an Engine.
type Option func(*Engine)

// WithConfig sets the engine configuration.
func WithConfig(cfg cascade.Config) Option {
	return func(e *Engine) { e.config = cfg }
}

// WithStore sets an explicit store, bypassing the URL-keyed cache.
func WithStore(s store.Store) Option {
	return func(e *Engine) { e.store = s }
}

// WithLogger sets the structured logger for the engine.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithCodec sets the record codec. Defaults to JSON.
func WithCodec(c codec.Codec) Option {
	return func(e *Engine) { e.cdc = c }
}

// WithWorkflows sets the workflow registry.
func WithWorkflows(r *workflow.Registry) Option {
	return func(e *Engine) { e.workflows = r }
}

// WithJobs sets the job registry.
func WithJobs(r *job.Registry) Option {
	return func(e *Engine) { e.jobs = r }
}

// WithEnqueuer sets an external execution queue. Without one, the
// engine runs its own in-process pool.
func WithEnqueuer(enq cascade.Enqueuer) Option {
	return func(e *Engine) { e.enqueuer = enq }
}

// WithObserver sets the monitor loader hook.
func WithObserver(o client.Observer) Option {
	return func(e *Engine) { e.observer = o }
}

// WithLinkedRecordProbe sets the external record existence probe.
func WithLinkedRecordProbe(p client.LinkedRecordProbe) Option {
	return func(e *Engine) { e.probe = p }
}

// WithMiddleware appends middleware to the worker's execution chain.
func WithMiddleware(mws ...mw.Middleware) Option {
	return func(e *Engine) { e.mws = append(e.mws, mws...) }
}

// WithRequeueBackoff sets the lock-contention requeue strategy.
func WithRequeueBackoff(b backoff.Strategy) Option {
	return func(e *Engine) { e.requeue = b }
}

// WithConcurrency sets the in-process pool's worker count.
func WithConcurrency(n int) Option {
	return func(e *Engine) { e.concurrency = n }
}

// New creates an Engine. A store must be provided either explicitly or
// through Config.StoreURL; workflow and job registries default to empty
// ones so registration can happen afterwards through accessors.
func New(opts ...Option) (*Engine, error) {
	e := &Engine{
		config:      cascade.DefaultConfig(),
		logger:      slog.Default(),
		cdc:         &codec.JSON{},
		concurrency: 10,
		stores:      newStoreCache(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.workflows == nil {
		e.workflows = workflow.NewRegistry()
	}
	if e.jobs == nil {
		e.jobs = job.NewRegistry()
	}
	if e.requeue == nil {
		e.requeue = backoff.NewConstant(e.config.RequeueDelay)
	}

	if e.store == nil {
		if e.config.StoreURL == "" {
			return nil, cascade.ErrNoStore
		}
		poll := e.config.LockPollInterval
		e.stores.open = func(url string) (store.Store, error) {
			s, err := redisstore.Open(url, redisstore.WithLockPollInterval(poll))
			if err != nil {
				return nil, fmt.Errorf("engine: open store: %w", err)
			}
			return s, nil
		}
		s, err := e.stores.get(e.config.StoreURL)
		if err != nil {
			return nil, err
		}
		e.store = s
	}

	// Default middleware stack: recover → tracing → metrics → logging.
	defaultMws := []mw.Middleware{
		mw.Recover(e.logger),
		mw.Tracing(),
		mw.Metrics(),
		mw.Logging(e.logger),
	}
	allMws := make([]mw.Middleware, 0, len(defaultMws)+len(e.mws))
	allMws = append(allMws, defaultMws...)
	allMws = append(allMws, e.mws...)

	// The pool doubles as the default Enqueuer, so it is built first
	// and receives its worker once the worker exists.
	var pool *worker.Pool
	if e.enqueuer == nil {
		pool = worker.NewPool(nil, worker.WithConcurrency(e.concurrency), worker.WithPoolLogger(e.logger))
		e.enqueuer = pool
		e.pool = pool
	}

	clientOpts := []client.Option{
		client.WithCodec(e.cdc),
		client.WithConfig(e.config),
		client.WithLogger(e.logger),
	}
	if e.observer != nil {
		clientOpts = append(clientOpts, client.WithObserver(e.observer))
	}
	if e.probe != nil {
		clientOpts = append(clientOpts, client.WithLinkedRecordProbe(e.probe))
	}
	e.client = client.New(e.store, e.enqueuer, e.workflows, clientOpts...)

	e.worker = worker.New(e.client, e.jobs, e.store, e.enqueuer,
		worker.WithMiddleware(allMws...),
		worker.WithRequeueBackoff(e.requeue),
		worker.WithLogger(e.logger),
	)
	if pool != nil {
		pool.SetWorker(e.worker)
	}

	return e, nil
}

// Client returns the engine's orchestrator.
func (e *Engine) Client() *client.Client { return e.client }

// Worker returns the engine's worker runtime.
func (e *Engine) Worker() *worker.Worker { return e.worker }

// Workflows returns the workflow registry.
func (e *Engine) Workflows() *workflow.Registry { return e.workflows }

// Jobs returns the job registry.
func (e *Engine) Jobs() *job.Registry { return e.jobs }

// Start begins job processing when the engine owns the in-process
// pool; with an external Enqueuer it is a no-op.
func (e *Engine) Start(ctx context.Context) error {
	if e.pool == nil {
		return nil
	}
	return e.pool.Start(ctx)
}

// Stop shuts down the in-process pool (if any) and closes the store
// when the engine opened it from a URL.
func (e *Engine) Stop(ctx context.Context) error {
	if e.pool != nil {
		if err := e.pool.Stop(ctx); err != nil {
			return err
		}
	}
	return e.stores.closeAll()
}

// openRedis turns a store URL into a redis-backed store. Split out for
// the cache and tested through it.
func openRedis(url string) (store.Store, error) {
	s, err := redisstore.Open(url)
	if err != nil {
		return nil, fmt.Errorf("engine: open store: %w", err)
	}
	return s, nil
}
