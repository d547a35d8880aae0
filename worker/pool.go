package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cascadehq/cascade"
)

// Compile-time check: the pool is an Enqueuer.
var _ cascade.Enqueuer = (*Pool)(nil)

// Pool is the in-process reference implementation of cascade.Enqueuer:
// enqueued payloads are delivered, after their delay, to a set of
// worker goroutines that invoke Worker.Perform. Any external queue can
// replace it by implementing the Enqueuer interface.
type Pool struct {
	worker      *Worker
	concurrency int
	logger      *slog.Logger

	payloads chan cascade.Payload
	stopCh   chan struct{}
	wg       sync.WaitGroup
	timerWg  sync.WaitGroup
	mu       sync.Mutex
	running  bool
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithConcurrency sets the number of worker goroutines.
func WithConcurrency(n int) PoolOption {
	return func(p *Pool) { p.concurrency = n }
}

// WithPoolLogger sets a custom logger.
func WithPoolLogger(l *slog.Logger) PoolOption {
	return func(p *Pool) { p.logger = l }
}

// NewPool creates a worker pool delivering to the given Worker.
func NewPool(w *Worker, opts ...PoolOption) *Pool {
	p := &Pool{
		worker:      w,
		concurrency: 10,
		logger:      slog.Default(),
		payloads:    make(chan cascade.Payload, 256),
		stopCh:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// SetWorker wires the worker after construction. The pool must be built
// before the worker when the worker reschedules through the pool.
func (p *Pool) SetWorker(w *Worker) { p.worker = w }

// Enqueue implements cascade.Enqueuer. The queue name is recorded for
// logging only; a single in-process pool serves every queue.
func (p *Pool) Enqueue(_ context.Context, queue string, delay float64, payload cascade.Payload) error {
	deliver := func() {
		select {
		case p.payloads <- payload:
		case <-p.stopCh:
		}
	}

	if delay > 0 {
		p.timerWg.Add(1)
		time.AfterFunc(time.Duration(delay*float64(time.Second)), func() {
			defer p.timerWg.Done()
			deliver()
		})
		return nil
	}

	p.logger.Debug("payload queued",
		slog.String("queue", queue),
		slog.String("workflow_id", payload.WorkflowID),
		slog.String("job", payload.JobName),
	)
	go deliver()
	return nil
}

// Start launches the worker goroutines. It returns immediately.
func (p *Pool) Start(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return nil
	}
	p.running = true

	p.logger.Info("worker pool starting", slog.Int("concurrency", p.concurrency))

	for range p.concurrency {
		p.wg.Add(1)
		go p.performLoop()
	}
	return nil
}

// Stop signals all workers to stop and waits for in-flight jobs.
// Payloads still waiting on a delay timer are dropped; a persistent
// external Enqueuer is the right home for delays that must survive
// shutdown.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	p.mu.Unlock()

	close(p.stopCh)

	done := make(chan struct{})
	go func() {
		p.timerWg.Wait()
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("worker pool stopped")
		return nil
	case <-ctx.Done():
		p.logger.Warn("worker pool shutdown timed out")
		return ctx.Err()
	}
}

// performLoop is run by each worker goroutine.
func (p *Pool) performLoop() {
	defer p.wg.Done()

	for {
		select {
		case <-p.stopCh:
			return
		case payload := <-p.payloads:
			if err := p.worker.Perform(context.Background(), payload.WorkflowID, payload.JobName); err != nil {
				p.logger.Debug("job execution failed",
					slog.String("workflow_id", payload.WorkflowID),
					slog.String("job", payload.JobName),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}
