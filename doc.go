// Package cascade provides a persistent workflow engine: workflows are
// directed acyclic graphs of jobs, state lives in an external key-value
// store, and ready jobs are handed to a background execution queue.
//
// Cascade is a library, not a service. Register workflow and job classes,
// configure a store, and drive workflows through the client:
//
//	eng, err := engine.New(
//	    engine.WithStore(redisStore),
//	    engine.WithWorkflows(wfRegistry),
//	    engine.WithJobs(jobRegistry),
//	)
//	wf, err := eng.Client().CreateWorkflow(ctx, "OrderPipeline")
//	err = eng.Client().StartWorkflow(ctx, wf)
//
// # Architecture
//
// Each subsystem lives in its own package: id (collision-checked
// identifiers), store (typed key-value + named locks), codec
// (record encoding), job (single-job state machine), workflow (DAG
// topology and aggregate state), client (orchestration and persistence),
// worker (job execution and successor propagation).
//
// A job becomes eligible only when every upstream job has succeeded.
// Multiple workers may observe the same successor go ready at once; the
// engine serializes the check-then-enqueue pair under a per-successor
// named lock so each job is enqueued exactly once. Failures halt a
// branch, not the workflow, and restarting resumes from persisted state.
package cascade
