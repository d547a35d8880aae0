package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/cascadehq/cascade/job"
)

// Recover returns middleware that recovers from panics in the perform
// chain. Panics are converted to errors and logged with a stack trace,
// so a panicking job fails its branch instead of killing the worker.
func Recover(logger *slog.Logger) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) (retErr error) {
		defer func() {
			if r := recover(); r != nil {
				stack := string(debug.Stack())
				logger.Error("job perform panicked",
					slog.String("job", j.Name()),
					slog.String("workflow_id", j.WorkflowID),
					slog.Any("panic", r),
					slog.String("stack", stack),
				)
				retErr = fmt.Errorf("panic in job %s: %v", j.Name(), r)
			}
		}()
		return next(ctx)
	}
}
