package middleware

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"

	ojs "github.com/openjobspec/ojs-jobtrace"
)

// ErrPanic is wrapped by errors returned for recovered panics.
var ErrPanic = errors.New("job panicked")

// Recovery returns middleware that recovers from panics in downstream
// handlers and converts them to errors. This prevents a single panicking
// job from crashing the entire worker process. The error wraps [ErrPanic]
// and, when the panic value is an error, that error too; it stays
// retryable unless the panic value was marked with ojs.NonRetryable.
//
// If a logger is provided, the panic value and stack trace are logged
// at ERROR level. Pass nil to disable panic logging.
func Recovery(logger *slog.Logger) ojs.MiddlewareFunc {
	return func(ctx ojs.JobContext, next ojs.HandlerFunc) (retErr error) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)

			if logger != nil {
				logger.LogAttrs(ctx.Context(), slog.LevelError, "job panicked",
					slog.String("job.type", ctx.Job.Type),
					slog.String("job.id", ctx.Job.ID),
					slog.Any("panic", r),
					slog.String("stack", string(buf[:n])),
				)
			}

			if err, ok := r.(error); ok {
				retErr = fmt.Errorf("%w in %s (id=%s): %w", ErrPanic, ctx.Job.Type, ctx.Job.ID, err)
				return
			}
			retErr = fmt.Errorf("%w in %s (id=%s): %v", ErrPanic, ctx.Job.Type, ctx.Job.ID, r)
		}()
		return next(ctx)
	}
}
