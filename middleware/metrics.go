package middleware

import (
	"time"

	ojs "github.com/openjobspec/ojs-jobtrace"
)

// JobLabels identifies the job a metric is recorded for.
type JobLabels struct {
	Type    string
	Queue   string
	Adapter string
}

// MetricsRecorder is the interface for recording job execution metrics.
// Implement this interface to connect any metrics backend.
type MetricsRecorder interface {
	// JobStarted is called when a job begins execution.
	JobStarted(l JobLabels)

	// JobCompleted is called when a job finishes successfully.
	JobCompleted(l JobLabels, duration time.Duration)

	// JobFailed is called when a job finishes with an error. retryable
	// reports whether the worker will schedule another attempt, attempts
	// permitting.
	JobFailed(l JobLabels, duration time.Duration, retryable bool)
}

// Metrics returns middleware that records job execution metrics via the
// provided [MetricsRecorder]. It tracks job starts, completions, failures,
// and execution duration.
func Metrics(recorder MetricsRecorder) ojs.MiddlewareFunc {
	return func(ctx ojs.JobContext, next ojs.HandlerFunc) error {
		l := JobLabels{Type: ctx.Job.Type, Queue: ctx.Queue, Adapter: ctx.Job.Adapter}
		recorder.JobStarted(l)

		start := time.Now()
		err := next(ctx)
		duration := time.Since(start)

		if err != nil {
			recorder.JobFailed(l, duration, ojs.IsRetryable(err))
		} else {
			recorder.JobCompleted(l, duration)
		}

		return err
	}
}
