package ojs

// Lifecycle notification names. The suffix namespaces them so that
// subscribers can share a Notifier with unrelated instrumentation.
const (
	// EventEnqueue wraps serializing a job and handing it to the adapter.
	EventEnqueue = "enqueue.ojs"
	// EventEnqueueAt is EventEnqueue for jobs scheduled in the future.
	EventEnqueueAt = "enqueue_at.ojs"
	// EventEnqueueRetry wraps re-enqueueing a failed job for another attempt.
	EventEnqueueRetry = "enqueue_retry.ojs"

	// EventPerformStart is an instant event fired before perform.
	EventPerformStart = "perform_start.ojs"
	// EventPerform wraps running the middleware chain and handler.
	EventPerform = "perform.ojs"

	// EventRetryStopped fires when a failing job has used all attempts.
	EventRetryStopped = "retry_stopped.ojs"
	// EventDiscard fires when a job fails with a non-retryable error.
	EventDiscard = "discard.ojs"
)

// Events lists every lifecycle notification in the order a job that is
// retried and then exhausted would emit them.
var Events = []string{
	EventEnqueue,
	EventEnqueueAt,
	EventPerformStart,
	EventPerform,
	EventEnqueueRetry,
	EventRetryStopped,
	EventDiscard,
}
