package ojs

import (
	"errors"

	"go.opentelemetry.io/otel"
)

// Error codes recorded on a job's JobError.
const (
	ErrCodeHandlerError   = "handler_error"
	ErrCodeInvalidPayload = "invalid_payload"
	ErrCodeNoHandler      = "no_handler"
	ErrCodeCancelled      = "cancelled"
)

// Sentinel errors for use with errors.Is.
var (
	ErrNoHandler             = errors.New("ojs: no handler registered for job type")
	ErrNotBound              = errors.New("ojs: adapter has no performer bound")
	ErrSchedulingUnsupported = errors.New("ojs: adapter does not support scheduled jobs")
	ErrDetachMismatch        = errors.New("ojs: context detached out of order")
	ErrNotConsumer           = errors.New("ojs: adapter cannot be consumed by a worker")
	ErrInvalidJob            = errors.New("ojs: invalid job")

	// ErrRetryScheduled marks a Perform error whose job the worker has
	// already re-enqueued. Push transports should not redeliver it.
	ErrRetryScheduled = errors.New("ojs: retry scheduled")
)

// ErrorHandler receives errors that must not interrupt job processing,
// such as carrier codec failures and instrumentation faults. It has the
// same method set as otel.ErrorHandler, so either can be passed where
// the other is expected. Implementations must be safe for concurrent use.
type ErrorHandler interface {
	Handle(error)
}

// ErrorHandlerFunc adapts a function to ErrorHandler.
type ErrorHandlerFunc func(error)

// Handle calls f(err).
func (f ErrorHandlerFunc) Handle(err error) { f(err) }

// GlobalErrorHandler forwards to otel.Handle, the process-wide sink
// configured through otel.SetErrorHandler.
var GlobalErrorHandler ErrorHandler = ErrorHandlerFunc(otel.Handle)

// IsRetryable reports whether a handler error should lead to another
// attempt. Errors default to retryable unless wrapped with [NonRetryable].
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var nr *nonRetryableError
	return !errors.As(err, &nr)
}

// nonRetryableError wraps an error to mark it as non-retryable.
type nonRetryableError struct {
	err error
}

func (e *nonRetryableError) Error() string { return e.err.Error() }
func (e *nonRetryableError) Unwrap() error { return e.err }

// retryScheduledError keeps the handler error's message and identity
// while also matching ErrRetryScheduled.
type retryScheduledError struct {
	err error
}

func (e *retryScheduledError) Error() string   { return e.err.Error() }
func (e *retryScheduledError) Unwrap() []error { return []error{e.err, ErrRetryScheduled} }

// NonRetryable wraps an error to indicate that the job should not be retried.
// The worker discards the job instead of enqueueing another attempt.
//
// Example:
//
//	worker.Register("email.send", func(ctx ojs.JobContext) error {
//	    if !isValidEmail(ctx.Job.Args["to"]) {
//	        return ojs.NonRetryable(fmt.Errorf("invalid email address"))
//	    }
//	    return sendEmail(ctx)
//	})
func NonRetryable(err error) error {
	if err == nil {
		return nil
	}
	return &nonRetryableError{err: err}
}

// NewJobError converts a handler error into the structured form stored
// on the job for the next attempt.
func NewJobError(err error) *JobError {
	if err == nil {
		return nil
	}
	code := ErrCodeHandlerError
	switch {
	case errors.Is(err, ErrNoHandler):
		code = ErrCodeNoHandler
	case errors.Is(err, errInvalidPayload):
		code = ErrCodeInvalidPayload
	}
	return &JobError{
		Code:      code,
		Message:   err.Error(),
		Retryable: IsRetryable(err),
	}
}

var errInvalidPayload = errors.New("ojs: invalid job payload")
