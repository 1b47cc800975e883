package ojs

import (
	"context"
	"encoding/json"
	"fmt"
)

// TypedHandlerFunc is a handler that receives pre-parsed, typed arguments.
// Use with [RegisterTyped] to avoid manual type assertions on job args.
type TypedHandlerFunc[T any] func(ctx JobContext, args T) error

// RegisterTyped registers a typed handler for the given job type.
// Job args are unmarshaled into T before the handler is called. If that
// fails the job is discarded as non-retryable.
//
// Example:
//
//	type EmailArgs struct {
//	    To      string `json:"to"`
//	    Subject string `json:"subject"`
//	}
//
//	ojs.RegisterTyped(worker, "email.send", func(ctx ojs.JobContext, args EmailArgs) error {
//	    return mailer.Send(ctx.Context(), args.To, args.Subject)
//	})
func RegisterTyped[T any](w *Worker, jobType string, handler TypedHandlerFunc[T]) {
	w.Register(jobType, func(ctx JobContext) error {
		var args T
		// Round-trip through JSON: Args (map[string]any) → JSON → T.
		data, err := json.Marshal(ctx.Job.Args)
		if err != nil {
			return NonRetryable(fmt.Errorf("%w: marshal args for %s: %v", errInvalidPayload, jobType, err))
		}
		if err := json.Unmarshal(data, &args); err != nil {
			return NonRetryable(fmt.Errorf("%w: unmarshal args into %T for %s: %v", errInvalidPayload, args, jobType, err))
		}
		return handler(ctx, args)
	})
}

// EnqueueTyped enqueues a job whose args are the JSON object form of args.
// T must marshal to a JSON object.
func EnqueueTyped[T any](ctx context.Context, c *Client, jobType string, args T, opts ...EnqueueOption) (*Job, error) {
	data, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("ojs: marshal %T: %w", args, err)
	}
	var m Args
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("ojs: %T must marshal to a JSON object: %w", args, err)
	}
	return c.Enqueue(ctx, jobType, m, opts...)
}
