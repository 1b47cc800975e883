package ojs

import (
	"context"
	"slices"
)

// Adapter hands serialized jobs to a queue backend.
type Adapter interface {
	// Name identifies the backend, e.g. "redis". It is reported as the
	// messaging system of enqueue and perform spans.
	Name() string

	// Enqueue stores data for job and returns the backend's own
	// identifier for it, or "" if the backend has none. Scheduled jobs
	// carry ScheduledAt; adapters that cannot delay delivery return
	// ErrSchedulingUnsupported.
	Enqueue(ctx context.Context, job *Job, data []byte) (providerJobID string, err error)
}

// Consumer is implemented by adapters a Worker can pull jobs from.
type Consumer interface {
	// Fetch returns up to max deliveries from queues, in priority order
	// of the queue list. It returns an empty slice, not an error, when
	// nothing is ready.
	Fetch(ctx context.Context, queues []string, max int) ([]Delivery, error)
}

// Delivery is one fetched job awaiting acknowledgement.
type Delivery interface {
	Data() []byte
	ProviderJobID() string
	Ack(ctx context.Context) error
	Nack(ctx context.Context, cause error) error
}

// Performer runs a serialized job. *Worker implements it; push-based
// adapters call it for each message they receive.
type Performer interface {
	Perform(ctx context.Context, data []byte, providerJobID string) error
}

// InProcessAdapters names the adapters that run jobs inside the
// enqueueing process.
var InProcessAdapters = []string{"inline", "async"}

// IsInProcess reports whether the named adapter runs jobs in-process.
func IsInProcess(adapter string) bool {
	return slices.Contains(InProcessAdapters, adapter)
}
