package ojs

import (
	"context"
	"fmt"
	"time"
)

// Client enqueues jobs through an Adapter. Each enqueue is wrapped in an
// enqueue notification so instrumentation can trace it and write trace
// context into the job's carrier before it is serialized.
type Client struct {
	adapter  Adapter
	notifier *Notifier
	codec    *Codec
}

// NewClient creates a client that hands jobs to adapter.
//
// Example:
//
//	client := ojs.NewClient(redisq.New(rdb), ojs.WithNotifier(notifier))
func NewClient(adapter Adapter, opts ...ClientOption) *Client {
	cfg := resolveClientConfig(opts)
	return &Client{
		adapter:  adapter,
		notifier: cfg.notifier,
		codec:    cfg.codec,
	}
}

// Adapter returns the adapter the client enqueues through.
func (c *Client) Adapter() Adapter {
	return c.adapter
}

// Enqueue builds and submits a single job.
//
// Example:
//
//	job, err := client.Enqueue(ctx, "email.send",
//	    ojs.Args{"to": "user@example.com"},
//	    ojs.WithQueue("email"),
//	    ojs.WithRetry(ojs.RetryPolicy{MaxAttempts: 5}),
//	)
func (c *Client) Enqueue(ctx context.Context, jobType string, args Args, opts ...EnqueueOption) (*Job, error) {
	job := NewJob(jobType, args, opts...)
	if err := c.EnqueueJob(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

// EnqueueJob submits a prebuilt job. On success the adapter's provider
// job ID is stamped on job.
func (c *Client) EnqueueJob(ctx context.Context, job *Job) error {
	return c.enqueue(NewScope(ctx), job)
}

// EnqueueBatch submits multiple jobs in order. It stops at the first
// failure and returns the jobs enqueued so far.
//
// Example:
//
//	jobs, err := client.EnqueueBatch(ctx, []ojs.JobRequest{
//	    {Type: "email.send", Args: ojs.Args{"to": "a@example.com"}},
//	    {Type: "email.send", Args: ojs.Args{"to": "b@example.com"}},
//	})
func (c *Client) EnqueueBatch(ctx context.Context, requests []JobRequest) ([]*Job, error) {
	if len(requests) == 0 {
		return nil, fmt.Errorf("ojs: batch must contain at least one job")
	}
	jobs := make([]*Job, 0, len(requests))
	for i, r := range requests {
		job, err := c.Enqueue(ctx, r.Type, r.Args, r.Options...)
		if err != nil {
			return jobs, fmt.Errorf("ojs: batch job %d: %w", i, err)
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// enqueue fires enqueue or enqueue_at around serializing job and handing
// it to the adapter. The carrier is serialized inside the notification,
// after subscribers have had the chance to write to it.
func (c *Client) enqueue(scope *Scope, job *Job) error {
	if err := validateJob(job); err != nil {
		return err
	}
	if job.Headers == nil {
		job.Headers = Headers{}
	}
	if job.MaxAttempts == 0 {
		job.MaxAttempts = job.retryPolicy().MaxAttempts
	}
	job.Adapter = c.adapter.Name()

	name := EventEnqueue
	p := &Payload{Job: job, Scope: scope}
	if job.Scheduled() {
		name = EventEnqueueAt
		p.Wait = time.Until(*job.ScheduledAt)
	}

	return c.notifier.Instrument(name, p, func(ctx context.Context) error {
		now := time.Now().UTC()
		job.EnqueuedAt = &now

		data, err := c.codec.Encode(job)
		if err != nil {
			return err
		}
		id, err := c.adapter.Enqueue(ctx, job, data)
		if err != nil {
			return fmt.Errorf("ojs: enqueue %s via %s: %w", job.Type, c.adapter.Name(), err)
		}
		job.ProviderJobID = id
		return nil
	})
}
