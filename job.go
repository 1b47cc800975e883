package ojs

import (
	"encoding/json"
	"fmt"
	"reflect"
	"time"

	"github.com/google/uuid"
)

// Args represents the arguments for a job as a key-value map.
// On the OJS wire format, args are serialized as a JSON array
// containing a single object: [{"key": "value", ...}].
type Args map[string]any

// Headers is the propagation carrier attached to every job. It holds
// serialized trace context and travels with the job under [HeadersKey].
// Keys are unique; order is irrelevant.
type Headers map[string]string

// Get returns the value for key. It satisfies the OpenTelemetry
// TextMapCarrier interface.
func (h Headers) Get(key string) string {
	return h[key]
}

// Set stores a key-value pair. It satisfies the OpenTelemetry
// TextMapCarrier interface.
func (h Headers) Set(key, value string) {
	h[key] = value
}

// Keys lists the keys stored in the carrier.
func (h Headers) Keys() []string {
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	return keys
}

// Clone returns a copy of the carrier. A nil carrier clones to an empty one.
func (h Headers) Clone() Headers {
	out := make(Headers, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out
}

// Job represents an OJS job envelope.
type Job struct {
	ID            string         `json:"id"`
	Type          string         `json:"type"`
	Queue         string         `json:"queue"`
	Priority      int            `json:"priority"`
	ProviderJobID string         `json:"provider_job_id,omitempty"`
	Attempt       int            `json:"attempt"`
	MaxAttempts   int            `json:"max_attempts"`
	TimeoutMS     int            `json:"timeout_ms,omitempty"`
	Tags          []string       `json:"tags,omitempty"`
	Meta          map[string]any `json:"meta,omitempty"`
	Retry         *RetryPolicy   `json:"-"`
	Error         *JobError      `json:"error,omitempty"`

	CreatedAt   *time.Time `json:"created_at,omitempty"`
	EnqueuedAt  *time.Time `json:"enqueued_at,omitempty"`
	ScheduledAt *time.Time `json:"scheduled_at,omitempty"`

	// Args is the user-friendly map representation.
	// The SDK handles conversion to/from the OJS wire format (JSON array).
	Args Args `json:"-"`

	// RawArgs preserves the original wire-format array for cases where
	// positional arguments are used instead of a single-object map. It is
	// sent as-is while Args still matches it.
	RawArgs []any `json:"-"`

	// Headers carries trace propagation data across the queue. It is
	// created empty with the job and written only on the producer side.
	Headers Headers `json:"-"`

	// Adapter is the name of the queue adapter handling the job. It is
	// stamped by the client and worker and never serialized.
	Adapter string `json:"-"`
}

// NewJob builds a job envelope ready for enqueueing. The job gets a fresh
// ID and an empty Headers carrier.
func NewJob(jobType string, args Args, opts ...EnqueueOption) *Job {
	cfg := resolveEnqueueConfig(opts)
	now := time.Now().UTC()
	job := &Job{
		ID:          uuid.NewString(),
		Type:        jobType,
		Queue:       cfg.queue,
		Priority:    cfg.priority,
		TimeoutMS:   cfg.timeoutMS,
		Tags:        cfg.tags,
		Meta:        cfg.meta,
		Retry:       cfg.retry,
		Args:        args,
		CreatedAt:   &now,
		ScheduledAt: cfg.delayUntil,
		Headers:     Headers{},
	}
	job.MaxAttempts = job.retryPolicy().MaxAttempts
	return job
}

// Scheduled reports whether the job should run at a future time.
func (j *Job) Scheduled() bool {
	return j.ScheduledAt != nil && j.ScheduledAt.After(time.Now())
}

// Clone returns a deep copy of the envelope with an empty Headers
// carrier. Retries enqueue a clone so the running job's carrier is left
// untouched.
func (j *Job) Clone() *Job {
	c := *j
	c.Headers = Headers{}
	if j.Tags != nil {
		c.Tags = append([]string(nil), j.Tags...)
	}
	if j.Meta != nil {
		c.Meta = make(map[string]any, len(j.Meta))
		for k, v := range j.Meta {
			c.Meta[k] = v
		}
	}
	if j.RawArgs != nil {
		c.RawArgs = append([]any(nil), j.RawArgs...)
	}
	if j.Args != nil {
		c.Args = make(Args, len(j.Args))
		for k, v := range j.Args {
			c.Args[k] = v
		}
	}
	if j.Retry != nil {
		r := *j.Retry
		c.Retry = &r
	}
	if j.Error != nil {
		e := *j.Error
		c.Error = &e
	}
	return &c
}

func (j *Job) retryPolicy() RetryPolicy {
	if j.Retry != nil {
		return j.Retry.withDefaults()
	}
	return DefaultRetryPolicy()
}

// jobJSON is the wire representation of a Job.
type jobJSON struct {
	ID            string           `json:"id"`
	Type          string           `json:"type"`
	Queue         string           `json:"queue"`
	Priority      int              `json:"priority"`
	ProviderJobID string           `json:"provider_job_id,omitempty"`
	Attempt       int              `json:"attempt"`
	MaxAttempts   int              `json:"max_attempts"`
	TimeoutMS     int              `json:"timeout_ms,omitempty"`
	Tags          []string         `json:"tags,omitempty"`
	Meta          map[string]any   `json:"meta,omitempty"`
	Retry         *retryPolicyWire `json:"retry,omitempty"`
	Error         *JobError        `json:"error,omitempty"`
	CreatedAt     *time.Time       `json:"created_at,omitempty"`
	EnqueuedAt    *time.Time       `json:"enqueued_at,omitempty"`
	ScheduledAt   *time.Time       `json:"scheduled_at,omitempty"`
	Args          json.RawMessage  `json:"args,omitempty"`
	Headers       json.RawMessage  `json:"__otel_headers,omitempty"`
}

func (j Job) toWire() (jobJSON, error) {
	raw := jobJSON{
		ID:            j.ID,
		Type:          j.Type,
		Queue:         j.Queue,
		Priority:      j.Priority,
		ProviderJobID: j.ProviderJobID,
		Attempt:       j.Attempt,
		MaxAttempts:   j.MaxAttempts,
		TimeoutMS:     j.TimeoutMS,
		Tags:          j.Tags,
		Meta:          j.Meta,
		Error:         j.Error,
		CreatedAt:     j.CreatedAt,
		EnqueuedAt:    j.EnqueuedAt,
		ScheduledAt:   j.ScheduledAt,
	}
	if j.Retry != nil {
		raw.Retry = j.Retry.toWire()
	}
	args, err := json.Marshal(j.wireArgs())
	if err != nil {
		return raw, fmt.Errorf("ojs: marshal args: %w", err)
	}
	raw.Args = args
	return raw, nil
}

func (j *Job) fromWire(raw jobJSON) {
	j.ID = raw.ID
	j.Type = raw.Type
	j.Queue = raw.Queue
	j.Priority = raw.Priority
	j.ProviderJobID = raw.ProviderJobID
	j.Attempt = raw.Attempt
	j.MaxAttempts = raw.MaxAttempts
	j.TimeoutMS = raw.TimeoutMS
	j.Tags = raw.Tags
	j.Meta = raw.Meta
	j.Retry = retryPolicyFromWire(raw.Retry)
	j.Error = raw.Error
	j.CreatedAt = raw.CreatedAt
	j.EnqueuedAt = raw.EnqueuedAt
	j.ScheduledAt = raw.ScheduledAt
	j.Args = Args{}
	j.RawArgs = nil

	if len(raw.Args) > 0 {
		var arr []any
		if err := json.Unmarshal(raw.Args, &arr); err == nil {
			j.RawArgs = arr
			j.Args = argsFromWire(arr)
		}
	}
}

// MarshalJSON implements custom JSON marshaling for Job. Headers are
// included under [HeadersKey] when they encode cleanly; use [Codec] to
// have carrier failures reported instead of dropped.
func (j Job) MarshalJSON() ([]byte, error) {
	raw, err := j.toWire()
	if err != nil {
		return nil, err
	}
	if h, err := (JSONHeaderCodec{}).EncodeHeaders(j.Headers); err == nil {
		raw.Headers = h
	}
	return json.Marshal(raw)
}

// UnmarshalJSON implements custom JSON unmarshaling for Job.
func (j *Job) UnmarshalJSON(data []byte) error {
	var raw jobJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	j.fromWire(raw)
	j.Headers = Headers{}
	if h, err := (JSONHeaderCodec{}).DecodeHeaders(raw.Headers); err == nil {
		j.Headers = h
	}
	return nil
}

// JobError represents a structured error associated with a job.
type JobError struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Retryable bool           `json:"retryable"`
	Details   map[string]any `json:"details,omitempty"`
}

// JobRequest represents a request to enqueue a job.
type JobRequest struct {
	Type    string
	Args    Args
	Options []EnqueueOption
}

// wireArgs returns the argument array to send. A decoded job keeps its
// original array unless Args was changed since.
func (j Job) wireArgs() []any {
	if len(j.RawArgs) > 0 && reflect.DeepEqual(argsFromWire(j.RawArgs), j.Args) {
		return j.RawArgs
	}
	return argsToWire(j.Args)
}

// argsToWire converts Args (map) to the OJS wire format (JSON array).
func argsToWire(a Args) []any {
	if len(a) == 0 {
		return []any{}
	}
	return []any{map[string]any(a)}
}

// argsFromWire converts the OJS wire format (JSON array) to Args (map).
func argsFromWire(raw []any) Args {
	if len(raw) == 0 {
		return Args{}
	}
	// If the first element is a map, use it directly as Args.
	if m, ok := raw[0].(map[string]any); ok {
		return Args(m)
	}
	// Fallback for positional args: index them by position.
	result := make(Args, len(raw))
	for i, v := range raw {
		result[fmt.Sprintf("%d", i)] = v
	}
	return result
}
