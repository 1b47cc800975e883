package ojs

import (
	"math"
	"math/rand/v2"
	"time"
)

// RetryPolicy defines the retry behavior for a job.
type RetryPolicy struct {
	// MaxAttempts is the maximum number of times a job will be attempted.
	// Default: 3.
	MaxAttempts int `json:"max_attempts,omitempty"`

	// InitialInterval is the delay before the first retry.
	// Default: 1 second.
	InitialInterval time.Duration `json:"-"`

	// BackoffCoefficient is the multiplier applied to the interval between retries.
	// Default: 2.0 (exponential backoff).
	BackoffCoefficient float64 `json:"backoff_coefficient,omitempty"`

	// MaxInterval is the maximum delay between retries.
	// Default: 5 minutes.
	MaxInterval time.Duration `json:"-"`

	// Jitter adds randomization to retry intervals to prevent thundering herd.
	// Default: true.
	Jitter *bool `json:"jitter,omitempty"`
}

// retryPolicyWire is the wire representation of RetryPolicy using milliseconds.
type retryPolicyWire struct {
	MaxAttempts        int     `json:"max_attempts,omitempty"`
	InitialIntervalMS  int     `json:"initial_interval_ms,omitempty"`
	BackoffCoefficient float64 `json:"backoff_coefficient,omitempty"`
	MaxIntervalMS      int     `json:"max_interval_ms,omitempty"`
	Jitter             *bool   `json:"jitter,omitempty"`
}

func (r RetryPolicy) toWire() *retryPolicyWire {
	return &retryPolicyWire{
		MaxAttempts:        r.MaxAttempts,
		InitialIntervalMS:  int(r.InitialInterval.Milliseconds()),
		BackoffCoefficient: r.BackoffCoefficient,
		MaxIntervalMS:      int(r.MaxInterval.Milliseconds()),
		Jitter:             r.Jitter,
	}
}

func retryPolicyFromWire(w *retryPolicyWire) *RetryPolicy {
	if w == nil {
		return nil
	}
	return &RetryPolicy{
		MaxAttempts:        w.MaxAttempts,
		InitialInterval:    time.Duration(w.InitialIntervalMS) * time.Millisecond,
		BackoffCoefficient: w.BackoffCoefficient,
		MaxInterval:        time.Duration(w.MaxIntervalMS) * time.Millisecond,
		Jitter:             w.Jitter,
	}
}

// DefaultRetryPolicy returns the OJS default retry policy.
func DefaultRetryPolicy() RetryPolicy {
	jitter := true
	return RetryPolicy{
		MaxAttempts:        3,
		InitialInterval:    1 * time.Second,
		BackoffCoefficient: 2.0,
		MaxInterval:        5 * time.Minute,
		Jitter:             &jitter,
	}
}

// withDefaults fills zero fields from DefaultRetryPolicy.
func (r RetryPolicy) withDefaults() RetryPolicy {
	def := DefaultRetryPolicy()
	if r.MaxAttempts <= 0 {
		r.MaxAttempts = def.MaxAttempts
	}
	if r.InitialInterval <= 0 {
		r.InitialInterval = def.InitialInterval
	}
	if r.BackoffCoefficient < 1 {
		r.BackoffCoefficient = def.BackoffCoefficient
	}
	if r.MaxInterval <= 0 {
		r.MaxInterval = def.MaxInterval
	}
	if r.Jitter == nil {
		r.Jitter = def.Jitter
	}
	return r
}

// Backoff returns the delay before the given retry attempt (1-based).
// The interval grows by BackoffCoefficient per attempt and is capped at
// MaxInterval. With jitter enabled up to one InitialInterval is added,
// still bounded by MaxInterval.
func (r RetryPolicy) Backoff(attempt int) time.Duration {
	r = r.withDefaults()
	if attempt < 1 {
		attempt = 1
	}
	d := float64(r.InitialInterval) * math.Pow(r.BackoffCoefficient, float64(attempt-1))
	if d > float64(r.MaxInterval) {
		d = float64(r.MaxInterval)
	}
	delay := time.Duration(d)
	if *r.Jitter {
		delay += time.Duration(rand.Int64N(int64(r.InitialInterval)))
		if delay > r.MaxInterval {
			delay = r.MaxInterval
		}
	}
	return delay
}
