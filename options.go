package ojs

import (
	"log/slog"
	"time"
)

// --- Enqueue Options ---

// enqueueConfig holds the resolved configuration for an enqueue operation.
type enqueueConfig struct {
	queue      string
	priority   int
	timeoutMS  int
	delayUntil *time.Time
	retry      *RetryPolicy
	tags       []string
	meta       map[string]any
}

// EnqueueOption configures job enqueue behavior.
type EnqueueOption func(*enqueueConfig)

// WithQueue sets the target queue for the job. Default: "default".
func WithQueue(queue string) EnqueueOption {
	return func(c *enqueueConfig) {
		c.queue = queue
	}
}

// WithPriority sets the job priority. Higher values = higher priority.
func WithPriority(priority int) EnqueueOption {
	return func(c *enqueueConfig) {
		c.priority = priority
	}
}

// WithTimeout sets the maximum execution time for the job.
func WithTimeout(d time.Duration) EnqueueOption {
	return func(c *enqueueConfig) {
		c.timeoutMS = int(d.Milliseconds())
	}
}

// WithDelay schedules the job to run after the specified duration.
func WithDelay(d time.Duration) EnqueueOption {
	return func(c *enqueueConfig) {
		t := time.Now().Add(d)
		c.delayUntil = &t
	}
}

// WithScheduledAt schedules the job to run at a specific time.
func WithScheduledAt(t time.Time) EnqueueOption {
	return func(c *enqueueConfig) {
		c.delayUntil = &t
	}
}

// WithRetry sets a custom retry policy for the job.
func WithRetry(policy RetryPolicy) EnqueueOption {
	return func(c *enqueueConfig) {
		c.retry = &policy
	}
}

// WithTags adds tags to the job for filtering and observability.
func WithTags(tags ...string) EnqueueOption {
	return func(c *enqueueConfig) {
		c.tags = append(c.tags, tags...)
	}
}

// WithMeta sets metadata key-value pairs on the job.
func WithMeta(meta map[string]any) EnqueueOption {
	return func(c *enqueueConfig) {
		if c.meta == nil {
			c.meta = make(map[string]any)
		}
		for k, v := range meta {
			c.meta[k] = v
		}
	}
}

func resolveEnqueueConfig(opts []EnqueueOption) enqueueConfig {
	cfg := enqueueConfig{
		queue: "default",
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// --- Client Options ---

// clientConfig holds the resolved configuration for a Client.
type clientConfig struct {
	notifier     *Notifier
	codec        *Codec
	errorHandler ErrorHandler
}

// ClientOption configures the client.
type ClientOption func(*clientConfig)

// WithNotifier sets the Notifier that receives enqueue notifications.
func WithNotifier(n *Notifier) ClientOption {
	return func(c *clientConfig) {
		c.notifier = n
	}
}

// WithCodec sets the codec used to serialize jobs.
func WithCodec(codec *Codec) ClientOption {
	return func(c *clientConfig) {
		c.codec = codec
	}
}

// WithErrorHandler sets where carrier codec failures are reported when
// no codec is given. Default: GlobalErrorHandler.
func WithErrorHandler(h ErrorHandler) ClientOption {
	return func(c *clientConfig) {
		c.errorHandler = h
	}
}

func resolveClientConfig(opts []ClientOption) clientConfig {
	var cfg clientConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.codec == nil {
		cfg.codec = NewCodec(nil, cfg.errorHandler)
	}
	return cfg
}

// --- Worker Options ---

// workerConfig holds the resolved configuration for a Worker.
type workerConfig struct {
	queues       []string
	concurrency  int
	gracePeriod  time.Duration
	pollInterval time.Duration
	logger       *slog.Logger
	notifier     *Notifier
	codec        *Codec
	errorHandler ErrorHandler
}

// WorkerOption configures the worker.
type WorkerOption func(*workerConfig)

// WithQueues sets the queues the worker subscribes to.
// The first queue has the highest priority.
func WithQueues(queues ...string) WorkerOption {
	return func(c *workerConfig) {
		c.queues = queues
	}
}

// WithConcurrency sets the maximum number of jobs processed in parallel.
// Default: 10.
func WithConcurrency(n int) WorkerOption {
	return func(c *workerConfig) {
		c.concurrency = n
	}
}

// WithGracePeriod sets the maximum time to wait for active jobs during shutdown.
// Default: 25 seconds.
func WithGracePeriod(d time.Duration) WorkerOption {
	return func(c *workerConfig) {
		c.gracePeriod = d
	}
}

// WithPollInterval sets the interval between fetch requests when no jobs are available.
// Default: 1 second.
func WithPollInterval(d time.Duration) WorkerOption {
	return func(c *workerConfig) {
		c.pollInterval = d
	}
}

// WithLogger sets a structured logger for the worker's operational events.
// When set, the worker logs ACK/NACK failures, fetch errors, and retry
// decisions. Pass nil to disable logging (the default).
func WithLogger(logger *slog.Logger) WorkerOption {
	return func(c *workerConfig) {
		c.logger = logger
	}
}

// WithWorkerNotifier sets the Notifier that receives perform, retry and
// discard notifications.
func WithWorkerNotifier(n *Notifier) WorkerOption {
	return func(c *workerConfig) {
		c.notifier = n
	}
}

// WithWorkerCodec sets the codec used to decode and re-enqueue jobs.
func WithWorkerCodec(codec *Codec) WorkerOption {
	return func(c *workerConfig) {
		c.codec = codec
	}
}

// WithWorkerErrorHandler sets where carrier codec failures are reported
// when no codec is given. Default: GlobalErrorHandler.
func WithWorkerErrorHandler(h ErrorHandler) WorkerOption {
	return func(c *workerConfig) {
		c.errorHandler = h
	}
}

func resolveWorkerConfig(opts []WorkerOption) workerConfig {
	cfg := workerConfig{
		queues:       []string{"default"},
		concurrency:  10,
		gracePeriod:  25 * time.Second,
		pollInterval: 1 * time.Second,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.concurrency < 1 {
		cfg.concurrency = 1
	}
	if cfg.codec == nil {
		cfg.codec = NewCodec(nil, cfg.errorHandler)
	}
	return cfg
}
