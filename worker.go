package ojs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// WorkerState represents the lifecycle state of a worker.
type WorkerState string

const (
	WorkerStateRunning   WorkerState = "running"
	WorkerStateQuiet     WorkerState = "quiet"
	WorkerStateTerminate WorkerState = "terminate"
)

// JobContext provides execution-scoped state to job handlers.
type JobContext struct {
	// Job is the full job envelope.
	Job Job

	// Attempt is the current attempt number (1-indexed).
	Attempt int

	// Queue is the queue the job was enqueued on.
	Queue string

	// ctx is the ambient context of the execution. With tracing
	// instrumentation installed it carries the consumer span.
	ctx context.Context
}

// Context returns the context.Context for this job execution.
// The context is cancelled when the worker shuts down.
func (jc JobContext) Context() context.Context {
	return jc.ctx
}

// WithContext returns a copy of jc using ctx. Middleware uses it to pass
// a derived context down the chain.
func (jc JobContext) WithContext(ctx context.Context) JobContext {
	jc.ctx = ctx
	return jc
}

// NewJobContextForTest creates a JobContext suitable for use in tests.
// It initialises the internal context to context.Background().
// This is intended only for testing middleware or handlers outside a Worker.
func NewJobContextForTest(job Job) JobContext {
	return JobContext{
		Job:     job,
		Attempt: job.Attempt,
		Queue:   job.Queue,
		ctx:     context.Background(),
	}
}

// Worker runs jobs. Jobs reach it either through Perform, called by
// push-style adapters, or through Start, which pulls from a Consumer
// adapter with configurable concurrency and graceful shutdown.
type Worker struct {
	adapter Adapter
	config  workerConfig
	retries *Client

	handlers   map[string]HandlerFunc
	handlersMu sync.RWMutex

	middleware *middlewareChain

	state       atomic.Value // WorkerState
	activeCount atomic.Int64
	inflight    sync.WaitGroup

	stopOnce sync.Once
	stopped  chan struct{}
}

// NewWorker creates a worker bound to adapter. Failed jobs are
// re-enqueued through the same adapter.
//
// Example:
//
//	worker := ojs.NewWorker(adapter,
//	    ojs.WithQueues("default", "email"),
//	    ojs.WithConcurrency(10),
//	)
func NewWorker(adapter Adapter, opts ...WorkerOption) *Worker {
	cfg := resolveWorkerConfig(opts)

	w := &Worker{
		adapter: adapter,
		config:  cfg,
		retries: NewClient(adapter,
			WithNotifier(cfg.notifier),
			WithCodec(cfg.codec),
		),
		handlers:   make(map[string]HandlerFunc),
		middleware: newMiddlewareChain(),
		stopped:    make(chan struct{}),
	}
	w.state.Store(WorkerStateRunning)
	return w
}

// Register associates a job type with a handler function.
//
// Example:
//
//	worker.Register("email.send", func(ctx ojs.JobContext) error {
//	    to := ctx.Job.Args["to"].(string)
//	    return mailer.Send(ctx.Context(), to)
//	})
func (w *Worker) Register(jobType string, handler HandlerFunc) {
	w.handlersMu.Lock()
	defer w.handlersMu.Unlock()
	w.handlers[jobType] = handler
}

// Use adds execution middleware to the worker's middleware chain.
//
// Example:
//
//	worker.Use(func(ctx ojs.JobContext, next ojs.HandlerFunc) error {
//	    log.Printf("Processing %s", ctx.Job.Type)
//	    start := time.Now()
//	    err := next(ctx)
//	    log.Printf("Done in %s", time.Since(start))
//	    return err
//	})
func (w *Worker) Use(fn MiddlewareFunc) {
	w.middleware.Add(fmt.Sprintf("middleware-%d", len(w.middleware.middleware)), fn)
}

// UseNamed adds a named execution middleware to the worker's middleware chain.
func (w *Worker) UseNamed(name string, fn MiddlewareFunc) {
	w.middleware.Add(name, fn)
}

// Perform decodes data and runs the job. providerJobID is the adapter's
// identifier for the message, if any. The returned error is the handler's
// error; by the time Perform returns the failure has already been handled
// by retrying or discarding the job. When a retry was enqueued the error
// also matches ErrRetryScheduled.
func (w *Worker) Perform(ctx context.Context, data []byte, providerJobID string) error {
	job, err := w.config.codec.Decode(data)
	if err != nil {
		w.logError(ctx, "discarding undecodable job",
			slog.String("provider_job_id", providerJobID),
			slog.String("error", err.Error()),
		)
		return NonRetryable(err)
	}
	if providerJobID != "" {
		job.ProviderJobID = providerJobID
	}
	return w.perform(ctx, job)
}

// perform runs one attempt of job inside the perform notifications.
// Retry and discard notifications nest inside perform and share its Scope.
func (w *Worker) perform(ctx context.Context, job *Job) error {
	job.Adapter = w.adapter.Name()
	job.Attempt++
	if job.MaxAttempts == 0 {
		job.MaxAttempts = job.retryPolicy().MaxAttempts
	}
	if job.Headers == nil {
		job.Headers = Headers{}
	}

	scope := NewScope(ctx)
	n := w.config.notifier
	_ = n.Instrument(EventPerformStart, &Payload{Job: job, Scope: scope}, nil)

	var retried bool
	err := n.Instrument(EventPerform, &Payload{Job: job, Scope: scope}, func(ctx context.Context) error {
		err := w.execute(ctx, job)
		if err == nil {
			return nil
		}
		var ferr error
		retried, ferr = w.handleFailure(scope, job, err)
		if ferr != nil {
			w.logError(ctx, "failed to schedule retry",
				slog.String("job.id", job.ID),
				slog.String("job.type", job.Type),
				slog.String("error", ferr.Error()),
			)
			return errors.Join(err, ferr)
		}
		return err
	})
	if retried {
		return &retryScheduledError{err: err}
	}
	return err
}

// execute runs the middleware chain and handler for job.
func (w *Worker) execute(ctx context.Context, job *Job) error {
	w.handlersMu.RLock()
	handler, ok := w.handlers[job.Type]
	w.handlersMu.RUnlock()

	if !ok {
		return NonRetryable(fmt.Errorf("%w: %q", ErrNoHandler, job.Type))
	}

	jctx := JobContext{
		Job:     *job,
		Attempt: job.Attempt,
		Queue:   job.Queue,
		ctx:     ctx,
	}
	return w.middleware.then(handler)(jctx)
}

// handleFailure applies the retry policy to a failed attempt: discard
// non-retryable errors, re-enqueue while attempts remain, and give up
// otherwise. The running job and its carrier are left untouched; the
// retry travels as a clone with a fresh carrier. retried reports whether
// the clone was enqueued.
func (w *Worker) handleFailure(scope *Scope, job *Job, cause error) (retried bool, err error) {
	n := w.config.notifier

	if !IsRetryable(cause) {
		w.logWarn(scope.Context(), "discarding job",
			slog.String("job.id", job.ID),
			slog.String("job.type", job.Type),
			slog.String("error", cause.Error()),
		)
		return false, n.Instrument(EventDiscard, &Payload{Job: job, Scope: scope, Error: cause}, nil)
	}

	if job.Attempt >= job.MaxAttempts {
		w.logWarn(scope.Context(), "retries exhausted",
			slog.String("job.id", job.ID),
			slog.String("job.type", job.Type),
			slog.Int("attempt", job.Attempt),
		)
		return false, n.Instrument(EventRetryStopped, &Payload{Job: job, Scope: scope, Error: cause}, nil)
	}

	wait := job.retryPolicy().Backoff(job.Attempt)
	at := time.Now().Add(wait).UTC()
	retry := job.Clone()
	retry.ProviderJobID = ""
	retry.Error = NewJobError(cause)
	retry.ScheduledAt = &at

	p := &Payload{Job: retry, Scope: scope, Error: cause, Wait: wait}
	err = n.Instrument(EventEnqueueRetry, p, func(context.Context) error {
		return w.retries.enqueue(scope, retry)
	})
	return err == nil, err
}

// Start begins fetching and processing jobs from the worker's adapter,
// which must implement Consumer. It blocks until the context is
// cancelled, then waits up to the grace period for active jobs.
//
// Example:
//
//	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM)
//	defer cancel()
//	if err := worker.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
func (w *Worker) Start(ctx context.Context) error {
	consumer, ok := w.adapter.(Consumer)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotConsumer, w.adapter.Name())
	}

	w.handlersMu.RLock()
	if len(w.handlers) == 0 {
		w.handlersMu.RUnlock()
		return fmt.Errorf("ojs: no handlers registered")
	}
	w.handlersMu.RUnlock()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		w.fetchLoop(ctx, consumer)
	}()

	<-ctx.Done()

	// Begin graceful shutdown.
	w.state.Store(WorkerStateTerminate)

	graceDone := make(chan struct{})
	go func() {
		w.inflight.Wait()
		close(graceDone)
	}()

	select {
	case <-graceDone:
	case <-time.After(w.config.gracePeriod):
		w.logWarn(ctx, "grace period expired with jobs still running",
			slog.Int64("active", w.activeCount.Load()),
		)
	}

	w.stopOnce.Do(func() {
		close(w.stopped)
	})

	wg.Wait()
	return nil
}

// Quiet stops fetching new jobs while letting active ones finish.
func (w *Worker) Quiet() {
	w.state.CompareAndSwap(WorkerStateRunning, WorkerStateQuiet)
}

// Resume undoes Quiet.
func (w *Worker) Resume() {
	w.state.CompareAndSwap(WorkerStateQuiet, WorkerStateRunning)
}

// State returns the current worker lifecycle state.
func (w *Worker) State() WorkerState {
	return w.state.Load().(WorkerState)
}

// ActiveJobs returns the number of jobs currently being processed.
func (w *Worker) ActiveJobs() int {
	return int(w.activeCount.Load())
}

// fetchLoop is the main loop that fetches and dispatches jobs.
func (w *Worker) fetchLoop(ctx context.Context, consumer Consumer) {
	sem := make(chan struct{}, w.config.concurrency)

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopped:
			return
		default:
		}

		if w.State() != WorkerStateRunning || w.activeCount.Load() >= int64(w.config.concurrency) {
			if !w.pause(ctx) {
				return
			}
			continue
		}

		count := w.config.concurrency - int(w.activeCount.Load())
		if count <= 0 {
			count = 1
		}
		deliveries, err := consumer.Fetch(ctx, w.config.queues, count)
		if err != nil {
			if ctx.Err() == nil {
				w.logWarn(ctx, "fetch failed", slog.String("error", err.Error()))
			}
			if !w.pause(ctx) {
				return
			}
			continue
		}

		if len(deliveries) == 0 {
			if !w.pause(ctx) {
				return
			}
			continue
		}

		for _, d := range deliveries {
			sem <- struct{}{}
			w.activeCount.Add(1)
			w.inflight.Add(1)

			go func() {
				defer func() {
					<-sem
					w.activeCount.Add(-1)
					w.inflight.Done()
				}()
				w.processDelivery(ctx, d)
			}()
		}
	}
}

// pause waits one poll interval. It returns false if the worker is stopping.
func (w *Worker) pause(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-w.stopped:
		return false
	case <-time.After(w.config.pollInterval):
		return true
	}
}

// processDelivery performs one fetched job and settles it with the adapter.
func (w *Worker) processDelivery(ctx context.Context, d Delivery) {
	err := w.Perform(ctx, d.Data(), d.ProviderJobID())

	// Settle even when shutdown has cancelled ctx.
	settleCtx := context.WithoutCancel(ctx)
	if err == nil {
		if aerr := d.Ack(settleCtx); aerr != nil {
			w.logError(ctx, "ack failed",
				slog.String("provider_job_id", d.ProviderJobID()),
				slog.String("error", aerr.Error()),
			)
		}
		return
	}
	if nerr := d.Nack(settleCtx, err); nerr != nil {
		w.logError(ctx, "nack failed",
			slog.String("provider_job_id", d.ProviderJobID()),
			slog.String("error", nerr.Error()),
		)
	}
}

func (w *Worker) logError(ctx context.Context, msg string, attrs ...slog.Attr) {
	w.log(ctx, slog.LevelError, msg, attrs)
}

func (w *Worker) logWarn(ctx context.Context, msg string, attrs ...slog.Attr) {
	w.log(ctx, slog.LevelWarn, msg, attrs)
}

func (w *Worker) log(ctx context.Context, level slog.Level, msg string, attrs []slog.Attr) {
	if w.config.logger == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	w.config.logger.LogAttrs(ctx, level, msg, attrs...)
}
