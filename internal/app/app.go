// Package app assembles the runtime shared by the ojs binaries: logger,
// tracer provider, Redis adapter, notifier and metrics.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	ojs "github.com/openjobspec/ojs-jobtrace"
	"github.com/openjobspec/ojs-jobtrace/adapter/redisq"
	"github.com/openjobspec/ojs-jobtrace/instrumentation/jobtrace"
	"github.com/openjobspec/ojs-jobtrace/internal/config"
	"github.com/openjobspec/ojs-jobtrace/internal/logging"
	"github.com/openjobspec/ojs-jobtrace/internal/telemetry"
	"github.com/openjobspec/ojs-jobtrace/middleware"
	"github.com/openjobspec/ojs-jobtrace/middleware/promrecorder"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
)

// Runtime holds the long-lived dependencies of a binary.
type Runtime struct {
	Config   *config.Config
	Logger   *zap.Logger
	Redis    redis.UniversalClient
	Adapter  *redisq.Adapter
	Notifier *ojs.Notifier
	Tracing  *sdktrace.TracerProvider
	Registry *prometheus.Registry
	Metrics  *promrecorder.Recorder

	errorHandler ojs.ErrorHandler
	closers      []func(context.Context) error
}

// Options adjusts New.
type Options struct {
	// Logger replaces the logger built from the logging config.
	Logger *zap.Logger
	// Redis replaces the client built from the redis config.
	Redis redis.UniversalClient
	// TraceWriter receives spans from the stdout exporter.
	TraceWriter io.Writer
}

// New builds a Runtime from cfg. The Redis connection is checked before
// New returns.
func New(ctx context.Context, cfg *config.Config, opts Options) (*Runtime, error) {
	rt := &Runtime{Config: cfg, Logger: opts.Logger}
	if rt.Logger == nil {
		logger, err := logging.New(logging.Config{
			Level:       cfg.Logging.Level,
			Development: cfg.Logging.Development,
		})
		if err != nil {
			return nil, fmt.Errorf("app: build logger: %w", err)
		}
		rt.Logger = logger
	}
	rt.errorHandler = logging.ErrorHandler(rt.Logger)

	tp, shutdown, err := telemetry.Setup(ctx, cfg.Tracing, telemetry.Options{
		Writer:       opts.TraceWriter,
		ErrorHandler: rt.errorHandler,
	})
	if err != nil {
		return nil, err
	}
	rt.Tracing = tp
	rt.closers = append(rt.closers, shutdown)

	rt.Redis = opts.Redis
	if rt.Redis == nil {
		rt.Redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		rt.closers = append(rt.closers, func(context.Context) error { return rt.Redis.Close() })
	}
	if err := rt.Redis.Ping(ctx).Err(); err != nil {
		_ = rt.Close(ctx)
		return nil, fmt.Errorf("app: connect to redis at %s: %w", cfg.Redis.Addr, err)
	}
	rt.Adapter = redisq.New(rt.Redis,
		redisq.WithPrefix(cfg.Redis.Prefix),
		redisq.WithGroup(cfg.Redis.Group),
	)

	rt.Registry = prometheus.NewRegistry()
	rt.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	rt.Metrics = promrecorder.New(rt.Registry)

	rt.Notifier = ojs.NewNotifier()
	jobtrace.Instrument(rt.Notifier,
		jobtrace.WithTracerProvider(tp),
		jobtrace.WithPropagator(telemetry.Propagator()),
		jobtrace.WithErrorHandler(rt.errorHandler),
	)
	rt.Notifier.Subscribe(rt.Metrics, ojs.Events...)

	return rt, nil
}

// ErrorHandler returns the handler that logs instrumentation errors.
func (rt *Runtime) ErrorHandler() ojs.ErrorHandler {
	return rt.errorHandler
}

// Client returns a traced client for the Redis adapter.
func (rt *Runtime) Client() *ojs.Client {
	return ojs.NewClient(rt.Adapter,
		ojs.WithNotifier(rt.Notifier),
		ojs.WithErrorHandler(rt.errorHandler),
	)
}

// Worker returns a traced worker for the Redis adapter with recovery,
// logging and metrics middleware installed. opts are applied after the
// configured settings.
func (rt *Runtime) Worker(opts ...ojs.WorkerOption) *ojs.Worker {
	logger := logging.Slog(rt.Logger)
	wc := rt.Config.Worker
	base := []ojs.WorkerOption{
		ojs.WithQueues(wc.Queues...),
		ojs.WithConcurrency(wc.Concurrency),
		ojs.WithGracePeriod(wc.GracePeriod),
		ojs.WithPollInterval(wc.PollInterval),
		ojs.WithLogger(logger),
		ojs.WithWorkerNotifier(rt.Notifier),
		ojs.WithWorkerErrorHandler(rt.errorHandler),
	}
	w := ojs.NewWorker(rt.Adapter, append(base, opts...)...)
	w.UseNamed("recovery", middleware.Recovery(logger))
	w.UseNamed("logging", middleware.Logging(logger))
	w.UseNamed("metrics", middleware.Metrics(rt.Metrics))
	return w
}

// MetricsHandler serves the Prometheus registry.
func (rt *Runtime) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(rt.Registry, promhttp.HandlerOpts{Registry: rt.Registry})
}

// Health pings Redis.
func (rt *Runtime) Health(ctx context.Context) error {
	return rt.Redis.Ping(ctx).Err()
}

// Close flushes spans and releases connections in reverse order of
// creation.
func (rt *Runtime) Close(ctx context.Context) error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	rt.closers = nil
	_ = rt.Logger.Sync()
	return errors.Join(errs...)
}
