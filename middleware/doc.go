// Package middleware provides pre-built middleware for OJS workers.
//
// All middleware in this package follows the OJS MiddlewareFunc signature
// and can be added to a worker via [ojs.Worker.Use] or [ojs.Worker.UseNamed].
//
// # Logging
//
// The [Logging] middleware emits structured log entries via [log/slog] for
// every job execution. When the job runs inside a perform span, entries
// carry its trace_id and span_id so logs line up with traces:
//
//	worker.UseNamed("logging", middleware.Logging(slog.Default()))
//
// # Recovery
//
// The [Recovery] middleware catches panics in downstream handlers and converts
// them to errors wrapping [ErrPanic], preventing a single job from crashing
// the worker:
//
//	worker.UseNamed("recovery", middleware.Recovery(slog.Default()))
//
// # Metrics
//
// The [Metrics] middleware reports job execution metrics via the [MetricsRecorder]
// interface. The promrecorder and otelmetrics packages provide recorders
// for Prometheus and OpenTelemetry:
//
//	worker.UseNamed("metrics", middleware.Metrics(promrecorder.New(prometheus.DefaultRegisterer)))
package middleware
