package otelmetrics

import (
	"context"
	"time"

	ojs "github.com/openjobspec/ojs-jobtrace"
	"github.com/openjobspec/ojs-jobtrace/middleware"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/openjobspec/ojs-jobtrace/middleware/otelmetrics"

// Option configures a Recorder.
type Option func(*config)

type config struct {
	meterProvider metric.MeterProvider
}

// WithMeterProvider sets a custom MeterProvider. Defaults to the global provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(c *config) { c.meterProvider = mp }
}

// Recorder records job metrics as OpenTelemetry instruments:
//   - ojs.job.started (counter): incremented when a job begins
//   - ojs.job.completed (counter): incremented on success
//   - ojs.job.failed (counter): incremented on failure, with ojs.job.retryable
//   - ojs.job.duration (histogram, milliseconds): execution duration
//   - ojs.job.events (counter): lifecycle notifications, by ojs.event
type Recorder struct {
	started   metric.Int64Counter
	completed metric.Int64Counter
	failed    metric.Int64Counter
	duration  metric.Float64Histogram
	events    metric.Int64Counter
}

var (
	_ middleware.MetricsRecorder = (*Recorder)(nil)
	_ ojs.Subscriber             = (*Recorder)(nil)
)

// NewRecorder creates a Recorder.
func NewRecorder(opts ...Option) *Recorder {
	cfg := config{}
	for _, opt := range opts {
		opt(&cfg)
	}
	mp := cfg.meterProvider
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(instrumentationName)

	r := &Recorder{}
	r.started, _ = meter.Int64Counter("ojs.job.started",
		metric.WithDescription("Number of jobs started"),
	)
	r.completed, _ = meter.Int64Counter("ojs.job.completed",
		metric.WithDescription("Number of jobs completed successfully"),
	)
	r.failed, _ = meter.Int64Counter("ojs.job.failed",
		metric.WithDescription("Number of jobs that failed"),
	)
	r.duration, _ = meter.Float64Histogram("ojs.job.duration",
		metric.WithDescription("Job execution duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	r.events, _ = meter.Int64Counter("ojs.job.events",
		metric.WithDescription("Number of job lifecycle notifications"),
	)
	return r
}

// Metrics returns worker middleware backed by a new Recorder.
func Metrics(opts ...Option) ojs.MiddlewareFunc {
	return middleware.Metrics(NewRecorder(opts...))
}

func labelAttrs(l middleware.JobLabels, extra ...attribute.KeyValue) metric.MeasurementOption {
	attrs := []attribute.KeyValue{
		attribute.String("ojs.job.type", l.Type),
		attribute.String("ojs.job.queue", l.Queue),
		attribute.String("ojs.job.adapter", l.Adapter),
	}
	return metric.WithAttributes(append(attrs, extra...)...)
}

func (r *Recorder) JobStarted(l middleware.JobLabels) {
	r.started.Add(context.Background(), 1, labelAttrs(l))
}

func (r *Recorder) JobCompleted(l middleware.JobLabels, d time.Duration) {
	ctx := context.Background()
	r.duration.Record(ctx, ms(d), labelAttrs(l))
	r.completed.Add(ctx, 1, labelAttrs(l))
}

func (r *Recorder) JobFailed(l middleware.JobLabels, d time.Duration, retryable bool) {
	ctx := context.Background()
	r.duration.Record(ctx, ms(d), labelAttrs(l))
	r.failed.Add(ctx, 1, labelAttrs(l, attribute.Bool("ojs.job.retryable", retryable)))
}

// Start does nothing; notifications are counted when they finish.
func (r *Recorder) Start(name, id string, p *ojs.Payload) {}

// Finish counts the notification.
func (r *Recorder) Finish(name, id string, p *ojs.Payload) {
	if p.Job == nil {
		return
	}
	l := middleware.JobLabels{Type: p.Job.Type, Queue: p.Job.Queue, Adapter: p.Job.Adapter}
	r.events.Add(context.Background(), 1, labelAttrs(l,
		attribute.String("ojs.event", name),
		attribute.Bool("ojs.failed", p.Error != nil),
	))
}

func ms(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000.0
}
