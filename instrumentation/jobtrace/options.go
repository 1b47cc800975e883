package jobtrace

import (
	ojs "github.com/openjobspec/ojs-jobtrace"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// SpanNaming selects what enqueue and perform spans are named after.
type SpanNaming int

const (
	// SpanNameQueue names spans "<queue> publish" and "<queue> process".
	SpanNameQueue SpanNaming = iota
	// SpanNameJobType names spans "<job type> publish" and "<job type> process".
	SpanNameJobType
)

// Option configures a Subscriber.
type Option func(*config)

type config struct {
	tracerProvider trace.TracerProvider
	propagator     propagation.TextMapPropagator
	errorHandler   ojs.ErrorHandler
	attributes     func(*ojs.Job) []attribute.KeyValue
	spanNaming     SpanNaming
}

// WithTracerProvider sets a custom TracerProvider. Defaults to the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *config) { c.tracerProvider = tp }
}

// WithPropagator sets the propagator used to write and read job carriers.
// Defaults to the global propagator.
func WithPropagator(p propagation.TextMapPropagator) Option {
	return func(c *config) { c.propagator = p }
}

// WithErrorHandler sets where instrumentation failures are reported.
// Defaults to ojs.GlobalErrorHandler.
func WithErrorHandler(h ojs.ErrorHandler) Option {
	return func(c *config) { c.errorHandler = h }
}

// WithAttributes adds attributes computed from the job to every span.
func WithAttributes(fn func(*ojs.Job) []attribute.KeyValue) Option {
	return func(c *config) { c.attributes = fn }
}

// WithSpanNaming selects how enqueue and perform spans are named.
func WithSpanNaming(n SpanNaming) Option {
	return func(c *config) { c.spanNaming = n }
}

func newConfig(opts []Option) config {
	var cfg config
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.tracerProvider == nil {
		cfg.tracerProvider = otel.GetTracerProvider()
	}
	if cfg.propagator == nil {
		cfg.propagator = otel.GetTextMapPropagator()
	}
	if cfg.errorHandler == nil {
		cfg.errorHandler = ojs.GlobalErrorHandler
	}
	return cfg
}
