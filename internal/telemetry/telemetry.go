// Package telemetry installs the process-wide OpenTelemetry tracer
// provider and propagator for the ojs binaries.
package telemetry

import (
	"context"
	"fmt"
	"io"

	"github.com/openjobspec/ojs-jobtrace/internal/config"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Options adjusts Setup.
type Options struct {
	// Writer receives spans from the stdout exporter. Default: os.Stdout.
	Writer io.Writer
	// ErrorHandler becomes the global otel error handler when set.
	ErrorHandler otel.ErrorHandler
	// Syncer exports spans synchronously instead of batching. Tests use it.
	Syncer bool
}

// Setup builds a tracer provider from cfg and installs it, together with
// a W3C trace context and baggage propagator, as the global default. The
// returned function flushes and stops the provider.
func Setup(ctx context.Context, cfg config.TracingConfig, opts Options) (*sdktrace.TracerProvider, func(context.Context) error, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceName(cfg.ServiceName)),
		resource.WithTelemetrySDK(),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("telemetry: build resource: %w", err)
	}

	tpOpts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
	}

	switch cfg.Exporter {
	case config.ExporterStdout:
		exOpts := []stdouttrace.Option{}
		if opts.Writer != nil {
			exOpts = append(exOpts, stdouttrace.WithWriter(opts.Writer))
		}
		exporter, err := stdouttrace.New(exOpts...)
		if err != nil {
			return nil, nil, fmt.Errorf("telemetry: create stdout exporter: %w", err)
		}
		if opts.Syncer {
			tpOpts = append(tpOpts, sdktrace.WithSyncer(exporter))
		} else {
			tpOpts = append(tpOpts, sdktrace.WithBatcher(exporter))
		}
	case config.ExporterNone:
	default:
		return nil, nil, fmt.Errorf("telemetry: unknown exporter %q", cfg.Exporter)
	}

	tp := sdktrace.NewTracerProvider(tpOpts...)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(Propagator())
	if opts.ErrorHandler != nil {
		otel.SetErrorHandler(opts.ErrorHandler)
	}
	return tp, tp.Shutdown, nil
}

// Propagator returns the propagator installed by Setup.
func Propagator() propagation.TextMapPropagator {
	return propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	)
}
