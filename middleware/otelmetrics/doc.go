// Package otelmetrics records job metrics through the OpenTelemetry
// metrics API.
//
// A [Recorder] serves two roles. As a middleware.MetricsRecorder it
// measures job executions:
//
//	rec := otelmetrics.NewRecorder(otelmetrics.WithMeterProvider(mp))
//	worker.UseNamed("metrics", middleware.Metrics(rec))
//
// As an ojs.Subscriber it counts lifecycle notifications such as
// enqueues, retries and discards:
//
//	notifier.Subscribe(rec, ojs.Events...)
package otelmetrics
