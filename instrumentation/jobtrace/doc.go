// Package jobtrace traces background jobs with OpenTelemetry.
//
// A [Subscriber] listens to the lifecycle notifications of an
// [ojs.Notifier] and opens a span for each of them:
//
//   - enqueue.ojs and enqueue_at.ojs get a producer span named
//     "<queue> publish". While it is current, the trace context is
//     injected into the job's Headers carrier, which travels with the job.
//   - perform.ojs gets a consumer span named "<queue> process". It is a
//     new root span: the trace context extracted from the carrier is
//     attached as a link, not as a parent, so processing time is never
//     charged to whatever was current when the job was enqueued.
//   - Every other notification gets an internal span named after it,
//     child of the current span, with no propagation.
//
// Spans are made current through the payload's [ojs.Scope], so handler
// code sees the consumer span in JobContext.Context(). Finish records the
// payload error, ends the span and detaches in reverse order of attach.
//
// Instrumentation never affects the job it observes: failures and panics
// inside the subscriber go to the configured error handler and are
// otherwise swallowed.
//
// Spans are ended only when the notifier delivers Finish. If a process
// dies mid-job, or the host never calls Finish, the span is never ended
// and its contexts are never detached. Nothing here tries to recover
// from that.
//
// Usage:
//
//	notifier := ojs.NewNotifier()
//	jobtrace.Instrument(notifier,
//	    jobtrace.WithTracerProvider(tp),
//	    jobtrace.WithErrorHandler(ojs.ErrorHandlerFunc(func(err error) {
//	        logger.Warn("instrumentation error", "error", err)
//	    })),
//	)
//	client := ojs.NewClient(adapter, ojs.WithNotifier(notifier))
//	worker := ojs.NewWorker(adapter, ojs.WithWorkerNotifier(notifier))
package jobtrace
