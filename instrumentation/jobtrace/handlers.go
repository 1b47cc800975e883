package jobtrace

import (
	ojs "github.com/openjobspec/ojs-jobtrace"
	"go.opentelemetry.io/otel/trace"
)

// startEnqueue opens a producer span as a child of the current context,
// makes it current and injects it into the job's carrier.
func (s *Subscriber) startEnqueue(p *ojs.Payload, st *spanState) error {
	job := p.Job
	attrs := s.jobAttributes(job)

	ctx, span := s.tracer.Start(p.Scope.Context(), s.spanName(job, "publish"),
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(attrs...),
	)
	st.span = span
	st.tokens = append(st.tokens, p.Scope.Attach(ctx))

	if job.Headers == nil {
		job.Headers = ojs.Headers{}
	}
	// Inject from the scope so the carrier encodes the producer span.
	s.cfg.propagator.Inject(p.Scope.Context(), job.Headers)
	return nil
}

// startPerform opens a consumer span as a new root. Trace context found
// in the job's carrier is attached and linked, never used as parent.
func (s *Subscriber) startPerform(p *ojs.Payload, st *spanState) error {
	job := p.Job
	attrs := s.jobAttributes(job)

	carrier := job.Headers
	if carrier == nil {
		carrier = ojs.Headers{}
	}
	// Drop the local span first so only the carrier can yield a link.
	base := trace.ContextWithSpanContext(p.Scope.Context(), trace.SpanContext{})
	remote := s.cfg.propagator.Extract(base, carrier)

	var links []trace.Link
	if sc := trace.SpanContextFromContext(remote); sc.IsValid() {
		st.tokens = append(st.tokens, p.Scope.Attach(remote))
		links = append(links, trace.Link{SpanContext: sc})
	}

	ctx, span := s.tracer.Start(p.Scope.Context(), s.spanName(job, "process"),
		trace.WithNewRoot(),
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(attrs...),
		trace.WithLinks(links...),
	)
	st.span = span
	st.tokens = append(st.tokens, p.Scope.Attach(ctx))
	return nil
}

// startDefault opens an internal span named after the notification as a
// child of the current context. The carrier is not touched.
func (s *Subscriber) startDefault(name string, p *ojs.Payload, st *spanState) error {
	attrs := s.jobAttributes(p.Job)

	ctx, span := s.tracer.Start(p.Scope.Context(), name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
	)
	st.span = span
	st.tokens = append(st.tokens, p.Scope.Attach(ctx))
	return nil
}

func (s *Subscriber) spanName(job *ojs.Job, operation string) string {
	subject := job.Queue
	if s.cfg.spanNaming == SpanNameJobType {
		subject = job.Type
	}
	return subject + " " + operation
}
