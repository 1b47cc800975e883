package inline

import (
	"context"
	"errors"
	"testing"
	"time"

	ojs "github.com/openjobspec/ojs-jobtrace"
	"github.com/openjobspec/ojs-jobtrace/instrumentation/jobtrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func TestEnqueueRunsJob(t *testing.T) {
	adapter := New()
	worker := ojs.NewWorker(adapter)
	adapter.Bind(worker)

	var got string
	worker.Register("email.send", func(ctx ojs.JobContext) error {
		got, _ = ctx.Job.Args["to"].(string)
		return nil
	})

	client := ojs.NewClient(adapter)
	job, err := client.Enqueue(context.Background(), "email.send", ojs.Args{"to": "a@b.com"})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if got != "a@b.com" {
		t.Errorf("handler saw to=%q, want a@b.com", got)
	}
	if job.ProviderJobID != "" {
		t.Errorf("expected no provider job id, got %q", job.ProviderJobID)
	}
	if job.Adapter != Name {
		t.Errorf("adapter = %q, want %q", job.Adapter, Name)
	}
}

func TestEnqueuePassesContext(t *testing.T) {
	type key struct{}
	adapter := New()
	worker := ojs.NewWorker(adapter)
	adapter.Bind(worker)

	var seen any
	worker.Register("ctx.check", func(ctx ojs.JobContext) error {
		seen = ctx.Context().Value(key{})
		return nil
	})

	ctx := context.WithValue(context.Background(), key{}, "request")
	if _, err := ojs.NewClient(adapter).Enqueue(ctx, "ctx.check", nil); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if seen != "request" {
		t.Errorf("expected enqueue context to reach the handler, got %v", seen)
	}
}

func TestEnqueueReturnsJobError(t *testing.T) {
	adapter := New()
	worker := ojs.NewWorker(adapter)
	adapter.Bind(worker)

	boom := errors.New("boom")
	worker.Register("email.send", func(ctx ojs.JobContext) error {
		return ojs.NonRetryable(boom)
	})

	_, err := ojs.NewClient(adapter).Enqueue(context.Background(), "email.send", nil)
	if !errors.Is(err, boom) {
		t.Fatalf("expected job error, got %v", err)
	}
}

func TestEnqueueUnbound(t *testing.T) {
	_, err := ojs.NewClient(New()).Enqueue(context.Background(), "email.send", nil)
	if !errors.Is(err, ojs.ErrNotBound) {
		t.Fatalf("expected ErrNotBound, got %v", err)
	}
}

func TestEnqueueScheduled(t *testing.T) {
	adapter := New()
	adapter.Bind(ojs.NewWorker(adapter))

	_, err := ojs.NewClient(adapter).Enqueue(context.Background(), "email.send", nil,
		ojs.WithDelay(time.Minute))
	if !errors.Is(err, ojs.ErrSchedulingUnsupported) {
		t.Fatalf("expected ErrSchedulingUnsupported, got %v", err)
	}
}

func TestEnqueueTracedPerformIsLinkedRoot(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	notifier := ojs.NewNotifier()
	jobtrace.Instrument(notifier, jobtrace.WithTracerProvider(tp))

	adapter := New()
	worker := ojs.NewWorker(adapter, ojs.WithWorkerNotifier(notifier))
	adapter.Bind(worker)

	var handlerSpan trace.SpanContext
	worker.Register("email.send", func(ctx ojs.JobContext) error {
		handlerSpan = trace.SpanContextFromContext(ctx.Context())
		return nil
	})

	client := ojs.NewClient(adapter, ojs.WithNotifier(notifier))
	if _, err := client.Enqueue(context.Background(), "email.send", ojs.Args{"to": "a@b.com"}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	spans := map[string]tracetest.SpanStub{}
	for _, s := range exporter.GetSpans() {
		spans[s.Name] = s
	}
	publish, ok := spans["default publish"]
	if !ok {
		t.Fatalf("missing publish span, got %v", spans)
	}
	process, ok := spans["default process"]
	if !ok {
		t.Fatalf("missing process span, got %v", spans)
	}

	if publish.SpanKind != trace.SpanKindProducer || process.SpanKind != trace.SpanKindConsumer {
		t.Errorf("kinds = %v/%v, want producer/consumer", publish.SpanKind, process.SpanKind)
	}
	if process.Parent.IsValid() {
		t.Errorf("expected process span to be a root, parent %v", process.Parent.SpanID())
	}
	if process.SpanContext.TraceID() == publish.SpanContext.TraceID() {
		t.Error("expected process span in a separate trace from publish")
	}
	if len(process.Links) != 1 || process.Links[0].SpanContext.SpanID() != publish.SpanContext.SpanID() {
		t.Errorf("expected one link to the publish span, got %+v", process.Links)
	}
	if handlerSpan.SpanID() != process.SpanContext.SpanID() {
		t.Errorf("expected handler to run under the process span")
	}
}
