package ojs

import (
	"bytes"
	"log/slog"
	"testing"
	"time"
)

func TestEnqueueOptions(t *testing.T) {
	cfg := resolveEnqueueConfig([]EnqueueOption{
		WithQueue("email"),
		WithPriority(10),
		WithTimeout(30 * time.Second),
		WithTags("onboarding", "email"),
		WithTags("priority"),
		WithMeta(map[string]any{"source": "api"}),
		WithMeta(map[string]any{"version": "2", "source": "override"}),
		WithRetry(RetryPolicy{MaxAttempts: 7}),
	})

	if cfg.queue != "email" {
		t.Errorf("expected queue=email, got %s", cfg.queue)
	}
	if cfg.priority != 10 {
		t.Errorf("expected priority=10, got %d", cfg.priority)
	}
	if cfg.timeoutMS != 30000 {
		t.Errorf("expected timeoutMS=30000, got %d", cfg.timeoutMS)
	}
	if len(cfg.tags) != 3 || cfg.tags[2] != "priority" {
		t.Errorf("unexpected tags %v", cfg.tags)
	}
	if cfg.meta["source"] != "override" || cfg.meta["version"] != "2" {
		t.Errorf("unexpected meta %v", cfg.meta)
	}
	if cfg.retry == nil || cfg.retry.MaxAttempts != 7 {
		t.Errorf("unexpected retry %+v", cfg.retry)
	}
}

func TestWithDelay(t *testing.T) {
	before := time.Now()
	cfg := resolveEnqueueConfig([]EnqueueOption{WithDelay(5 * time.Minute)})
	after := time.Now()

	if cfg.delayUntil == nil {
		t.Fatal("expected delayUntil to be set")
	}
	if cfg.delayUntil.Before(before.Add(5*time.Minute)) || cfg.delayUntil.After(after.Add(5*time.Minute)) {
		t.Errorf("delayUntil %v is not 5 minutes from now", cfg.delayUntil)
	}
}

func TestWithScheduledAt(t *testing.T) {
	scheduled := time.Date(2026, 6, 15, 10, 0, 0, 0, time.UTC)
	cfg := resolveEnqueueConfig([]EnqueueOption{WithScheduledAt(scheduled)})
	if cfg.delayUntil == nil || !cfg.delayUntil.Equal(scheduled) {
		t.Errorf("expected delayUntil=%v, got %v", scheduled, cfg.delayUntil)
	}
}

func TestResolveEnqueueConfigDefaults(t *testing.T) {
	cfg := resolveEnqueueConfig(nil)
	if cfg.queue != "default" {
		t.Errorf("expected default queue, got %s", cfg.queue)
	}
	if cfg.priority != 0 || cfg.timeoutMS != 0 {
		t.Errorf("expected zero priority and timeout, got %d / %d", cfg.priority, cfg.timeoutMS)
	}
	if cfg.delayUntil != nil || cfg.retry != nil || cfg.tags != nil || cfg.meta != nil {
		t.Error("expected unset optional fields")
	}
}

func TestNewJobDefaults(t *testing.T) {
	job := NewJob("email.send", nil, WithRetry(RetryPolicy{MaxAttempts: 5}))
	if job.ID == "" || job.Queue != "default" {
		t.Errorf("unexpected job %+v", job)
	}
	if job.Headers == nil || len(job.Headers) != 0 {
		t.Errorf("expected empty non-nil carrier, got %#v", job.Headers)
	}
	if job.MaxAttempts != 5 {
		t.Errorf("expected max attempts from policy, got %d", job.MaxAttempts)
	}
	if job.Scheduled() {
		t.Error("expected unscheduled job")
	}
	if !NewJob("email.send", nil, WithDelay(time.Minute)).Scheduled() {
		t.Error("expected delayed job to be scheduled")
	}
}

func TestClientOptions(t *testing.T) {
	n := NewNotifier()
	sink := &errorSink{}
	cfg := resolveClientConfig([]ClientOption{WithNotifier(n), WithErrorHandler(sink)})
	if cfg.notifier != n {
		t.Error("expected notifier to be set")
	}
	if cfg.codec == nil || cfg.codec.errorHandler != sink {
		t.Error("expected codec to report to the configured error handler")
	}

	codec := NewCodec(nil, nil)
	cfg = resolveClientConfig([]ClientOption{WithCodec(codec)})
	if cfg.codec != codec {
		t.Error("expected explicit codec to be used")
	}
}

func TestWorkerOptions(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil))
	n := NewNotifier()
	sink := &errorSink{}
	cfg := resolveWorkerConfig([]WorkerOption{
		WithQueues("critical", "default"),
		WithConcurrency(0),
		WithGracePeriod(time.Second),
		WithPollInterval(time.Millisecond),
		WithLogger(logger),
		WithWorkerNotifier(n),
		WithWorkerErrorHandler(sink),
	})
	if len(cfg.queues) != 2 || cfg.queues[0] != "critical" {
		t.Errorf("unexpected queues %v", cfg.queues)
	}
	if cfg.concurrency != 1 {
		t.Errorf("expected concurrency clamped to 1, got %d", cfg.concurrency)
	}
	if cfg.logger != logger || cfg.notifier != n {
		t.Error("expected logger and notifier to be set")
	}
	if cfg.codec.errorHandler != sink {
		t.Error("expected codec to report to the configured error handler")
	}
}

func TestNewJobContextForTest(t *testing.T) {
	jc := NewJobContextForTest(Job{ID: "test-ctx-1", Type: "email.send", Queue: "email", Attempt: 2})
	if jc.Job.ID != "test-ctx-1" || jc.Attempt != 2 || jc.Queue != "email" {
		t.Errorf("unexpected job context %+v", jc)
	}
	if jc.Context() == nil {
		t.Error("expected non-nil context")
	}
}
