package redisq

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	ojs "github.com/openjobspec/ojs-jobtrace"
	"github.com/redis/go-redis/v9"
)

func newTestAdapter(t *testing.T, opts ...Option) (*Adapter, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return New(rdb, append([]Option{WithConsumer("test")}, opts...)...), rdb
}

func TestEnqueueAddsStreamEntry(t *testing.T) {
	a, rdb := newTestAdapter(t)
	ctx := context.Background()

	job, err := ojs.NewClient(a).Enqueue(ctx, "email.send", ojs.Args{"to": "a@b.com"}, ojs.WithQueue("email"))
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if job.ProviderJobID == "" {
		t.Fatal("expected stream entry id as provider job id")
	}

	entries, err := rdb.XRange(ctx, a.StreamKey("email"), "-", "+").Result()
	if err != nil {
		t.Fatalf("XRange: %v", err)
	}
	if len(entries) != 1 || entries[0].ID != job.ProviderJobID {
		t.Fatalf("unexpected stream entries: %v", entries)
	}
}

func TestFetchDecodesEnvelopeWithHeaders(t *testing.T) {
	a, _ := newTestAdapter(t)
	ctx := context.Background()

	job := ojs.NewJob("email.send", ojs.Args{"to": "a@b.com"})
	job.Headers["traceparent"] = "00-0af7651916cd43dd8448eb211c80319c-b7ad6b7169203331-01"
	if err := ojs.NewClient(a).EnqueueJob(ctx, job); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}

	got, err := a.Fetch(ctx, []string{"default"}, 10)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 delivery, got %d", len(got))
	}
	decoded, err := ojs.DefaultCodec.Decode(got[0].Data())
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if decoded.ID != job.ID || decoded.Headers["traceparent"] != job.Headers["traceparent"] {
		t.Errorf("decoded job %s headers %v", decoded.ID, decoded.Headers)
	}

	// Delivered entries are not handed out again.
	again, err := a.Fetch(ctx, []string{"default"}, 10)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(again) != 0 {
		t.Errorf("expected no new deliveries, got %d", len(again))
	}
}

func TestFetchHonoursQueueOrderAndMax(t *testing.T) {
	a, _ := newTestAdapter(t)
	ctx := context.Background()
	client := ojs.NewClient(a)

	for _, q := range []string{"low", "high", "high", "low"} {
		if _, err := client.Enqueue(ctx, "report.build", nil, ojs.WithQueue(q)); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}

	got, err := a.Fetch(ctx, []string{"high", "low"}, 3)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 deliveries, got %d", len(got))
	}
	queues := make([]string, len(got))
	for i, d := range got {
		queues[i] = d.(*delivery).queue
	}
	if queues[0] != "high" || queues[1] != "high" || queues[2] != "low" {
		t.Errorf("queue order = %v", queues)
	}
}

func TestAckAndNack(t *testing.T) {
	a, rdb := newTestAdapter(t)
	ctx := context.Background()
	client := ojs.NewClient(a)
	for i := 0; i < 2; i++ {
		if _, err := client.Enqueue(ctx, "email.send", nil); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}

	got, _ := a.Fetch(ctx, []string{"default"}, 2)
	if n, _ := a.Pending(ctx, "default"); n != 2 {
		t.Fatalf("pending = %d, want 2", n)
	}

	if err := got[0].Ack(ctx); err != nil {
		t.Fatalf("Ack: %v", err)
	}
	if err := got[1].Nack(ctx, errors.New("boom")); err != nil {
		t.Fatalf("Nack: %v", err)
	}
	if n, _ := a.Pending(ctx, "default"); n != 0 {
		t.Errorf("pending = %d, want 0", n)
	}

	dead, err := rdb.XRange(ctx, a.DeadKey(), "-", "+").Result()
	if err != nil {
		t.Fatalf("XRange: %v", err)
	}
	if len(dead) != 1 || dead[0].Values[fieldError] != "boom" || dead[0].Values[fieldQueue] != "default" {
		t.Errorf("unexpected dead entries: %v", dead)
	}
}

func TestScheduledJobsArePromoted(t *testing.T) {
	a, rdb := newTestAdapter(t)
	ctx := context.Background()

	job, err := ojs.NewClient(a).Enqueue(ctx, "report.build", nil, ojs.WithDelay(time.Minute))
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if job.ProviderJobID != "" {
		t.Errorf("expected no provider id for scheduled job, got %q", job.ProviderJobID)
	}
	if n, _ := rdb.ZCard(ctx, a.ScheduledKey()).Result(); n != 1 {
		t.Fatalf("scheduled = %d, want 1", n)
	}

	moved, err := a.promote(ctx, time.Now())
	if err != nil || moved != 0 {
		t.Fatalf("promote before due: moved=%d err=%v", moved, err)
	}

	moved, err = a.promote(ctx, time.Now().Add(2*time.Minute))
	if err != nil || moved != 1 {
		t.Fatalf("promote after due: moved=%d err=%v", moved, err)
	}
	if n, _ := rdb.ZCard(ctx, a.ScheduledKey()).Result(); n != 0 {
		t.Errorf("scheduled = %d, want 0", n)
	}

	got, _ := a.Fetch(ctx, []string{"default"}, 1)
	if len(got) != 1 {
		t.Fatalf("expected promoted job to be fetchable")
	}
	decoded, _ := ojs.DefaultCodec.Decode(got[0].Data())
	if decoded.ID != job.ID {
		t.Errorf("promoted job id = %s, want %s", decoded.ID, job.ID)
	}
}

func TestPromoteDropsCorruptEntries(t *testing.T) {
	a, rdb := newTestAdapter(t)
	ctx := context.Background()
	rdb.ZAdd(ctx, a.ScheduledKey(), redis.Z{Score: 1, Member: "not json"})

	moved, err := a.Promote(ctx)
	if err == nil || moved != 0 {
		t.Fatalf("expected corrupt entry error, moved=%d err=%v", moved, err)
	}
	if n, _ := rdb.ZCard(ctx, a.ScheduledKey()).Result(); n != 0 {
		t.Errorf("expected corrupt entry to be dropped")
	}
}

// failCommands makes the named commands fail with errBackend.
type failCommands map[string]bool

var errBackend = errors.New("backend unavailable")

func (f failCommands) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		return next(ctx, network, addr)
	}
}

func (f failCommands) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		if f[cmd.Name()] {
			return errBackend
		}
		return next(ctx, cmd)
	}
}

func (f failCommands) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return next
}

func TestPromoteFailureKeepsOrReportsJob(t *testing.T) {
	tests := []struct {
		name          string
		fail          failCommands
		wantScheduled int64
		wantLost      bool
	}{
		{"stream write fails", failCommands{"xadd": true}, 1, false},
		{"put back fails too", failCommands{"xadd": true, "zadd": true}, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, rdb := newTestAdapter(t)
			ctx := context.Background()

			job, err := ojs.NewClient(a).Enqueue(ctx, "report.build", nil, ojs.WithDelay(time.Minute))
			if err != nil {
				t.Fatalf("Enqueue: %v", err)
			}
			rdb.AddHook(tt.fail)

			moved, err := a.promote(ctx, time.Now().Add(2*time.Minute))
			if moved != 0 || !errors.Is(err, errBackend) {
				t.Fatalf("expected promote error, moved=%d err=%v", moved, err)
			}
			if !strings.Contains(err.Error(), job.ID) {
				t.Errorf("expected error to name job %s, got %v", job.ID, err)
			}
			if lost := strings.Contains(err.Error(), "lost"); lost != tt.wantLost {
				t.Errorf("lost reported = %v, want %v: %v", lost, tt.wantLost, err)
			}
			if n, _ := rdb.ZCard(ctx, a.ScheduledKey()).Result(); n != tt.wantScheduled {
				t.Errorf("scheduled = %d, want %d", n, tt.wantScheduled)
			}
		})
	}
}

func TestWorkerRoundTrip(t *testing.T) {
	a, _ := newTestAdapter(t, WithPrefix("rt"))
	worker := ojs.NewWorker(a,
		ojs.WithQueues("default"),
		ojs.WithPollInterval(10*time.Millisecond),
		ojs.WithGracePeriod(time.Second),
	)

	var done atomic.Int32
	worker.Register("email.send", func(ctx ojs.JobContext) error {
		if ctx.Job.ProviderJobID == "" {
			t.Error("expected provider job id on the job")
		}
		done.Add(1)
		return nil
	})

	client := ojs.NewClient(a)
	for i := 0; i < 3; i++ {
		if _, err := client.Enqueue(context.Background(), "email.send", nil); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- worker.Start(ctx) }()

	deadline := time.Now().Add(3 * time.Second)
	for done.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	if err := <-errCh; err != nil {
		t.Fatalf("Start: %v", err)
	}
	if done.Load() != 3 {
		t.Fatalf("processed %d jobs, want 3", done.Load())
	}
	if n, _ := a.Pending(context.Background(), "default"); n != 0 {
		t.Errorf("pending = %d, want 0", n)
	}
}
