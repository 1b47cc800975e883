package promrecorder

import (
	"context"
	"errors"
	"testing"
	"time"

	ojs "github.com/openjobspec/ojs-jobtrace"
	"github.com/openjobspec/ojs-jobtrace/middleware"
	"github.com/openjobspec/ojs-jobtrace/ojstesting"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorderExecutions(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec := New(reg)
	l := middleware.JobLabels{Type: "email.send", Queue: "default", Adapter: "redis"}

	rec.JobStarted(l)
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.JobsActive.WithLabelValues("email.send", "default", "redis")))

	rec.JobCompleted(l, 20*time.Millisecond)
	rec.JobStarted(l)
	rec.JobFailed(l, time.Millisecond, true)
	rec.JobStarted(l)
	rec.JobFailed(l, time.Millisecond, false)

	assert.Equal(t, 3.0, testutil.ToFloat64(rec.JobsStarted.WithLabelValues("email.send", "default", "redis")))
	assert.Equal(t, 0.0, testutil.ToFloat64(rec.JobsActive.WithLabelValues("email.send", "default", "redis")))
	for _, outcome := range []string{OutcomeCompleted, OutcomeRetryable, OutcomeFatal} {
		assert.Equal(t, 1.0,
			testutil.ToFloat64(rec.JobsFinished.WithLabelValues("email.send", "default", "redis", outcome)),
			outcome)
	}
	assert.Equal(t, 1, testutil.CollectAndCount(rec.JobDuration))

	names := []string{}
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "ojs_jobs_started_total")
	assert.Contains(t, names, "ojs_job_duration_seconds")
}

func TestRecorderNilRegisterer(t *testing.T) {
	rec := New(nil)
	require.NotNil(t, rec.JobsStarted)
	rec.JobStarted(middleware.JobLabels{Type: "a"})
}

func TestRecorderWithWorker(t *testing.T) {
	rec := New(prometheus.NewRegistry())
	n := ojs.NewNotifier()
	n.Subscribe(rec, ojs.Events...)

	_ = ojstesting.Fake(t)
	client := ojstesting.FakeClient(t, ojs.WithNotifier(n))
	worker := ojstesting.FakeWorker(t, ojs.WithWorkerNotifier(n))
	worker.UseNamed("metrics", middleware.Metrics(rec))
	worker.Register("email.send", func(ctx ojs.JobContext) error {
		return errors.New("smtp down")
	})

	_, err := client.Enqueue(context.Background(), "email.send", nil)
	require.NoError(t, err)
	ojstesting.Drain(t)

	adapter := ojstesting.AdapterName
	assert.Equal(t, 1.0, testutil.ToFloat64(
		rec.JobsFinished.WithLabelValues("email.send", "default", adapter, OutcomeRetryable)))
	assert.Equal(t, 1.0, testutil.ToFloat64(
		rec.Events.WithLabelValues("email.send", "default", adapter, ojs.EventEnqueueRetry, "true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(
		rec.Events.WithLabelValues("email.send", "default", adapter, ojs.EventPerform, "true")))
	// The retry itself is a scheduled enqueue.
	assert.Equal(t, 1.0, testutil.ToFloat64(
		rec.Events.WithLabelValues("email.send", "default", adapter, ojs.EventEnqueueAt, "false")))
}
