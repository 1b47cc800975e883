// Package promrecorder exports job metrics to Prometheus.
//
// The [Recorder] implements middleware.MetricsRecorder for job executions
// and ojs.Subscriber for lifecycle notifications:
//
//	rec := promrecorder.New(prometheus.DefaultRegisterer)
//	worker.UseNamed("metrics", middleware.Metrics(rec))
//	notifier.Subscribe(rec, ojs.Events...)
package promrecorder

import (
	"strconv"
	"time"

	ojs "github.com/openjobspec/ojs-jobtrace"
	"github.com/openjobspec/ojs-jobtrace/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder holds the Prometheus collectors for job metrics.
type Recorder struct {
	JobsStarted  *prometheus.CounterVec
	JobsFinished *prometheus.CounterVec
	JobDuration  *prometheus.HistogramVec
	JobsActive   *prometheus.GaugeVec
	Events       *prometheus.CounterVec
}

var (
	_ middleware.MetricsRecorder = (*Recorder)(nil)
	_ ojs.Subscriber             = (*Recorder)(nil)
)

var jobLabels = []string{"type", "queue", "adapter"}

// New creates a Recorder and registers its collectors with reg. A nil reg
// leaves them unregistered.
func New(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)
	return &Recorder{
		JobsStarted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ojs_jobs_started_total",
				Help: "Total number of job executions started",
			},
			jobLabels,
		),
		JobsFinished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ojs_jobs_finished_total",
				Help: "Total number of job executions finished, by outcome",
			},
			append(jobLabels, "outcome"),
		),
		JobDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ojs_job_duration_seconds",
				Help:    "Job execution duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			jobLabels,
		),
		JobsActive: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "ojs_jobs_active",
				Help: "Number of jobs currently executing",
			},
			jobLabels,
		),
		Events: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ojs_job_events_total",
				Help: "Total number of job lifecycle notifications",
			},
			append(jobLabels, "event", "failed"),
		),
	}
}

// Outcomes recorded on ojs_jobs_finished_total.
const (
	OutcomeCompleted = "completed"
	OutcomeRetryable = "failed_retryable"
	OutcomeFatal     = "failed_fatal"
)

func values(l middleware.JobLabels) []string {
	return []string{l.Type, l.Queue, l.Adapter}
}

func (r *Recorder) JobStarted(l middleware.JobLabels) {
	r.JobsStarted.WithLabelValues(values(l)...).Inc()
	r.JobsActive.WithLabelValues(values(l)...).Inc()
}

func (r *Recorder) JobCompleted(l middleware.JobLabels, d time.Duration) {
	r.finish(l, d, OutcomeCompleted)
}

func (r *Recorder) JobFailed(l middleware.JobLabels, d time.Duration, retryable bool) {
	outcome := OutcomeFatal
	if retryable {
		outcome = OutcomeRetryable
	}
	r.finish(l, d, outcome)
}

func (r *Recorder) finish(l middleware.JobLabels, d time.Duration, outcome string) {
	r.JobsActive.WithLabelValues(values(l)...).Dec()
	r.JobDuration.WithLabelValues(values(l)...).Observe(d.Seconds())
	r.JobsFinished.WithLabelValues(append(values(l), outcome)...).Inc()
}

// Start does nothing; notifications are counted when they finish.
func (r *Recorder) Start(name, id string, p *ojs.Payload) {}

// Finish counts the notification.
func (r *Recorder) Finish(name, id string, p *ojs.Payload) {
	if p.Job == nil {
		return
	}
	l := middleware.JobLabels{Type: p.Job.Type, Queue: p.Job.Queue, Adapter: p.Job.Adapter}
	r.Events.WithLabelValues(append(values(l), name, strconv.FormatBool(p.Error != nil))...).Inc()
}
