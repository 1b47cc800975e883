// Package inline provides an adapter that runs jobs synchronously inside
// Enqueue. It is meant for tests and development, where the producer and
// consumer share one process and one call stack.
//
//	adapter := inline.New()
//	client := ojs.NewClient(adapter, ojs.WithNotifier(n))
//	worker := ojs.NewWorker(adapter, ojs.WithWorkerNotifier(n))
//	adapter.Bind(worker)
package inline

import (
	"context"
	"fmt"
	"sync"

	ojs "github.com/openjobspec/ojs-jobtrace"
)

// Name is the adapter name reported on spans.
const Name = "inline"

// Adapter performs every enqueued job before Enqueue returns.
type Adapter struct {
	mu        sync.RWMutex
	performer ojs.Performer
}

var _ ojs.Adapter = (*Adapter)(nil)

// New creates an unbound adapter. Call Bind before enqueueing.
func New() *Adapter {
	return &Adapter{}
}

// Bind sets the performer that runs enqueued jobs, usually a *ojs.Worker.
func (a *Adapter) Bind(p ojs.Performer) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.performer = p
}

// Name returns "inline".
func (a *Adapter) Name() string { return Name }

// Enqueue performs the job immediately with ctx, so the enqueue span is
// current while the job runs. A job error is returned to the enqueuer.
// Scheduled jobs are rejected with ojs.ErrSchedulingUnsupported.
func (a *Adapter) Enqueue(ctx context.Context, job *ojs.Job, data []byte) (string, error) {
	if job.Scheduled() {
		return "", fmt.Errorf("inline: job %s: %w", job.ID, ojs.ErrSchedulingUnsupported)
	}

	a.mu.RLock()
	p := a.performer
	a.mu.RUnlock()
	if p == nil {
		return "", fmt.Errorf("inline: %w", ojs.ErrNotBound)
	}
	return "", p.Perform(ctx, data, "")
}
