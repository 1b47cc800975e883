// Package async provides an in-memory adapter that queues jobs inside the
// process. A Worker started on the adapter pulls jobs from it like from
// any other Consumer; scheduled jobs become visible when they are due.
package async

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	ojs "github.com/openjobspec/ojs-jobtrace"
)

// Name is the adapter name reported on spans.
const Name = "async"

// Adapter is an in-memory job queue. It is safe for concurrent use.
type Adapter struct {
	mu     sync.Mutex
	ready  map[string][]*delivery
	timers map[string]*time.Timer
	closed bool

	seq      atomic.Uint64
	acked    atomic.Int64
	nacked   atomic.Int64
	inflight atomic.Int64
}

var (
	_ ojs.Adapter  = (*Adapter)(nil)
	_ ojs.Consumer = (*Adapter)(nil)
)

// New creates an empty adapter.
func New() *Adapter {
	return &Adapter{
		ready:  make(map[string][]*delivery),
		timers: make(map[string]*time.Timer),
	}
}

// ErrClosed is returned by Enqueue after Close.
var ErrClosed = errors.New("async: adapter closed")

// Name returns "async".
func (a *Adapter) Name() string { return Name }

// Enqueue queues data on job.Queue. Scheduled jobs are held on a timer
// until they are due.
func (a *Adapter) Enqueue(ctx context.Context, job *ojs.Job, data []byte) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return "", ErrClosed
	}

	id := fmt.Sprintf("async-%d", a.seq.Add(1))
	d := &delivery{adapter: a, id: id, data: slices.Clone(data)}

	if job.Scheduled() {
		a.timers[id] = time.AfterFunc(time.Until(*job.ScheduledAt), func() {
			a.release(job.Queue, d)
		})
		return id, nil
	}
	a.ready[job.Queue] = append(a.ready[job.Queue], d)
	return id, nil
}

func (a *Adapter) release(queue string, d *delivery) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.timers[d.id]; !ok {
		return
	}
	delete(a.timers, d.id)
	a.ready[queue] = append(a.ready[queue], d)
}

// Fetch takes up to max ready jobs, draining queues in the given order.
func (a *Adapter) Fetch(ctx context.Context, queues []string, max int) ([]ojs.Delivery, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]ojs.Delivery, 0, max)
	for _, q := range queues {
		for len(a.ready[q]) > 0 && len(out) < max {
			d := a.ready[q][0]
			a.ready[q] = a.ready[q][1:]
			out = append(out, d)
		}
	}
	a.inflight.Add(int64(len(out)))
	return out, nil
}

// Len returns the number of jobs ready on queue.
func (a *Adapter) Len(queue string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.ready[queue])
}

// Scheduled returns the number of jobs waiting for their run time.
func (a *Adapter) Scheduled() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.timers)
}

// Stats reports settled deliveries: acked, nacked and still in flight.
func (a *Adapter) Stats() (acked, nacked, inflight int64) {
	return a.acked.Load(), a.nacked.Load(), a.inflight.Load()
}

// Close drops scheduled jobs and rejects further enqueues. Jobs already
// ready can still be fetched.
func (a *Adapter) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	for id, t := range a.timers {
		t.Stop()
		delete(a.timers, id)
	}
}

type delivery struct {
	adapter *Adapter
	id      string
	data    []byte
	settled atomic.Bool
}

func (d *delivery) Data() []byte          { return d.data }
func (d *delivery) ProviderJobID() string { return d.id }

func (d *delivery) Ack(ctx context.Context) error {
	if d.settled.CompareAndSwap(false, true) {
		d.adapter.inflight.Add(-1)
		d.adapter.acked.Add(1)
	}
	return nil
}

// Nack settles a failed delivery. The worker has already re-enqueued or
// discarded the job, so the message itself is dropped.
func (d *delivery) Nack(ctx context.Context, cause error) error {
	if d.settled.CompareAndSwap(false, true) {
		d.adapter.inflight.Add(-1)
		d.adapter.nacked.Add(1)
	}
	return nil
}
