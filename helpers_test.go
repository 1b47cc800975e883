package ojs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// memAdapter is an in-memory Adapter and Consumer for tests.
type memAdapter struct {
	name string

	mu       sync.Mutex
	seq      int
	ready    []memMessage
	enqueued []*Job
	acked    []string
	nacked   []string
	err      error
}

type memMessage struct {
	id    string
	queue string
	data  []byte
}

func newMemAdapter() *memAdapter {
	return &memAdapter{name: "mem"}
}

func (a *memAdapter) Name() string { return a.name }

func (a *memAdapter) Enqueue(ctx context.Context, job *Job, data []byte) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return "", a.err
	}
	a.seq++
	id := fmt.Sprintf("mem-%d", a.seq)
	a.enqueued = append(a.enqueued, job)
	a.ready = append(a.ready, memMessage{id: id, queue: job.Queue, data: data})
	return id, nil
}

func (a *memAdapter) Fetch(ctx context.Context, queues []string, max int) ([]Delivery, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []Delivery
	var rest []memMessage
	for _, m := range a.ready {
		if len(out) < max && containsQueue(queues, m.queue) {
			out = append(out, &memDelivery{a: a, msg: m})
			continue
		}
		rest = append(rest, m)
	}
	a.ready = rest
	return out, nil
}

func (a *memAdapter) Enqueued() []*Job {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]*Job(nil), a.enqueued...)
}

func (a *memAdapter) Settled() (acked, nacked []string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.acked...), append([]string(nil), a.nacked...)
}

func containsQueue(queues []string, q string) bool {
	for _, x := range queues {
		if x == q {
			return true
		}
	}
	return false
}

type memDelivery struct {
	a   *memAdapter
	msg memMessage
}

func (d *memDelivery) Data() []byte          { return d.msg.data }
func (d *memDelivery) ProviderJobID() string { return d.msg.id }

func (d *memDelivery) Ack(ctx context.Context) error {
	d.a.mu.Lock()
	defer d.a.mu.Unlock()
	d.a.acked = append(d.a.acked, d.msg.id)
	return nil
}

func (d *memDelivery) Nack(ctx context.Context, cause error) error {
	d.a.mu.Lock()
	defer d.a.mu.Unlock()
	d.a.nacked = append(d.a.nacked, d.msg.id)
	return nil
}

// eventLog records notifications and, like tracing instrumentation,
// attaches a context carrying the event name for the duration of each.
type eventLog struct {
	mu     sync.Mutex
	events []string
	errs   map[string]error
	waits  map[string]time.Duration
}

type eventKey struct{}
type eventTokenKey struct{}

func newEventLog() *eventLog {
	return &eventLog{errs: map[string]error{}, waits: map[string]time.Duration{}}
}

func (l *eventLog) Start(name, id string, p *Payload) {
	l.mu.Lock()
	l.events = append(l.events, "start "+name)
	l.mu.Unlock()
	if name == EventEnqueue || name == EventEnqueueAt {
		p.Job.Headers.Set("x-enqueued-by", id)
	}
	tok := p.Scope.Attach(context.WithValue(p.Scope.Context(), eventKey{}, name))
	p.Set(eventTokenKey{}, tok)
}

func (l *eventLog) Finish(name, id string, p *Payload) {
	l.mu.Lock()
	l.events = append(l.events, "finish "+name)
	l.errs[name] = p.Error
	l.waits[name] = p.Wait
	l.mu.Unlock()
	if tok, ok := p.Value(eventTokenKey{}).(Token); ok {
		_ = p.Scope.Detach(tok)
	}
}

func (l *eventLog) Events() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

func (l *eventLog) Err(name string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.errs[name]
}

var errBoom = errors.New("boom")
