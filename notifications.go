package ojs

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Payload is the state shared by all subscribers of one notification.
// Subscribers may stash private values on it with Set; use an unexported
// key type to avoid collisions. A Payload never leaves the process.
type Payload struct {
	// Job is the job the notification is about.
	Job *Job

	// Scope is the ambient context of the execution. Instrument creates
	// one if it is nil.
	Scope *Scope

	// Error is the failure of the wrapped operation, if any.
	Error error

	// Wait is the delay before the job runs, set for scheduled enqueues
	// and retries.
	Wait time.Duration

	values map[any]any
}

// Set stores a value under key.
func (p *Payload) Set(key, value any) {
	if p.values == nil {
		p.values = make(map[any]any)
	}
	p.values[key] = value
}

// Value returns the value stored under key, or nil.
func (p *Payload) Value(key any) any {
	return p.values[key]
}

// Delete removes the value stored under key.
func (p *Payload) Delete(key any) {
	delete(p.values, key)
}

// Subscriber observes lifecycle notifications. Start is called before the
// wrapped operation and Finish after it, with the same payload.
// Implementations must not panic and must be safe for concurrent use:
// jobs running in parallel notify the same subscriber.
type Subscriber interface {
	Start(name, id string, p *Payload)
	Finish(name, id string, p *Payload)
}

type subscription struct {
	sub   Subscriber
	names []string
}

func (s subscription) matches(name string) bool {
	return len(s.names) == 0 || slices.Contains(s.names, name)
}

// Notifier dispatches lifecycle notifications to subscribers. The zero
// value and a nil *Notifier are ready to use and have no subscribers.
type Notifier struct {
	mu   sync.RWMutex
	subs []subscription
}

// NewNotifier creates an empty Notifier.
func NewNotifier() *Notifier {
	return &Notifier{}
}

// Subscribe registers s for the given notification names, or for every
// notification when none are given.
func (n *Notifier) Subscribe(s Subscriber, names ...string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.subs = append(n.subs, subscription{sub: s, names: names})
}

// Unsubscribe removes every registration of s.
func (n *Notifier) Unsubscribe(s Subscriber) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.subs = slices.DeleteFunc(n.subs, func(sub subscription) bool {
		return sub.sub == s
	})
}

func (n *Notifier) listeners(name string) []Subscriber {
	if n == nil {
		return nil
	}
	n.mu.RLock()
	defer n.mu.RUnlock()
	var out []Subscriber
	for _, s := range n.subs {
		if s.matches(name) {
			out = append(out, s.sub)
		}
	}
	return out
}

// Instrument notifies subscribers of name around fn. Start runs on each
// subscriber in registration order, then fn is called with the scope's
// ambient context, then Finish runs in reverse order. A returned error is
// recorded in p.Error unless one is already set, and returned unchanged.
//
// Finish runs even if fn panics; the panic is re-raised afterwards. A nil
// fn makes an instant event.
func (n *Notifier) Instrument(name string, p *Payload, fn func(ctx context.Context) error) (err error) {
	if p.Scope == nil {
		p.Scope = NewScope(context.Background())
	}
	subs := n.listeners(name)
	id := uuid.NewString()

	for _, s := range subs {
		s.Start(name, id, p)
	}
	defer func() {
		r := recover()
		if r != nil && p.Error == nil {
			p.Error = fmt.Errorf("ojs: panic in %s: %v", name, r)
		}
		for i := len(subs) - 1; i >= 0; i-- {
			subs[i].Finish(name, id, p)
		}
		if r != nil {
			panic(r)
		}
	}()

	if fn == nil {
		return nil
	}
	err = fn(p.Scope.Context())
	if err != nil && p.Error == nil {
		p.Error = err
	}
	return err
}
