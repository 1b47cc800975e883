package jobtrace

import (
	"errors"
	"fmt"

	ojs "github.com/openjobspec/ojs-jobtrace"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// phase selects the handler for a notification.
type phase int

const (
	phaseDefault phase = iota
	phaseEnqueue
	phasePerform
)

// phaseOf maps a notification name to its handler. Names without an
// entry, including ones added to ojs in the future, use phaseDefault.
func phaseOf(name string) phase {
	switch name {
	case ojs.EventEnqueue, ojs.EventEnqueueAt:
		return phaseEnqueue
	case ojs.EventPerform:
		return phasePerform
	default:
		return phaseDefault
	}
}

// spanState is what Start leaves on the payload for Finish.
type spanState struct {
	span   trace.Span
	tokens []ojs.Token
}

// stateKey keys spanState on the payload.
type stateKey struct{}

var (
	errNoJob   = errors.New("jobtrace: payload has no job")
	errNoScope = errors.New("jobtrace: payload has no scope")
)

// Subscriber turns job lifecycle notifications into spans. It holds no
// per-job state and is safe for concurrent use.
type Subscriber struct {
	cfg    config
	tracer trace.Tracer
}

var _ ojs.Subscriber = (*Subscriber)(nil)

// New creates a Subscriber.
func New(opts ...Option) *Subscriber {
	cfg := newConfig(opts)
	return &Subscriber{
		cfg: cfg,
		tracer: cfg.tracerProvider.Tracer(instrumentationName,
			trace.WithInstrumentationVersion(Version),
		),
	}
}

// Instrument creates a Subscriber and subscribes it to every job
// lifecycle notification of n.
func Instrument(n *ojs.Notifier, opts ...Option) *Subscriber {
	s := New(opts...)
	n.Subscribe(s, ojs.Events...)
	return s
}

// Start opens the span for a notification. Whatever it managed to create
// before a failure is kept on the payload so Finish can clean it up.
func (s *Subscriber) Start(name, id string, p *ojs.Payload) {
	st := &spanState{}
	defer func() {
		if r := recover(); r != nil {
			s.report(fmt.Errorf("jobtrace: start %s: panic: %v", name, r))
		}
		if st.span != nil || len(st.tokens) > 0 {
			p.Set(stateKey{}, st)
		}
	}()

	if err := s.start(name, p, st); err != nil {
		s.report(fmt.Errorf("jobtrace: start %s: %w", name, err))
	}
}

func (s *Subscriber) start(name string, p *ojs.Payload, st *spanState) error {
	if p.Job == nil {
		return errNoJob
	}
	if p.Scope == nil {
		return errNoScope
	}
	switch phaseOf(name) {
	case phaseEnqueue:
		return s.startEnqueue(p, st)
	case phasePerform:
		return s.startPerform(p, st)
	default:
		return s.startDefault(name, p, st)
	}
}

// Finish records the payload error on the span, ends it and detaches
// every attached context in reverse order. Each step is guarded on its
// own so one failure does not skip the rest.
func (s *Subscriber) Finish(name, id string, p *ojs.Payload) {
	st, _ := p.Value(stateKey{}).(*spanState)
	if st == nil {
		return
	}
	p.Delete(stateKey{})

	if st.span != nil {
		s.guard(name, "record error", func() error {
			if p.Error != nil {
				st.span.RecordError(p.Error)
				st.span.SetStatus(codes.Error, p.Error.Error())
			}
			return nil
		})
		s.guard(name, "end span", func() error {
			st.span.End()
			return nil
		})
	}
	for i := len(st.tokens) - 1; i >= 0; i-- {
		tok := st.tokens[i]
		s.guard(name, "detach", func() error {
			return p.Scope.Detach(tok)
		})
	}
}

func (s *Subscriber) guard(name, step string, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			s.report(fmt.Errorf("jobtrace: finish %s: %s: panic: %v", name, step, r))
		}
	}()
	if err := fn(); err != nil {
		s.report(fmt.Errorf("jobtrace: finish %s: %s: %w", name, step, err))
	}
}

// report hands err to the error handler. A panicking handler is ignored.
func (s *Subscriber) report(err error) {
	defer func() { _ = recover() }()
	s.cfg.errorHandler.Handle(err)
}
