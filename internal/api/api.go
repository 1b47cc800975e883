// Package api serves the HTTP enqueue endpoint of ojs-api. Requests are
// traced with otelhttp, so an incoming traceparent becomes the parent of
// the enqueue span and travels with the job.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	ojs "github.com/openjobspec/ojs-jobtrace"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// maxBodyBytes caps the size of an enqueue request body.
const maxBodyBytes = 1 << 20

// HealthFunc reports whether the backing queue is reachable.
type HealthFunc func(ctx context.Context) error

// Server routes enqueue and health requests to an ojs.Client.
type Server struct {
	client *ojs.Client
	health HealthFunc
	logger *zap.Logger
	mux    *http.ServeMux
	opts   []otelhttp.Option
	limit  *rate.Limiter
}

// Option configures a Server.
type Option func(*Server)

// WithHealth sets the check run by GET /health.
func WithHealth(fn HealthFunc) Option {
	return func(s *Server) { s.health = fn }
}

// WithLogger sets the request logger. Default: no-op.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithRateLimit caps accepted enqueue requests across all clients.
// Requests over the limit get 429. A non-positive rps disables limiting.
func WithRateLimit(rps float64, burst int) Option {
	return func(s *Server) {
		if rps <= 0 {
			s.limit = nil
			return
		}
		s.limit = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithOTelOptions passes options to the otelhttp handler, for example a
// tracer provider other than the global one.
func WithOTelOptions(opts ...otelhttp.Option) Option {
	return func(s *Server) { s.opts = append(s.opts, opts...) }
}

// New creates a Server that enqueues through client.
func New(client *ojs.Client, opts ...Option) *Server {
	s := &Server{
		client: client,
		logger: zap.NewNop(),
		mux:    http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.mux.HandleFunc("POST /v1/jobs", s.handleEnqueue)
	s.mux.HandleFunc("GET /health", s.handleHealth)
	return s
}

// Handler returns the traced HTTP handler.
func (s *Server) Handler() http.Handler {
	return otelhttp.NewHandler(s.mux, "ojs-api", s.opts...)
}

// EnqueueRequest is the body of POST /v1/jobs.
type EnqueueRequest struct {
	Type        string         `json:"type"`
	Args        ojs.Args       `json:"args,omitempty"`
	Queue       string         `json:"queue,omitempty"`
	Priority    int            `json:"priority,omitempty"`
	Delay       string         `json:"delay,omitempty"`
	MaxAttempts int            `json:"max_attempts,omitempty"`
	Tags        []string       `json:"tags,omitempty"`
	Meta        map[string]any `json:"meta,omitempty"`
}

func (r EnqueueRequest) options() ([]ojs.EnqueueOption, error) {
	var opts []ojs.EnqueueOption
	if r.Queue != "" {
		opts = append(opts, ojs.WithQueue(r.Queue))
	}
	if r.Priority != 0 {
		opts = append(opts, ojs.WithPriority(r.Priority))
	}
	if r.Delay != "" {
		d, err := time.ParseDuration(r.Delay)
		if err != nil {
			return nil, err
		}
		opts = append(opts, ojs.WithDelay(d))
	}
	if r.MaxAttempts > 0 {
		opts = append(opts, ojs.WithRetry(ojs.RetryPolicy{MaxAttempts: r.MaxAttempts}))
	}
	if len(r.Tags) > 0 {
		opts = append(opts, ojs.WithTags(r.Tags...))
	}
	if len(r.Meta) > 0 {
		opts = append(opts, ojs.WithMeta(r.Meta))
	}
	return opts, nil
}

// EnqueueResponse is the body returned for an accepted job.
type EnqueueResponse struct {
	ID            string      `json:"id"`
	Type          string      `json:"type"`
	Queue         string      `json:"queue"`
	ProviderJobID string      `json:"provider_job_id,omitempty"`
	ScheduledAt   *time.Time  `json:"scheduled_at,omitempty"`
	Headers       ojs.Headers `json:"headers,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	if s.limit != nil && !s.limit.Allow() {
		writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "rate limit exceeded"})
		return
	}
	var req EnqueueRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error()})
		return
	}
	opts, err := req.options()
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid delay: " + err.Error()})
		return
	}

	job, err := s.client.Enqueue(r.Context(), req.Type, req.Args, opts...)
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, ojs.ErrInvalidJob) {
			status = http.StatusBadRequest
		}
		s.logger.Warn("enqueue failed",
			zap.String("job.type", req.Type),
			zap.Int("status", status),
			zap.Error(err),
		)
		writeJSON(w, status, errorResponse{Error: err.Error()})
		return
	}

	s.logger.Debug("job enqueued",
		zap.String("job.id", job.ID),
		zap.String("job.type", job.Type),
		zap.String("job.queue", job.Queue),
	)
	writeJSON(w, http.StatusCreated, EnqueueResponse{
		ID:            job.ID,
		Type:          job.Type,
		Queue:         job.Queue,
		ProviderJobID: job.ProviderJobID,
		ScheduledAt:   job.ScheduledAt,
		Headers:       job.Headers,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		if err := s.health(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
