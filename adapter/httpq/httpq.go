// Package httpq provides an adapter for OJS servers speaking the OJS HTTP
// binding. Jobs are pushed with POST /ojs/v1/jobs and pulled through the
// worker fetch, ack and nack endpoints.
//
// Requests are retried on connection errors and 5xx responses. Nack
// reports failures as not retryable: the worker has already applied the
// job's retry policy by enqueueing a new attempt.
package httpq

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"
	ojs "github.com/openjobspec/ojs-jobtrace"
)

// Name is the adapter name reported on spans.
const Name = "http"

// Adapter talks to an OJS server over HTTP.
type Adapter struct {
	transport *transport
	workerID  string
}

var (
	_ ojs.Adapter  = (*Adapter)(nil)
	_ ojs.Consumer = (*Adapter)(nil)
)

// Option configures an Adapter.
type Option func(*Adapter)

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(a *Adapter) { a.transport.client.HTTPClient = c }
}

// WithRetry sets how often a failed request is retried and the bounds of
// the wait between attempts. Default: 3 retries, 100ms to 5s.
func WithRetry(max int, waitMin, waitMax time.Duration) Option {
	return func(a *Adapter) {
		a.transport.client.RetryMax = max
		a.transport.client.RetryWaitMin = waitMin
		a.transport.client.RetryWaitMax = waitMax
	}
}

// WithAuthToken sets a bearer token sent with every request.
func WithAuthToken(token string) Option {
	return func(a *Adapter) { a.transport.authToken = token }
}

// WithHeader adds a header sent with every request.
func WithHeader(key, value string) Option {
	return func(a *Adapter) { a.transport.headers[key] = value }
}

// WithWorkerID sets the worker ID reported on fetch. Default: random.
func WithWorkerID(id string) Option {
	return func(a *Adapter) { a.workerID = id }
}

// WithLogger logs request retries to logger. Default: no logging.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Adapter) {
		if logger != nil {
			a.transport.client.Logger = logger
		}
	}
}

// New creates an adapter for the server at baseURL.
func New(baseURL string, opts ...Option) *Adapter {
	client := retryablehttp.NewClient()
	client.RetryMax = 3
	client.RetryWaitMin = 100 * time.Millisecond
	client.RetryWaitMax = 5 * time.Second
	client.Logger = nil
	// Hand the last response back so structured errors can be decoded.
	client.ErrorHandler = retryablehttp.PassthroughErrorHandler

	a := &Adapter{
		transport: &transport{
			baseURL: trimBase(baseURL),
			client:  client,
			headers: make(map[string]string),
		},
		workerID: "worker-" + uuid.NewString(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Name returns "http".
func (a *Adapter) Name() string { return Name }

// Enqueue posts the serialized job and returns the server's job ID.
func (a *Adapter) Enqueue(ctx context.Context, job *ojs.Job, data []byte) (string, error) {
	var resp struct {
		Job struct {
			ID string `json:"id"`
		} `json:"job"`
	}
	if err := a.transport.post(ctx, basePath+"/jobs", data, &resp); err != nil {
		return "", err
	}
	return resp.Job.ID, nil
}

// Fetch claims up to max jobs from queues.
func (a *Adapter) Fetch(ctx context.Context, queues []string, max int) ([]ojs.Delivery, error) {
	req := struct {
		Queues   []string `json:"queues"`
		Count    int      `json:"count"`
		WorkerID string   `json:"worker_id"`
	}{
		Queues:   queues,
		Count:    max,
		WorkerID: a.workerID,
	}
	var resp struct {
		Jobs []json.RawMessage `json:"jobs"`
	}
	if err := a.transport.post(ctx, basePath+"/workers/fetch", req, &resp); err != nil {
		return nil, err
	}

	out := make([]ojs.Delivery, 0, len(resp.Jobs))
	for _, raw := range resp.Jobs {
		var ref struct {
			ID string `json:"id"`
		}
		// An undecodable job is still delivered; the worker reports it.
		_ = json.Unmarshal(raw, &ref)
		out = append(out, &delivery{adapter: a, id: ref.ID, data: raw})
	}
	return out, nil
}

// Health returns the server's reported status.
func (a *Adapter) Health(ctx context.Context) (string, error) {
	var resp struct {
		Status string `json:"status"`
	}
	if err := a.transport.get(ctx, basePath+"/health", &resp); err != nil {
		return "", err
	}
	return resp.Status, nil
}

type delivery struct {
	adapter *Adapter
	id      string
	data    []byte
}

func (d *delivery) Data() []byte          { return d.data }
func (d *delivery) ProviderJobID() string { return d.id }

func (d *delivery) Ack(ctx context.Context) error {
	req := struct {
		JobID string `json:"job_id"`
	}{JobID: d.id}
	return d.adapter.transport.post(ctx, basePath+"/workers/ack", req, nil)
}

func (d *delivery) Nack(ctx context.Context, cause error) error {
	type nackError struct {
		Code      string `json:"code"`
		Message   string `json:"message"`
		Retryable bool   `json:"retryable"`
	}
	req := struct {
		JobID string    `json:"job_id"`
		Error nackError `json:"error"`
	}{
		JobID: d.id,
		Error: nackError{Code: ojs.ErrCodeHandlerError},
	}
	if cause != nil {
		req.Error.Message = cause.Error()
	}
	return d.adapter.transport.post(ctx, basePath+"/workers/nack", req, nil)
}
