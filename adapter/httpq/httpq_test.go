package httpq

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	ojs "github.com/openjobspec/ojs-jobtrace"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) (*Adapter, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return New(server.URL, WithRetry(2, time.Millisecond, 5*time.Millisecond), WithWorkerID("w-1")), server
}

func TestEnqueuePostsEnvelope(t *testing.T) {
	var got map[string]any
	a, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/ojs/v1/jobs" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != contentType {
			t.Errorf("Content-Type = %q", ct)
		}
		if auth := r.Header.Get("Authorization"); auth != "" {
			t.Errorf("unexpected Authorization %q", auth)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"job":{"id":"srv-1"}}`)
	})

	job := ojs.NewJob("email.send", ojs.Args{"to": "a@b.com"})
	job.Headers["traceparent"] = "00-0af7651916cd43dd8448eb211c80319c-b7ad6b7169203331-01"
	if err := ojs.NewClient(a).EnqueueJob(context.Background(), job); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}

	if job.ProviderJobID != "srv-1" {
		t.Errorf("provider job id = %q, want srv-1", job.ProviderJobID)
	}
	if got["type"] != "email.send" {
		t.Errorf("type = %v", got["type"])
	}
	headers, _ := got[ojs.HeadersKey].(map[string]any)
	if headers["traceparent"] != job.Headers["traceparent"] {
		t.Errorf("carrier not sent: %v", got[ojs.HeadersKey])
	}
}

func TestAuthAndCustomHeaders(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer secret" || r.Header.Get("X-Tenant") != "acme" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = io.WriteString(w, `{"status":"ok"}`)
	}))
	defer server.Close()

	a := New(server.URL+"/", WithAuthToken("secret"), WithHeader("X-Tenant", "acme"))
	status, err := a.Health(context.Background())
	if err != nil || status != "ok" {
		t.Fatalf("Health = %q, %v", status, err)
	}
}

func TestFetchAckNack(t *testing.T) {
	var acked, nacked []string
	var nackBody struct {
		JobID string `json:"job_id"`
		Error struct {
			Code      string `json:"code"`
			Message   string `json:"message"`
			Retryable bool   `json:"retryable"`
		} `json:"error"`
	}

	a, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ojs/v1/workers/fetch":
			var req struct {
				Queues   []string `json:"queues"`
				Count    int      `json:"count"`
				WorkerID string   `json:"worker_id"`
			}
			_ = json.NewDecoder(r.Body).Decode(&req)
			if req.WorkerID != "w-1" || req.Count != 2 || len(req.Queues) != 1 {
				t.Errorf("unexpected fetch request %+v", req)
			}
			_, _ = io.WriteString(w, `{"jobs":[
				{"id":"j1","type":"email.send","queue":"default","args":[]},
				{"id":"j2","type":"email.send","queue":"default","args":[]}
			]}`)
		case "/ojs/v1/workers/ack":
			var req struct {
				JobID string `json:"job_id"`
			}
			_ = json.NewDecoder(r.Body).Decode(&req)
			acked = append(acked, req.JobID)
		case "/ojs/v1/workers/nack":
			_ = json.NewDecoder(r.Body).Decode(&nackBody)
			nacked = append(nacked, nackBody.JobID)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	ctx := context.Background()
	got, err := a.Fetch(ctx, []string{"default"}, 2)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(got) != 2 || got[0].ProviderJobID() != "j1" {
		t.Fatalf("unexpected deliveries: %d", len(got))
	}
	job, err := ojs.DefaultCodec.Decode(got[1].Data())
	if err != nil || job.ID != "j2" {
		t.Fatalf("Decode: %v %v", job, err)
	}

	if err := got[0].Ack(ctx); err != nil {
		t.Fatalf("Ack: %v", err)
	}
	if err := got[1].Nack(ctx, errors.New("boom")); err != nil {
		t.Fatalf("Nack: %v", err)
	}
	if len(acked) != 1 || acked[0] != "j1" || len(nacked) != 1 || nacked[0] != "j2" {
		t.Errorf("acked=%v nacked=%v", acked, nacked)
	}
	if nackBody.Error.Retryable || nackBody.Error.Message != "boom" || nackBody.Error.Code != ojs.ErrCodeHandlerError {
		t.Errorf("unexpected nack error %+v", nackBody.Error)
	}
}

func TestStructuredErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"duplicate", http.StatusConflict, `{"error":{"code":"duplicate","message":"exists"}}`, ErrDuplicate},
		{"conflict", http.StatusConflict, `{"error":{"code":"other","message":"x"}}`, ErrConflict},
		{"paused", http.StatusUnprocessableEntity, `{"error":{"code":"queue_paused","message":"paused"}}`, ErrQueuePaused},
		{"not found", http.StatusNotFound, `{"error":{"code":"not_found","message":"gone","request_id":"r1"}}`, ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			})
			_, err := a.Enqueue(context.Background(), ojs.NewJob("email.send", nil), []byte(`{}`))
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			var apiErr *Error
			if !errors.As(err, &apiErr) || apiErr.HTTPStatus != tt.status {
				t.Errorf("expected *Error with status %d, got %v", tt.status, err)
			}
		})
	}
}

func TestUnstructuredError(t *testing.T) {
	a, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, "bad")
	})
	_, err := a.Enqueue(context.Background(), ojs.NewJob("email.send", nil), []byte(`{}`))
	var apiErr *Error
	if !errors.As(err, &apiErr) || apiErr.Code != "unknown" || apiErr.Message != "HTTP 400: bad" {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	a, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = io.WriteString(w, `{"job":{"id":"srv-9"}}`)
	})

	id, err := a.Enqueue(context.Background(), ojs.NewJob("email.send", nil), []byte(`{}`))
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if id != "srv-9" || calls.Load() != 3 {
		t.Errorf("id=%q calls=%d", id, calls.Load())
	}
}

func TestRetriesExhausted(t *testing.T) {
	var calls atomic.Int32
	a, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, `{"error":{"code":"backend_error","message":"down","retryable":true}}`)
	})

	_, err := a.Enqueue(context.Background(), ojs.NewJob("email.send", nil), []byte(`{}`))
	if !errors.Is(err, ErrBackend) {
		t.Fatalf("expected ErrBackend, got %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
}
