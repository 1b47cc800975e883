package serverless

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	ojs "github.com/openjobspec/ojs-jobtrace"
)

// SQSEvent represents an AWS SQS event containing one or more messages.
type SQSEvent struct {
	Records []SQSMessage `json:"Records"`
}

// SQSMessage represents a single SQS message containing an OJS job.
type SQSMessage struct {
	MessageID     string            `json:"messageId"`
	Body          string            `json:"body"`
	Attributes    map[string]string `json:"attributes,omitempty"`
	MD5OfBody     string            `json:"md5OfBody,omitempty"`
	EventSourceID string            `json:"eventSource,omitempty"`
	ReceiptHandle string            `json:"receiptHandle,omitempty"`
}

// SQSBatchResponse is the response format for SQS batch item failures.
// Returning failed message IDs tells SQS to retry only those messages.
type SQSBatchResponse struct {
	BatchItemFailures []BatchItemFailure `json:"batchItemFailures"`
}

// BatchItemFailure identifies a single failed message in an SQS batch.
type BatchItemFailure struct {
	ItemIdentifier string `json:"itemIdentifier"`
}

// PushDeliveryRequest is the HTTP body sent by an OJS server for push delivery.
type PushDeliveryRequest struct {
	Job        json.RawMessage `json:"job"`
	WorkerID   string          `json:"worker_id"`
	DeliveryID string          `json:"delivery_id"`
}

// PushDeliveryResponse is the HTTP response body for push delivery.
type PushDeliveryResponse struct {
	Status string     `json:"status"`
	Error  *PushError `json:"error,omitempty"`
}

// PushError describes a job processing failure.
type PushError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

// Option configures the Handler.
type Option func(*Handler)

// WithLogger sets a custom slog logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) {
		h.logger = logger
	}
}

// Handler feeds pushed jobs to a Performer.
type Handler struct {
	performer ojs.Performer
	logger    *slog.Logger
}

// NewHandler creates a handler that runs jobs with p.
func NewHandler(p ojs.Performer, opts ...Option) *Handler {
	h := &Handler{
		performer: p,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// HandleSQS processes an SQS event containing serialized OJS jobs. It
// returns partial batch failures so SQS only redelivers messages whose
// job failed with a retryable error the worker did not already re-enqueue.
func (h *Handler) HandleSQS(ctx context.Context, event SQSEvent) (SQSBatchResponse, error) {
	resp := SQSBatchResponse{BatchItemFailures: []BatchItemFailure{}}

	for _, record := range event.Records {
		err := h.performer.Perform(ctx, []byte(record.Body), record.MessageID)
		if err == nil {
			h.logger.LogAttrs(ctx, slog.LevelInfo, "job completed",
				slog.String("message_id", record.MessageID),
			)
			continue
		}

		h.logger.LogAttrs(ctx, slog.LevelError, "job processing failed",
			slog.String("message_id", record.MessageID),
			slog.String("error", err.Error()),
		)
		if ojs.IsRetryable(err) && !errors.Is(err, ojs.ErrRetryScheduled) {
			resp.BatchItemFailures = append(resp.BatchItemFailures, BatchItemFailure{
				ItemIdentifier: record.MessageID,
			})
		}
	}

	return resp, nil
}

// HandleHTTP returns an http.HandlerFunc for OJS push delivery.
// The OJS server POSTs job payloads to this endpoint.
func (h *Handler) HandleHTTP() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var req PushDeliveryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Job) == 0 {
			writeJSON(w, http.StatusBadRequest, PushDeliveryResponse{
				Status: "failed",
				Error: &PushError{
					Code:    "invalid_request",
					Message: "failed to decode request body",
				},
			})
			return
		}

		if err := h.performer.Perform(r.Context(), req.Job, req.DeliveryID); err != nil {
			jobErr := ojs.NewJobError(err)
			writeJSON(w, http.StatusOK, PushDeliveryResponse{
				Status: "failed",
				Error: &PushError{
					Code:    jobErr.Code,
					Message: jobErr.Message,
				},
			})
			return
		}

		writeJSON(w, http.StatusOK, PushDeliveryResponse{
			Status: "completed",
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
