package httpq

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Error codes returned by OJS servers.
const (
	ErrCodeInvalidRequest = "invalid_request"
	ErrCodeNotFound       = "not_found"
	ErrCodeBackendError   = "backend_error"
	ErrCodeRateLimited    = "rate_limited"
	ErrCodeDuplicate      = "duplicate"
	ErrCodeQueuePaused    = "queue_paused"
	ErrCodeTimeout        = "timeout"
)

// Sentinel errors for use with errors.Is.
var (
	ErrNotFound    = errors.New("httpq: resource not found")
	ErrDuplicate   = errors.New("httpq: duplicate job")
	ErrQueuePaused = errors.New("httpq: queue is paused")
	ErrRateLimited = errors.New("httpq: rate limit exceeded")
	ErrConflict    = errors.New("httpq: conflict")
	ErrBackend     = errors.New("httpq: backend error")
	ErrTimeout     = errors.New("httpq: timeout")
)

// Error is a structured error response from an OJS server.
// It supports errors.Is against the sentinels above.
type Error struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Retryable bool           `json:"retryable"`
	Details   map[string]any `json:"details,omitempty"`
	RequestID string         `json:"request_id,omitempty"`

	// HTTPStatus is the status code of the response.
	HTTPStatus int `json:"-"`
}

func (e *Error) Error() string {
	if e.RequestID != "" {
		return fmt.Sprintf("httpq: %s: %s (request_id=%s)", e.Code, e.Message, e.RequestID)
	}
	return fmt.Sprintf("httpq: %s: %s", e.Code, e.Message)
}

// Unwrap returns the sentinel matching the error code, if any.
func (e *Error) Unwrap() error {
	switch e.Code {
	case ErrCodeNotFound:
		return ErrNotFound
	case ErrCodeDuplicate:
		return ErrDuplicate
	case ErrCodeQueuePaused:
		return ErrQueuePaused
	case ErrCodeRateLimited:
		return ErrRateLimited
	case ErrCodeBackendError:
		return ErrBackend
	case ErrCodeTimeout:
		return ErrTimeout
	}
	if e.HTTPStatus == 409 {
		return ErrConflict
	}
	return nil
}

// parseErrorResponse turns an error response body into an *Error.
func parseErrorResponse(body []byte, statusCode int) error {
	var resp struct {
		Error *Error `json:"error"`
	}
	if err := json.Unmarshal(body, &resp); err != nil || resp.Error == nil {
		return &Error{
			Code:       "unknown",
			Message:    fmt.Sprintf("HTTP %d: %s", statusCode, string(body)),
			HTTPStatus: statusCode,
		}
	}
	resp.Error.HTTPStatus = statusCode
	return resp.Error
}
