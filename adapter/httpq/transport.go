package httpq

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/hashicorp/go-retryablehttp"
)

const (
	contentType = "application/openjobspec+json"
	ojsVersion  = "1.0.0-rc.1"
	basePath    = "/ojs/v1"
)

// transport is a thin HTTP wrapper for OJS API communication.
type transport struct {
	baseURL   string
	client    *retryablehttp.Client
	authToken string
	headers   map[string]string
}

// do sends body and decodes the JSON response into result. A []byte body
// is sent as is; anything else is marshaled.
func (t *transport) do(ctx context.Context, method, path string, body any, result any) error {
	var payload []byte
	switch b := body.(type) {
	case nil:
	case []byte:
		payload = b
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return fmt.Errorf("httpq: marshal request: %w", err)
		}
		payload = data
	}

	var raw any
	if payload != nil {
		raw = payload
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, method, t.baseURL+path, raw)
	if err != nil {
		return fmt.Errorf("httpq: create request: %w", err)
	}

	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", contentType)
	req.Header.Set("OJS-Version", ojsVersion)
	if t.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+t.authToken)
	}
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("httpq: request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("httpq: read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return parseErrorResponse(respBody, resp.StatusCode)
	}
	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("httpq: unmarshal response: %w", err)
		}
	}
	return nil
}

func (t *transport) get(ctx context.Context, path string, result any) error {
	return t.do(ctx, http.MethodGet, path, nil, result)
}

func (t *transport) post(ctx context.Context, path string, body any, result any) error {
	return t.do(ctx, http.MethodPost, path, body, result)
}

func trimBase(u string) string {
	return strings.TrimRight(u, "/")
}
