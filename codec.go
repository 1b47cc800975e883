package ojs

import (
	"bytes"
	"encoding/json"
	"fmt"
	"unicode/utf8"
)

// HeadersKey is the reserved field under which a job's Headers travel in
// its serialized form. It is removed again on decode and never shows up
// in Args or Meta.
const HeadersKey = "__otel_headers"

// HeaderCodec converts a Headers carrier to and from its wire form.
type HeaderCodec interface {
	EncodeHeaders(Headers) (json.RawMessage, error)
	DecodeHeaders(json.RawMessage) (Headers, error)
}

// JSONHeaderCodec stores the carrier as a flat JSON object of strings.
type JSONHeaderCodec struct{}

// EncodeHeaders encodes h. A nil carrier encodes as an empty object.
// Keys and values must be valid UTF-8.
func (JSONHeaderCodec) EncodeHeaders(h Headers) (json.RawMessage, error) {
	for k, v := range h {
		if !utf8.ValidString(k) {
			return nil, fmt.Errorf("ojs: header key %q is not valid UTF-8", k)
		}
		if !utf8.ValidString(v) {
			return nil, fmt.Errorf("ojs: header %q has a value that is not valid UTF-8", k)
		}
	}
	if h == nil {
		h = Headers{}
	}
	return json.Marshal(map[string]string(h))
}

// DecodeHeaders decodes raw. Absent or null input yields an empty carrier;
// anything other than an object of strings is an error.
func (JSONHeaderCodec) DecodeHeaders(raw json.RawMessage) (Headers, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return Headers{}, nil
	}
	var m map[string]string
	if err := json.Unmarshal(trimmed, &m); err != nil {
		return nil, fmt.Errorf("ojs: decode %s: %w", HeadersKey, err)
	}
	if m == nil {
		m = map[string]string{}
	}
	return Headers(m), nil
}

// Codec serializes job envelopes for adapters. Failures of the carrier
// alone never fail the job: they go to the error handler and the job
// travels without trace context.
type Codec struct {
	headers      HeaderCodec
	errorHandler ErrorHandler
}

// NewCodec returns a Codec. Nil arguments select JSONHeaderCodec and
// GlobalErrorHandler.
func NewCodec(headers HeaderCodec, eh ErrorHandler) *Codec {
	if headers == nil {
		headers = JSONHeaderCodec{}
	}
	if eh == nil {
		eh = GlobalErrorHandler
	}
	return &Codec{headers: headers, errorHandler: eh}
}

// DefaultCodec is used by clients and workers built without WithCodec.
var DefaultCodec = NewCodec(nil, nil)

// Encode serializes job with its carrier merged in under HeadersKey.
// Only failures of the envelope itself are returned.
func (c *Codec) Encode(job *Job) ([]byte, error) {
	raw, err := job.toWire()
	if err != nil {
		return nil, err
	}
	h, err := c.headers.EncodeHeaders(job.Headers)
	if err != nil {
		c.errorHandler.Handle(fmt.Errorf("ojs: job %s: encode headers: %w", job.ID, err))
	} else {
		raw.Headers = h
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("ojs: encode job %s: %w", job.ID, err)
	}
	return data, nil
}

// Decode restores a job from data. The carrier is taken out of the
// reserved field; if it cannot be read the job gets an empty carrier and
// the failure is reported.
func (c *Codec) Decode(data []byte) (*Job, error) {
	var raw jobJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", errInvalidPayload, err)
	}
	job := &Job{}
	job.fromWire(raw)
	h, err := c.headers.DecodeHeaders(raw.Headers)
	if err != nil {
		c.errorHandler.Handle(fmt.Errorf("ojs: job %s: decode headers: %w", job.ID, err))
		h = Headers{}
	}
	job.Headers = h
	return job, nil
}
