package ojs

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateType(t *testing.T) {
	tests := []struct {
		name    string
		jobType string
		wantErr bool
	}{
		{"dotted type", "email.send", false},
		{"single segment", "process", false},
		{"empty type", "", true},
		{"uppercase", "EmailSend", true},
		{"leading digit", "1job", true},
		{"type too long", strings.Repeat("a", 256), true},
		{"type at max length", strings.Repeat("a", 255), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateType(tt.jobType)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateType() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateQueue(t *testing.T) {
	tests := []struct {
		name    string
		queue   string
		wantErr bool
	}{
		{"valid queue", "default", false},
		{"empty queue", "", true},
		{"valid with hyphens", "my-queue", false},
		{"valid with dots", "queue.v2", false},
		{"uppercase invalid", "MyQueue", true},
		{"too long", strings.Repeat("a", 129), true},
		{"at max length", strings.Repeat("a", 128), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateQueue(tt.queue)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateQueue() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateJob(t *testing.T) {
	if err := validateJob(nil); err == nil {
		t.Error("expected error for nil job")
	}
	if err := validateJob(NewJob("email.send", nil)); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := validateJob(NewJob("email.send", nil, WithQueue("Bad Queue"))); err == nil {
		t.Error("expected error for invalid queue")
	}
}

func TestValidateJobWrapsErrInvalidJob(t *testing.T) {
	for _, job := range []*Job{nil, {Type: "Bad", Queue: "default"}, {Type: "ok", Queue: ""}} {
		err := validateJob(job)
		if !errors.Is(err, ErrInvalidJob) {
			t.Errorf("validateJob(%v) = %v, want ErrInvalidJob", job, err)
		}
	}
	if err := validateJob(&Job{Type: "ok", Queue: "default"}); err != nil {
		t.Errorf("validateJob() unexpected error: %v", err)
	}
}
