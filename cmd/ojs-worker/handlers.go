package main

import (
	"errors"
	"fmt"
	"time"

	ojs "github.com/openjobspec/ojs-jobtrace"
	"go.uber.org/zap"
)

var errMissingArg = errors.New("missing argument")

// registerHandlers installs the demo job types served by this binary.
func registerHandlers(w *ojs.Worker, logger *zap.Logger) {
	w.Register("log.message", func(ctx ojs.JobContext) error {
		msg, _ := ctx.Job.Args["message"].(string)
		if msg == "" {
			return ojs.NonRetryable(fmt.Errorf("log.message: %w: message", errMissingArg))
		}
		logger.Info(msg,
			zap.String("job.id", ctx.Job.ID),
			zap.Int("attempt", ctx.Attempt),
		)
		return nil
	})

	// sleep holds a slot for the given duration, or until the job's
	// context is cancelled.
	w.Register("sleep", func(ctx ojs.JobContext) error {
		raw, _ := ctx.Job.Args["duration"].(string)
		d, err := time.ParseDuration(raw)
		if err != nil {
			return ojs.NonRetryable(fmt.Errorf("sleep: %w", err))
		}
		select {
		case <-time.After(d):
			return nil
		case <-ctx.Context().Done():
			return ctx.Context().Err()
		}
	})

	// fail fails until the requested attempt, exercising retries.
	w.Register("fail", func(ctx ojs.JobContext) error {
		until, _ := ctx.Job.Args["until_attempt"].(float64)
		if ctx.Attempt < int(until) {
			return fmt.Errorf("fail: attempt %d of %d", ctx.Attempt, int(until))
		}
		return nil
	})
}
