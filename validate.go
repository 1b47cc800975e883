package ojs

import (
	"fmt"
	"regexp"
)

var (
	typePattern  = regexp.MustCompile(`^[a-z][a-z0-9_\-]*(\.[a-z][a-z0-9_\-]*)*$`)
	queuePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9\-\.]*$`)
)

const (
	maxTypeLength  = 255
	maxQueueLength = 128
)

// validateJob checks the envelope fields an adapter relies on before the
// job is handed over. Failures wrap ErrInvalidJob.
func validateJob(job *Job) error {
	if job == nil {
		return fmt.Errorf("%w: job must not be nil", ErrInvalidJob)
	}
	if err := validateType(job.Type); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidJob, err)
	}
	if err := validateQueue(job.Queue); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidJob, err)
	}
	return nil
}

func validateType(jobType string) error {
	if jobType == "" {
		return fmt.Errorf("job type is required")
	}
	if len(jobType) > maxTypeLength {
		return fmt.Errorf("job type must not exceed %d characters, got %d", maxTypeLength, len(jobType))
	}
	if !typePattern.MatchString(jobType) {
		return fmt.Errorf("invalid job type %q: must match pattern ^[a-z][a-z0-9_-]*(\\.[a-z][a-z0-9_-]*)*$", jobType)
	}
	return nil
}

// validateQueue validates a queue name.
func validateQueue(queue string) error {
	if queue == "" {
		return fmt.Errorf("queue name is required")
	}
	if len(queue) > maxQueueLength {
		return fmt.Errorf("queue name must not exceed %d characters, got %d", maxQueueLength, len(queue))
	}
	if !queuePattern.MatchString(queue) {
		return fmt.Errorf("invalid queue name %q: must match pattern ^[a-z0-9][a-z0-9\\-\\.]*$", queue)
	}
	return nil
}
