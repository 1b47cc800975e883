package main

import (
	"context"
	"testing"

	ojs "github.com/openjobspec/ojs-jobtrace"
	"github.com/openjobspec/ojs-jobtrace/ojstesting"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setup(t *testing.T) *ojs.Client {
	t.Helper()
	ojstesting.Fake(t)
	w := ojstesting.FakeWorker(t)
	registerHandlers(w, zap.NewNop())
	return ojstesting.FakeClient(t)
}

func TestLogMessage(t *testing.T) {
	client := setup(t)
	_, err := client.Enqueue(context.Background(), "log.message", ojs.Args{"message": "hello"})
	require.NoError(t, err)
	ojstesting.Drain(t)

	jobs := ojstesting.AllEnqueued("log.message")
	require.Len(t, jobs, 1)
	assert.Equal(t, ojstesting.StateCompleted, jobs[0].State)
}

func TestLogMessageWithoutMessageIsDiscarded(t *testing.T) {
	client := setup(t)
	_, err := client.Enqueue(context.Background(), "log.message", nil)
	require.NoError(t, err)
	ojstesting.Drain(t)

	// Not retryable, so nothing was re-enqueued.
	assert.Len(t, ojstesting.AllEnqueued("log.message"), 1)
	assert.Equal(t, ojstesting.StateDiscarded, ojstesting.AllEnqueued("log.message")[0].State)
}

func TestSleep(t *testing.T) {
	client := setup(t)
	_, err := client.Enqueue(context.Background(), "sleep", ojs.Args{"duration": "1ms"})
	require.NoError(t, err)
	_, err = client.Enqueue(context.Background(), "sleep", ojs.Args{"duration": "later"})
	require.NoError(t, err)
	ojstesting.Drain(t)

	jobs := ojstesting.AllEnqueued("sleep")
	require.Len(t, jobs, 2)
	assert.Equal(t, ojstesting.StateCompleted, jobs[0].State)
	assert.Equal(t, ojstesting.StateDiscarded, jobs[1].State)
}

func TestFailRetriesUntilAttempt(t *testing.T) {
	client := setup(t)
	_, err := client.Enqueue(context.Background(), "fail", ojs.Args{"until_attempt": 2})
	require.NoError(t, err)

	ojstesting.Drain(t)
	require.Len(t, ojstesting.AllEnqueued("fail"), 2)

	ojstesting.DrainScheduled(t)
	jobs := ojstesting.AllEnqueued("fail")
	require.Len(t, jobs, 2)
	assert.Equal(t, ojstesting.StateCompleted, jobs[1].State)
}
