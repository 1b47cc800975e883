package ojstesting

import (
	"testing"

	ojs "github.com/openjobspec/ojs-jobtrace"
)

// FakeClient creates an [ojs.Client] backed by the fake store.
// All Enqueue and EnqueueBatch calls are recorded in-memory and can be
// verified with [AssertEnqueued], [RefuteEnqueued], and [AllEnqueued].
//
// FakeClient must be called after [Fake]:
//
//	func TestOrderFlow(t *testing.T) {
//	    store := ojstesting.Fake(t)
//	    client := ojstesting.FakeClient(t)
//	    // use client.Enqueue() in production code under test
//	    ojstesting.AssertEnqueued(t, "email.send")
//	}
func FakeClient(t *testing.T, opts ...ojs.ClientOption) *ojs.Client {
	t.Helper()
	return ojs.NewClient(mustStore(t), opts...)
}

// FakeWorker creates an [ojs.Worker] on the fake store and binds it, so
// [Drain] runs jobs through the worker's handlers and middleware.
// Retries the worker schedules are recorded in the store.
func FakeWorker(t *testing.T, opts ...ojs.WorkerOption) *ojs.Worker {
	t.Helper()
	s := mustStore(t)
	w := ojs.NewWorker(s, opts...)
	s.Bind(w)
	return w
}
