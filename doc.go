// Package ojs is a background job SDK whose lifecycle can be observed
// through explicit notifications.
//
// The SDK has three parts:
//
//   - [Client]: builds job envelopes and hands them to an [Adapter].
//   - [Worker]: runs jobs with a composable middleware chain, retries
//     failures with backoff, and pulls from [Consumer] adapters with
//     configurable concurrency and graceful shutdown.
//   - [Notifier]: wraps every lifecycle step (enqueue, perform, retry,
//     discard) in a notification that a [Subscriber] can observe.
//
// Every job carries a [Headers] carrier that is serialized with it under
// [HeadersKey]. Subscribers use it to pass trace context from the process
// that enqueues a job to the process that performs it; see the
// instrumentation/jobtrace package.
//
// # Quick Start
//
// Enqueue a job:
//
//	notifier := ojs.NewNotifier()
//	jobtrace.Instrument(notifier)
//
//	client := ojs.NewClient(redisq.New(rdb), ojs.WithNotifier(notifier))
//	job, err := client.Enqueue(ctx, "email.send",
//	    ojs.Args{"to": "user@example.com"},
//	    ojs.WithQueue("email"),
//	)
//
// Process jobs:
//
//	worker := ojs.NewWorker(redisq.New(rdb),
//	    ojs.WithQueues("default", "email"),
//	    ojs.WithConcurrency(10),
//	    ojs.WithWorkerNotifier(notifier),
//	)
//	worker.Register("email.send", func(ctx ojs.JobContext) error {
//	    to := ctx.Job.Args["to"].(string)
//	    return mailer.Send(ctx.Context(), to)
//	})
//	worker.Start(ctx)
package ojs
