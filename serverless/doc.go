// Package serverless runs OJS jobs delivered by push transports, such as
// AWS Lambda SQS triggers or HTTP push from an OJS server, through an
// [ojs.Performer], usually an [*ojs.Worker].
//
// # AWS Lambda with SQS
//
//	worker := ojs.NewWorker(adapter, ojs.WithWorkerNotifier(notifier))
//	worker.Register("email.send", sendEmail)
//
//	handler := serverless.NewHandler(worker)
//	lambda.Start(handler.HandleSQS)
//
// The worker applies the job's retry policy before HandleSQS sees the
// result. A failure the worker re-enqueued is not reported, so SQS never
// redelivers a job that already has a pending retry. To leave retries to
// SQS alone, enqueue jobs with a MaxAttempts of 1: the worker then stops
// after one attempt and the failure is reported for redelivery.
//
// # Push Delivery
//
// For HTTP push delivery (an OJS server POSTs jobs to a function URL),
// mount HandleHTTP. Failures are answered as not retryable because the
// worker has already scheduled any further attempt.
package serverless
