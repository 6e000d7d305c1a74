// Package queue provides the AMQP transport for the runner.
//
// The queue package consumes batch execution jobs from a task queue, runs
// them through the sandbox executor, and publishes the ordered batch results
// to a result queue. It maintains the connection with automatic reconnection
// and exponential backoff.
//
// Usage:
//
//	q := queue.New(logger, cfg)
//	if err := q.Connect(); err != nil {
//	    log.Fatal(err)
//	}
//	err = q.StartConsume(ctx, executor)
package queue
