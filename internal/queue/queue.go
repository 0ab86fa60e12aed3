// Package queue provides named, independently-paced job queues decoupling
// producers (API requests, the daily scheduler) from the worker pool that
// executes simulations.
package queue

import (
	"context"
	"time"
)

// Job is one unit of queued work
type Job struct {
	ID      string
	Payload []byte
	Attempt int
}

// JobHandler executes a dequeued job. A returned error triggers a retry with
// exponential backoff until the attempt budget is spent.
type JobHandler func(ctx context.Context, job Job) error

// ExhaustedFunc is invoked when a job has failed its final attempt
type ExhaustedFunc func(job Job, err error)

// EnqueueOptions tune a single enqueue
type EnqueueOptions struct {
	// Delay postpones the job's first pickup
	Delay time.Duration
}

// TaskQueue is the minimal surface the dispatcher and scheduler need. Enqueue
// is idempotent per job id: re-enqueueing an id that is already queued or
// active is absorbed. Any broker-backed implementation can replace the
// in-memory one behind this interface.
type TaskQueue interface {
	Enqueue(ctx context.Context, id string, payload []byte, opts EnqueueOptions) error
	// Remove drops a queued job. An active job cannot be aborted; Remove
	// reports whether anything was dropped.
	Remove(id string) bool
	// Pause stops new pickups without aborting in-flight work
	Pause()
	Resume()
	// ActiveCount reports jobs currently executing
	ActiveCount() int
	Name() string
	Close()
}
