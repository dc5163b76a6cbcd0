// Package queue provides the job dispatch contract used to hand received
// leads off to the worker pool (§4.B). Two interchangeable transports
// implement it: a Postgres-backed queue built on SELECT ... FOR UPDATE
// SKIP LOCKED, and a Redis-backed queue built on a ready list, sorted sets,
// and a Lua script.
package queue

import (
	"context"
	"time"

	"lead-gateway/internal/models"
)

// Queue is the job dispatch contract. Implementations must guarantee that
// a dequeued job is not handed to a second worker until it is completed,
// retried, or failed, or until its lease expires.
type Queue interface {
	// Enqueue makes a job visible for dispatch, immediately or at runAt.
	Enqueue(ctx context.Context, job models.Job, runAt time.Time) (models.Job, error)

	// Dequeue leases the next available job, if any. It returns
	// (models.Job{}, false, nil) when no job is ready.
	Dequeue(ctx context.Context) (models.Job, bool, error)

	// Complete marks a leased job done and removes it from dispatch.
	Complete(ctx context.Context, jobID int64) error

	// Retry reschedules a leased job for a later attempt.
	Retry(ctx context.Context, jobID int64, attempts int, nextRunAt time.Time, lastErr string) error

	// Fail marks a leased job permanently failed and removes it from dispatch.
	Fail(ctx context.Context, jobID int64, lastErr string) error

	// Health reports whether the transport is reachable.
	Health(ctx context.Context) error

	// Depth reports the number of jobs currently pending dispatch (not yet
	// leased), used to drive the queue depth gauge.
	Depth(ctx context.Context) (int64, error)
}

// ExpiredLeaseReclaimer is implemented by queue transports that can return a
// job leased by a worker that died mid-processing to dispatch. RedisQueue
// implements it, since an inflight sorted-set entry otherwise sits there
// until its visibility deadline is reclaimed by someone. PostgresQueue does
// not: its Dequeue commits the job's move to processing in its own short
// transaction, so a job whose worker dies stays in processing and is not
// dispatched again.
type ExpiredLeaseReclaimer interface {
	// RequeueExpired moves jobs whose lease deadline has passed back onto
	// the ready list, returning the ids reclaimed.
	RequeueExpired(ctx context.Context, now time.Time, limit int64) ([]string, error)
}
