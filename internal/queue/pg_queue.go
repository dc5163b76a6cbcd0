package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"lead-gateway/internal/models"
)

// PostgresQueue dispatches jobs from the jobs table using
// SELECT ... FOR UPDATE SKIP LOCKED, so concurrent workers never double-pick
// the same row.
type PostgresQueue struct {
	pool *pgxpool.Pool
}

// NewPostgresQueue builds a queue backed by the given pool.
func NewPostgresQueue(pool *pgxpool.Pool) *PostgresQueue {
	return &PostgresQueue{pool: pool}
}

func (q *PostgresQueue) Enqueue(ctx context.Context, job models.Job, runAt time.Time) (models.Job, error) {
	payloadJSON, err := json.Marshal(job.Payload)
	if err != nil {
		return models.Job{}, fmt.Errorf("marshal job payload: %w", err)
	}
	now := time.Now().UTC()
	var id int64
	err = q.pool.QueryRow(ctx, `
		INSERT INTO jobs (type, payload, state, attempts, next_run_at, created_at)
		VALUES ($1, $2, $3, 0, $4, $5)
		RETURNING id
	`, job.Type, payloadJSON, models.JobPending, runAt, now).Scan(&id)
	if err != nil {
		return models.Job{}, fmt.Errorf("insert job: %w", err)
	}
	job.ID = id
	job.State = models.JobPending
	job.Attempts = 0
	job.NextRunAt = runAt
	job.CreatedAt = now
	return job, nil
}

func (q *PostgresQueue) Dequeue(ctx context.Context) (models.Job, bool, error) {
	tx, err := q.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Job{}, false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
		SELECT id, type, payload, state, attempts, next_run_at, last_error, created_at, completed_at, failed_at
		FROM jobs
		WHERE state = $1 AND next_run_at <= NOW()
		ORDER BY next_run_at ASC
		LIMIT 1
		FOR UPDATE SKIP LOCKED
	`, models.JobPending)

	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Job{}, false, nil
		}
		return models.Job{}, false, err
	}

	if _, err := tx.Exec(ctx, `UPDATE jobs SET state = $2, attempts = attempts + 1 WHERE id = $1`, job.ID, models.JobProcessing); err != nil {
		return models.Job{}, false, fmt.Errorf("mark job processing: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return models.Job{}, false, fmt.Errorf("commit: %w", err)
	}
	job.State = models.JobProcessing
	job.Attempts++
	return job, true, nil
}

func (q *PostgresQueue) Complete(ctx context.Context, jobID int64) error {
	_, err := q.pool.Exec(ctx, `
		UPDATE jobs SET state = $2, completed_at = NOW() WHERE id = $1
	`, jobID, models.JobCompleted)
	return err
}

func (q *PostgresQueue) Retry(ctx context.Context, jobID int64, attempts int, nextRunAt time.Time, lastErr string) error {
	_, err := q.pool.Exec(ctx, `
		UPDATE jobs SET state = $2, attempts = $3, next_run_at = $4, last_error = $5 WHERE id = $1
	`, jobID, models.JobPending, attempts, nextRunAt, lastErr)
	return err
}

func (q *PostgresQueue) Fail(ctx context.Context, jobID int64, lastErr string) error {
	_, err := q.pool.Exec(ctx, `
		UPDATE jobs SET state = $2, last_error = $3, failed_at = NOW() WHERE id = $1
	`, jobID, models.JobFailed, lastErr)
	return err
}

func (q *PostgresQueue) Health(ctx context.Context) error {
	return q.pool.Ping(ctx)
}

func (q *PostgresQueue) Depth(ctx context.Context) (int64, error) {
	var n int64
	err := q.pool.QueryRow(ctx, `SELECT COUNT(*) FROM jobs WHERE state = $1`, models.JobPending).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count pending jobs: %w", err)
	}
	return n, nil
}

func scanJob(row pgx.Row) (models.Job, error) {
	var job models.Job
	var payloadJSON []byte
	var lastErr pgtype.Text
	var completedAt, failedAt pgtype.Timestamptz

	if err := row.Scan(&job.ID, &job.Type, &payloadJSON, &job.State, &job.Attempts, &job.NextRunAt, &lastErr, &job.CreatedAt, &completedAt, &failedAt); err != nil {
		return models.Job{}, err
	}
	if err := json.Unmarshal(payloadJSON, &job.Payload); err != nil {
		return models.Job{}, fmt.Errorf("unmarshal job payload: %w", err)
	}
	if lastErr.Valid {
		job.Error = &lastErr.String
	}
	if completedAt.Valid {
		t := completedAt.Time
		job.CompletedAt = &t
	}
	if failedAt.Valid {
		t := failedAt.Time
		job.FailedAt = &t
	}
	return job, nil
}
