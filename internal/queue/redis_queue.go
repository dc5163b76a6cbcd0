package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"lead-gateway/internal/models"
)

// RedisQueue is the alternate queue transport: a streaming-broker-style
// implementation behind the same Queue interface as PostgresQueue, built on
// Redis sorted sets and a small Lua script for atomic lease acquisition.
type RedisQueue struct {
	client        *redis.Client
	readyKey      string
	inflightKey   string
	scheduledKey  string
	jobMetaPrefix string
	idCounterKey  string
	visibility    time.Duration
}

// NewRedisQueue builds a RedisQueue against the given client.
func NewRedisQueue(client *redis.Client, visibility time.Duration) *RedisQueue {
	if visibility <= 0 {
		visibility = 30 * time.Second
	}
	return &RedisQueue{
		client:        client,
		readyKey:      "leadq:ready",
		inflightKey:   "leadq:inflight",
		scheduledKey:  "leadq:scheduled",
		jobMetaPrefix: "leadq:jobmeta:",
		idCounterKey:  "leadq:next_id",
		visibility:    visibility,
	}
}

func (q *RedisQueue) metaKey(jobID int64) string {
	return fmt.Sprintf("%s%d", q.jobMetaPrefix, jobID)
}

type jobMeta struct {
	Type      string         `json:"type"`
	Payload   map[string]any `json:"payload"`
	Attempts  int            `json:"attempts"`
	CreatedAt time.Time      `json:"created_at"`
	LastError *string        `json:"last_error,omitempty"`
}

func (q *RedisQueue) Enqueue(ctx context.Context, job models.Job, runAt time.Time) (models.Job, error) {
	id, err := q.client.Incr(ctx, q.idCounterKey).Result()
	if err != nil {
		return models.Job{}, fmt.Errorf("allocate job id: %w", err)
	}
	now := time.Now().UTC()
	meta := jobMeta{Type: job.Type, Payload: job.Payload, Attempts: 0, CreatedAt: now}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return models.Job{}, fmt.Errorf("marshal job meta: %w", err)
	}

	pipe := q.client.TxPipeline()
	pipe.Set(ctx, q.metaKey(id), metaJSON, 0)
	if runAt.After(now) {
		pipe.ZAdd(ctx, q.scheduledKey, redis.Z{Score: float64(runAt.UnixMilli()), Member: id})
	} else {
		pipe.RPush(ctx, q.readyKey, id)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return models.Job{}, fmt.Errorf("enqueue job: %w", err)
	}

	job.ID = id
	job.State = models.JobPending
	job.NextRunAt = runAt
	job.CreatedAt = now
	return job, nil
}

// promoteScheduled moves due scheduled jobs into the ready list. Called from
// Dequeue so a caller that only loops on Dequeue still sees scheduled
// retries become visible once they're due.
func (q *RedisQueue) promoteScheduled(ctx context.Context, now time.Time) error {
	ids, err := q.client.ZRangeByScore(ctx, q.scheduledKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("%d", now.UnixMilli()),
	}).Result()
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	pipe := q.client.TxPipeline()
	for _, id := range ids {
		pipe.ZRem(ctx, q.scheduledKey, id)
		pipe.RPush(ctx, q.readyKey, id)
	}
	_, err = pipe.Exec(ctx)
	return err
}

func (q *RedisQueue) Dequeue(ctx context.Context) (models.Job, bool, error) {
	now := time.Now()
	if err := q.promoteScheduled(ctx, now); err != nil {
		return models.Job{}, false, fmt.Errorf("promote scheduled: %w", err)
	}

	res, err := dequeueScript.Run(ctx, q.client, []string{q.readyKey, q.inflightKey}, now.Add(q.visibility).UnixMilli()).Result()
	if err == redis.Nil {
		return models.Job{}, false, nil
	}
	if err != nil {
		return models.Job{}, false, fmt.Errorf("dequeue script: %w", err)
	}
	if res == nil {
		return models.Job{}, false, nil
	}

	idStr, ok := res.(string)
	if !ok {
		return models.Job{}, false, fmt.Errorf("unexpected dequeue result type %T", res)
	}

	metaJSON, err := q.client.Get(ctx, q.jobMetaPrefix+idStr).Result()
	if err != nil {
		return models.Job{}, false, fmt.Errorf("load job meta: %w", err)
	}
	var meta jobMeta
	if err := json.Unmarshal([]byte(metaJSON), &meta); err != nil {
		return models.Job{}, false, fmt.Errorf("unmarshal job meta: %w", err)
	}

	var id int64
	if _, err := fmt.Sscanf(idStr, "%d", &id); err != nil {
		return models.Job{}, false, fmt.Errorf("parse job id: %w", err)
	}

	meta.Attempts++
	updated, err := json.Marshal(meta)
	if err != nil {
		return models.Job{}, false, fmt.Errorf("marshal job meta: %w", err)
	}
	if err := q.client.Set(ctx, q.metaKey(id), updated, 0).Err(); err != nil {
		return models.Job{}, false, fmt.Errorf("store incremented attempts: %w", err)
	}

	return models.Job{
		ID:        id,
		Type:      meta.Type,
		Payload:   meta.Payload,
		Attempts:  meta.Attempts,
		State:     models.JobProcessing,
		CreatedAt: meta.CreatedAt,
		Error:     meta.LastError,
	}, true, nil
}

func (q *RedisQueue) Complete(ctx context.Context, jobID int64) error {
	pipe := q.client.TxPipeline()
	pipe.ZRem(ctx, q.inflightKey, jobID)
	pipe.Del(ctx, q.metaKey(jobID))
	_, err := pipe.Exec(ctx)
	return err
}

func (q *RedisQueue) Retry(ctx context.Context, jobID int64, attempts int, nextRunAt time.Time, lastErr string) error {
	metaJSON, err := q.client.Get(ctx, q.metaKey(jobID)).Result()
	if err != nil {
		return fmt.Errorf("load job meta: %w", err)
	}
	var meta jobMeta
	if err := json.Unmarshal([]byte(metaJSON), &meta); err != nil {
		return fmt.Errorf("unmarshal job meta: %w", err)
	}
	meta.Attempts = attempts
	meta.LastError = &lastErr
	updated, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshal job meta: %w", err)
	}

	pipe := q.client.TxPipeline()
	pipe.Set(ctx, q.metaKey(jobID), updated, 0)
	pipe.ZRem(ctx, q.inflightKey, jobID)
	pipe.ZAdd(ctx, q.scheduledKey, redis.Z{Score: float64(nextRunAt.UnixMilli()), Member: jobID})
	_, err = pipe.Exec(ctx)
	return err
}

func (q *RedisQueue) Fail(ctx context.Context, jobID int64, lastErr string) error {
	pipe := q.client.TxPipeline()
	pipe.ZRem(ctx, q.inflightKey, jobID)
	pipe.Del(ctx, q.metaKey(jobID))
	_, err := pipe.Exec(ctx)
	return err
}

func (q *RedisQueue) Health(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

// Depth counts jobs pending dispatch: those in the ready list plus those
// scheduled for a future retry. Inflight (leased) jobs are excluded.
func (q *RedisQueue) Depth(ctx context.Context) (int64, error) {
	ready, err := q.client.LLen(ctx, q.readyKey).Result()
	if err != nil {
		return 0, fmt.Errorf("count ready jobs: %w", err)
	}
	scheduled, err := q.client.ZCard(ctx, q.scheduledKey).Result()
	if err != nil {
		return 0, fmt.Errorf("count scheduled jobs: %w", err)
	}
	return ready + scheduled, nil
}

// RequeueExpired reclaims inflight jobs whose visibility deadline passed
// without a Complete/Retry/Fail call — a worker that crashed mid-delivery —
// and moves them back onto the ready list so another worker can pick them up.
func (q *RedisQueue) RequeueExpired(ctx context.Context, now time.Time, limit int64) ([]string, error) {
	ids, err := q.client.ZRangeByScore(ctx, q.inflightKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   fmt.Sprintf("%d", now.UnixMilli()),
		Count: limit,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("scan expired leases: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	pipe := q.client.TxPipeline()
	for _, id := range ids {
		pipe.ZRem(ctx, q.inflightKey, id)
		pipe.RPush(ctx, q.readyKey, id)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("requeue expired leases: %w", err)
	}
	return ids, nil
}

var dequeueScript = redis.NewScript(`
local job = redis.call('LPOP', KEYS[1])
if job then
  redis.call('ZADD', KEYS[2], ARGV[1], job)
  return job
end
return nil
`)
