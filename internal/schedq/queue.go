// Package schedq is the scheduled transition queue: a durable delayed-job
// store on a Redis sorted set scored by due time, with a dead-letter stream
// for jobs that exhaust their retry budget. Cancellation is advisory — a
// dequeue that loses the race against the worker's claim is an expected
// outcome, neutralized by the handler's own idempotency check.
package schedq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"podium.app/arena/common/id"
)

type Config struct {
	Key         string
	DeadStream  string
	MaxAttempts int
	BackoffBase time.Duration
}

func (c Config) withDefaults() Config {
	if c.Key == "" {
		c.Key = "arena:jobs"
	}
	if c.DeadStream == "" {
		c.DeadStream = "arena:jobs:dead"
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = 2 * time.Second
	}
	return c
}

// redisClient is the slice of the Redis API the queue uses, split out so
// tests can run the queue against an in-memory double.
type redisClient interface {
	ZAdd(ctx context.Context, key string, members ...redis.Z) *redis.IntCmd
	ZRange(ctx context.Context, key string, start, stop int64) *redis.StringSliceCmd
	ZRangeByScore(ctx context.Context, key string, opt *redis.ZRangeBy) *redis.StringSliceCmd
	ZRem(ctx context.Context, key string, members ...interface{}) *redis.IntCmd
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

type Queue struct {
	client redisClient
	cfg    Config
}

// New creates the queue on its own Redis client, independent from the event
// bus's client.
func New(client *redis.Client, cfg Config) *Queue {
	return &Queue{client: client, cfg: cfg.withDefaults()}
}

// Enqueue schedules the job to fire after delay. A non-positive delay means
// the caller has already performed the mutation the delay was counting down
// to, so the job is logged and dropped rather than scheduled.
func (q *Queue) Enqueue(ctx context.Context, job Job, delay time.Duration) error {
	if delay <= 0 {
		slog.WarnContext(ctx, "refusing to schedule job with non-positive delay",
			"event_type", job.EventType,
			"division_id", job.DivisionID,
			"delay_ms", delay.Milliseconds())
		return nil
	}

	job.ID = id.New()
	if job.Attempt <= 0 {
		job.Attempt = 1
	}
	if job.MaxAttempts <= 0 {
		job.MaxAttempts = q.cfg.MaxAttempts
	}
	now := time.Now()
	job.EnqueuedAt = now.UnixMilli()

	if err := q.add(ctx, job, now.Add(delay)); err != nil {
		slog.ErrorContext(ctx, "failed to enqueue scheduled job",
			"error", err,
			"event_type", job.EventType,
			"division_id", job.DivisionID)
		return err
	}

	slog.InfoContext(ctx, "enqueued scheduled job",
		"job_id", job.ID,
		"event_type", job.EventType,
		"division_id", job.DivisionID,
		"delay_ms", delay.Milliseconds())
	return nil
}

func (q *Queue) add(ctx context.Context, job Job, dueAt time.Time) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshaling job: %w", err)
	}
	if err := q.client.ZAdd(ctx, q.cfg.Key, redis.Z{
		Score:  float64(dueAt.UnixMilli()),
		Member: payload,
	}).Err(); err != nil {
		return fmt.Errorf("zadd job: %w", err)
	}
	return nil
}

// Dequeue removes every pending job whose type, division and supplied
// metadata fields match. Best-effort: a job the worker has already claimed
// is out of reach and stays that way. Returns the number removed.
func (q *Queue) Dequeue(ctx context.Context, eventType, divisionID string, metadata map[string]string) (int, error) {
	entries, err := q.client.ZRange(ctx, q.cfg.Key, 0, -1).Result()
	if err != nil {
		return 0, fmt.Errorf("scanning scheduled jobs: %w", err)
	}

	removed := 0
	for _, entry := range entries {
		var job Job
		if err := json.Unmarshal([]byte(entry), &job); err != nil {
			slog.WarnContext(ctx, "skipping malformed scheduled job entry", "error", err)
			continue
		}
		if !job.matches(eventType, divisionID, metadata) {
			continue
		}
		n, err := q.client.ZRem(ctx, q.cfg.Key, entry).Result()
		if err != nil {
			return removed, fmt.Errorf("removing scheduled job: %w", err)
		}
		if n > 0 {
			removed++
			slog.InfoContext(ctx, "dequeued scheduled job",
				"job_id", job.ID,
				"event_type", job.EventType,
				"division_id", job.DivisionID)
		}
	}

	return removed, nil
}

// ClaimDue pops jobs whose due time has passed. The claim is the ZREM: when
// a concurrent dequeue already removed the entry, ZREM reports zero and the
// job is not ours to run.
func (q *Queue) ClaimDue(ctx context.Context, now time.Time) ([]Job, error) {
	entries, err := q.client.ZRangeByScore(ctx, q.cfg.Key, &redis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("%d", now.UnixMilli()),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("reading due jobs: %w", err)
	}

	var claimed []Job
	for _, entry := range entries {
		n, err := q.client.ZRem(ctx, q.cfg.Key, entry).Result()
		if err != nil {
			return claimed, fmt.Errorf("claiming job: %w", err)
		}
		if n == 0 {
			continue // lost the claim to a dequeue or another consumer
		}

		var job Job
		if err := json.Unmarshal([]byte(entry), &job); err != nil {
			slog.WarnContext(ctx, "dropping malformed scheduled job entry", "error", err)
			continue
		}
		claimed = append(claimed, job)
	}

	return claimed, nil
}

// Retry re-schedules a failed job with exponential backoff, or retains it on
// the dead stream for operator inspection once its budget is spent.
func (q *Queue) Retry(ctx context.Context, job Job, cause error) error {
	job.LastError = cause.Error()

	if job.Attempt >= job.MaxAttempts {
		slog.ErrorContext(ctx, "scheduled job exhausted retries, retaining in dead stream",
			"job_id", job.ID,
			"event_type", job.EventType,
			"division_id", job.DivisionID,
			"attempts", job.Attempt,
			"final_error", job.LastError)
		return q.retain(ctx, job)
	}

	backoff := q.backoff(job.Attempt)
	job.Attempt++

	slog.WarnContext(ctx, "retrying scheduled job",
		"job_id", job.ID,
		"event_type", job.EventType,
		"attempt", job.Attempt,
		"backoff_ms", backoff.Milliseconds(),
		"reason", job.LastError)
	return q.add(ctx, job, time.Now().Add(backoff))
}

func (q *Queue) retain(ctx context.Context, job Job) error {
	metadata, err := json.Marshal(job.Metadata)
	if err != nil {
		return fmt.Errorf("marshaling dead job metadata: %w", err)
	}
	if err := q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: q.cfg.DeadStream,
		Values: map[string]any{
			"job_id":      job.ID,
			"event_type":  job.EventType,
			"division_id": job.DivisionID,
			"metadata":    metadata,
			"attempts":    job.Attempt,
			"error":       job.LastError,
		},
	}).Err(); err != nil {
		return fmt.Errorf("xadd dead job: %w", err)
	}
	return nil
}

// backoff doubles per attempt: base, 2·base, 4·base, ...
func (q *Queue) backoff(attempt int) time.Duration {
	d := q.cfg.BackoffBase
	for i := 1; i < attempt; i++ {
		d *= 2
	}
	return d
}
