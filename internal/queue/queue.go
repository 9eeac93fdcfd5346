// Package queue implements a durable Redis-backed job queue with bounded
// retries, exponential backoff and a dead-letter list. Delivery is
// at-least-once; handlers must be idempotent.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	// DequeueTimeout bounds each BLPop so worker loops can observe
	// context cancellation.
	DequeueTimeout = 1 * time.Second

	promoteInterval = 500 * time.Millisecond
	promoteBatch    = 100
)

// Job is the envelope stored on the queue. Payload is re-marshalled JSON
// carrying only identifiers; workers re-read current state.
type Job struct {
	ID          string          `json:"id"`
	Type        string          `json:"type"`
	Payload     json.RawMessage `json:"payload"`
	Attempt     int             `json:"attempt"`
	MaxAttempts int             `json:"max_attempts"`
	EnqueuedAt  time.Time       `json:"enqueued_at"`
	LastError   string          `json:"last_error,omitempty"`
}

// FinalAttempt reports whether this delivery is the job's last; a failure
// now goes to the dead-letter list instead of being retried.
func (j *Job) FinalAttempt() bool {
	return j.Attempt >= j.MaxAttempts
}

// Options tunes retry behavior.
type Options struct {
	MaxAttempts int
	BackoffBase time.Duration
}

// Queue is a named Redis list queue with a delayed retry set and a
// dead-letter list alongside it.
type Queue struct {
	rdb  *redis.Client
	name string
	opts Options
	log  zerolog.Logger
}

// New creates a queue. name is the ready-list key; "<name>:delayed" and
// "<name>:dead" are derived from it.
func New(rdb *redis.Client, name string, opts Options, log zerolog.Logger) *Queue {
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 3
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = 2 * time.Second
	}
	return &Queue{
		rdb:  rdb,
		name: name,
		opts: opts,
		log:  log.With().Str("component", "queue").Str("queue", name).Logger(),
	}
}

func (q *Queue) delayedKey() string { return q.name + ":delayed" }
func (q *Queue) deadKey() string    { return q.name + ":dead" }

// Enqueue pushes a new job onto the ready list.
func (q *Queue) Enqueue(ctx context.Context, jobType string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	job := Job{
		ID:          uuid.New().String(),
		Type:        jobType,
		Payload:     raw,
		Attempt:     1,
		MaxAttempts: q.opts.MaxAttempts,
		EnqueuedAt:  time.Now().UTC(),
	}

	data, err := json.Marshal(&job)
	if err != nil {
		return err
	}
	return q.rdb.RPush(ctx, q.name, data).Err()
}

// Dequeue blocks up to DequeueTimeout for the next ready job. Returns
// (nil, nil) on timeout so callers can re-check their context.
func (q *Queue) Dequeue(ctx context.Context) (*Job, error) {
	item, err := q.rdb.BLPop(ctx, DequeueTimeout, q.name).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	if len(item) < 2 {
		return nil, nil
	}

	var job Job
	if err := json.Unmarshal([]byte(item[1]), &job); err != nil {
		q.log.Error().Err(err).Msg("Discarding malformed job payload")
		return nil, nil
	}
	return &job, nil
}

// Fail records a failed delivery. Jobs with attempts left are scheduled on
// the delayed set with exponential backoff (base * 2^(attempt-1)); exhausted
// jobs are retained on the dead-letter list for operator inspection.
func (q *Queue) Fail(ctx context.Context, job *Job, cause error) error {
	if cause != nil {
		job.LastError = cause.Error()
	}

	if job.FinalAttempt() {
		data, err := json.Marshal(job)
		if err != nil {
			return err
		}
		q.log.Warn().
			Str("job_id", job.ID).
			Str("job_type", job.Type).
			Int("attempts", job.Attempt).
			Msg("Job exhausted retries, moving to dead letter")
		return q.rdb.RPush(ctx, q.deadKey(), data).Err()
	}

	backoff := q.opts.BackoffBase << (job.Attempt - 1)
	job.Attempt++

	data, err := json.Marshal(job)
	if err != nil {
		return err
	}

	readyAt := time.Now().Add(backoff)
	return q.rdb.ZAdd(ctx, q.delayedKey(), redis.Z{
		Score:  float64(readyAt.UnixMilli()),
		Member: data,
	}).Err()
}

// DeadLetters returns up to limit retained failed jobs, oldest first.
func (q *Queue) DeadLetters(ctx context.Context, limit int64) ([]Job, error) {
	items, err := q.rdb.LRange(ctx, q.deadKey(), 0, limit-1).Result()
	if err != nil {
		return nil, err
	}

	jobs := make([]Job, 0, len(items))
	for _, item := range items {
		var job Job
		if err := json.Unmarshal([]byte(item), &job); err != nil {
			continue
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// StartPromoter moves due jobs from the delayed set back onto the ready
// list until the context is cancelled. Call in a goroutine.
func (q *Queue) StartPromoter(ctx context.Context) {
	ticker := time.NewTicker(promoteInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := q.promote(ctx); err != nil && ctx.Err() == nil {
				q.log.Error().Err(err).Msg("Promote error")
			}
		}
	}
}

// promote moves delayed jobs whose backoff has elapsed to the ready list.
func (q *Queue) promote(ctx context.Context) error {
	now := strconv.FormatInt(time.Now().UnixMilli(), 10)

	due, err := q.rdb.ZRangeByScore(ctx, q.delayedKey(), &redis.ZRangeBy{
		Min:   "-inf",
		Max:   now,
		Count: promoteBatch,
	}).Result()
	if err != nil {
		return err
	}

	for _, member := range due {
		// ZRem first so two promoters never double-deliver the same member.
		removed, err := q.rdb.ZRem(ctx, q.delayedKey(), member).Result()
		if err != nil {
			return err
		}
		if removed == 0 {
			continue
		}
		if err := q.rdb.RPush(ctx, q.name, member).Err(); err != nil {
			return err
		}
	}
	return nil
}
