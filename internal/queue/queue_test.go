package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func newTestQueue(t *testing.T, opts Options) (*Queue, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return New(client, "test_queue", opts, zerolog.Nop()), mr
}

type testPayload struct {
	AnswerID string `json:"answer_id"`
}

func TestEnqueueDequeue(t *testing.T) {
	q, _ := newTestQueue(t, Options{MaxAttempts: 3, BackoffBase: time.Second})
	ctx := context.Background()

	if err := q.Enqueue(ctx, "review_essay", testPayload{AnswerID: "a1"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	job, err := q.Dequeue(ctx)
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if job == nil {
		t.Fatal("expected a job, got nil")
	}
	if job.Type != "review_essay" || job.Attempt != 1 || job.MaxAttempts != 3 {
		t.Errorf("unexpected job envelope: %+v", job)
	}

	var p testPayload
	if err := json.Unmarshal(job.Payload, &p); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if p.AnswerID != "a1" {
		t.Errorf("payload answer id = %q, want a1", p.AnswerID)
	}
}

func TestDequeueTimeoutReturnsNil(t *testing.T) {
	q, _ := newTestQueue(t, Options{})
	job, err := q.Dequeue(context.Background())
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if job != nil {
		t.Fatalf("expected nil job on empty queue, got %+v", job)
	}
}

func TestFailSchedulesRetryWithBackoff(t *testing.T) {
	q, mr := newTestQueue(t, Options{MaxAttempts: 3, BackoffBase: 100 * time.Millisecond})
	ctx := context.Background()

	if err := q.Enqueue(ctx, "review_essay", testPayload{AnswerID: "a1"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	job, _ := q.Dequeue(ctx)

	if err := q.Fail(ctx, job, errors.New("oracle timeout")); err != nil {
		t.Fatalf("fail: %v", err)
	}

	// Not ready yet: still on the delayed set, not the ready list.
	if got, _ := q.Dequeue(ctx); got != nil {
		t.Fatalf("job should be delayed, got %+v", got)
	}
	if n, _ := mr.ZMembers("test_queue:delayed"); len(n) != 1 {
		t.Fatalf("expected 1 delayed member, got %d", len(n))
	}

	// After the backoff elapses, promote moves it back.
	time.Sleep(150 * time.Millisecond)
	if err := q.promote(ctx); err != nil {
		t.Fatalf("promote: %v", err)
	}

	retried, err := q.Dequeue(ctx)
	if err != nil {
		t.Fatalf("dequeue retried: %v", err)
	}
	if retried == nil {
		t.Fatal("expected promoted job")
	}
	if retried.Attempt != 2 {
		t.Errorf("attempt = %d, want 2", retried.Attempt)
	}
	if retried.LastError != "oracle timeout" {
		t.Errorf("last error = %q", retried.LastError)
	}
}

func TestFailAfterMaxAttemptsGoesToDeadLetter(t *testing.T) {
	q, _ := newTestQueue(t, Options{MaxAttempts: 2, BackoffBase: time.Millisecond})
	ctx := context.Background()

	if err := q.Enqueue(ctx, "review_essay", testPayload{AnswerID: "a1"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	job, _ := q.Dequeue(ctx)
	job.Attempt = job.MaxAttempts // simulate the final delivery
	if !job.FinalAttempt() {
		t.Fatal("expected final attempt")
	}

	if err := q.Fail(ctx, job, errors.New("still failing")); err != nil {
		t.Fatalf("fail: %v", err)
	}

	dead, err := q.DeadLetters(ctx, 10)
	if err != nil {
		t.Fatalf("dead letters: %v", err)
	}
	if len(dead) != 1 {
		t.Fatalf("expected 1 dead letter, got %d", len(dead))
	}
	if dead[0].LastError != "still failing" {
		t.Errorf("dead letter last error = %q", dead[0].LastError)
	}

	// Dead jobs are never re-delivered.
	if got, _ := q.Dequeue(ctx); got != nil {
		t.Fatalf("dead job must not be redelivered, got %+v", got)
	}
}

func TestPromoteLeavesFutureJobsDelayed(t *testing.T) {
	q, mr := newTestQueue(t, Options{MaxAttempts: 3, BackoffBase: time.Hour})
	ctx := context.Background()

	_ = q.Enqueue(ctx, "review_essay", testPayload{AnswerID: "a1"})
	job, _ := q.Dequeue(ctx)
	_ = q.Fail(ctx, job, errors.New("boom"))

	if err := q.promote(ctx); err != nil {
		t.Fatalf("promote: %v", err)
	}
	if got, _ := q.Dequeue(ctx); got != nil {
		t.Fatalf("job with pending backoff must stay delayed, got %+v", got)
	}
	if members, _ := mr.ZMembers("test_queue:delayed"); len(members) != 1 {
		t.Fatalf("expected delayed member to remain, got %d", len(members))
	}
}
