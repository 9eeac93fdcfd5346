package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/hangulab/topik-backend/internal/grader"
	"github.com/hangulab/topik-backend/internal/model"
	"github.com/hangulab/topik-backend/internal/queue"
	"github.com/hangulab/topik-backend/internal/repository"
)

type fakeReviewStore struct {
	contexts map[uuid.UUID]*repository.ReviewContext
	applied  []appliedReview
}

type appliedReview struct {
	answerID uuid.UUID
	aiScore  int
	feedback model.AIFeedback
	points   int
}

func (f *fakeReviewStore) GetForReview(_ context.Context, answerID uuid.UUID) (*repository.ReviewContext, error) {
	rc, ok := f.contexts[answerID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return rc, nil
}

func (f *fakeReviewStore) ApplyReview(_ context.Context, answerID, _ uuid.UUID, aiScore int, feedback model.AIFeedback, points int, _ time.Time) error {
	f.applied = append(f.applied, appliedReview{answerID: answerID, aiScore: aiScore, feedback: feedback, points: points})
	return nil
}

type fakeGrader struct {
	result *grader.Result
	err    error
	calls  int
}

func (f *fakeGrader) Grade(_ context.Context, _, _ string) (*grader.Result, error) {
	f.calls++
	return f.result, f.err
}

func newTestQueue(t *testing.T) *queue.Queue {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return queue.New(rdb, "review_test", queue.Options{MaxAttempts: 3, BackoffBase: time.Millisecond}, zerolog.Nop())
}

func essayContext(answerID uuid.UUID, text string, weight int) *repository.ReviewContext {
	return &repository.ReviewContext{
		Answer: model.Answer{
			ID:         answerID,
			SessionID:  uuid.New(),
			TextAnswer: &text,
		},
		QuestionType: model.QuestionTypeEssay,
		Prompt:       "Describe your hometown.",
		ScoreWeight:  weight,
	}
}

func TestReviewWorkerHandleAppliesWeightedScore(t *testing.T) {
	answerID := uuid.New()
	store := &fakeReviewStore{
		contexts: map[uuid.UUID]*repository.ReviewContext{
			answerID: essayContext(answerID, "저는 서울에 살아요.", 50),
		},
	}
	g := &fakeGrader{result: &grader.Result{
		Score:            84,
		DetailedFeedback: "Good structure.",
	}}

	w := NewReviewWorker(store, g, newTestQueue(t), 1, time.Minute, zerolog.Nop())
	job := makeJob(t, answerID)

	if err := w.handle(context.Background(), job); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(store.applied) != 1 {
		t.Fatalf("applied = %d, want 1", len(store.applied))
	}
	got := store.applied[0]
	if got.aiScore != 84 {
		t.Errorf("aiScore = %d, want 84", got.aiScore)
	}
	// round(84/100 * 50) = 42
	if got.points != 42 {
		t.Errorf("points = %d, want 42", got.points)
	}
	if got.feedback.SystemFailure {
		t.Error("feedback marked as system failure")
	}
}

func TestReviewWorkerHandleSkipsAlreadyReviewed(t *testing.T) {
	answerID := uuid.New()
	rc := essayContext(answerID, "text", 50)
	now := time.Now()
	rc.Answer.AIReviewedAt = &now

	store := &fakeReviewStore{contexts: map[uuid.UUID]*repository.ReviewContext{answerID: rc}}
	g := &fakeGrader{result: &grader.Result{Score: 90}}

	w := NewReviewWorker(store, g, newTestQueue(t), 1, time.Minute, zerolog.Nop())
	if err := w.handle(context.Background(), makeJob(t, answerID)); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if g.calls != 0 {
		t.Errorf("grader called %d times for reviewed answer", g.calls)
	}
	if len(store.applied) != 0 {
		t.Errorf("applied = %d, want 0", len(store.applied))
	}
}

func TestReviewWorkerHandleMissingAnswerIsNoop(t *testing.T) {
	store := &fakeReviewStore{contexts: map[uuid.UUID]*repository.ReviewContext{}}
	g := &fakeGrader{}

	w := NewReviewWorker(store, g, newTestQueue(t), 1, time.Minute, zerolog.Nop())
	if err := w.handle(context.Background(), makeJob(t, uuid.New())); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(store.applied) != 0 {
		t.Errorf("applied = %d, want 0", len(store.applied))
	}
}

func TestReviewWorkerHandleEmptyTextSkipsOracle(t *testing.T) {
	answerID := uuid.New()
	rc := essayContext(answerID, "", 50)
	store := &fakeReviewStore{contexts: map[uuid.UUID]*repository.ReviewContext{answerID: rc}}
	g := &fakeGrader{}

	w := NewReviewWorker(store, g, newTestQueue(t), 1, time.Minute, zerolog.Nop())
	if err := w.handle(context.Background(), makeJob(t, answerID)); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if g.calls != 0 {
		t.Errorf("grader called %d times for empty answer", g.calls)
	}
	if len(store.applied) != 1 {
		t.Fatalf("applied = %d, want 1", len(store.applied))
	}
	if store.applied[0].points != 0 {
		t.Errorf("points = %d, want 0", store.applied[0].points)
	}
}

func TestReviewWorkerGraderErrorPropagates(t *testing.T) {
	answerID := uuid.New()
	store := &fakeReviewStore{
		contexts: map[uuid.UUID]*repository.ReviewContext{
			answerID: essayContext(answerID, "text", 50),
		},
	}
	g := &fakeGrader{err: errors.New("upstream timeout")}

	w := NewReviewWorker(store, g, newTestQueue(t), 1, time.Minute, zerolog.Nop())
	if err := w.handle(context.Background(), makeJob(t, answerID)); err == nil {
		t.Fatal("handle returned nil, want error")
	}
	if len(store.applied) != 0 {
		t.Errorf("applied = %d, want 0", len(store.applied))
	}
}

// blockingGrader never answers; it only returns once its context expires.
type blockingGrader struct{}

func (blockingGrader) Grade(ctx context.Context, _, _ string) (*grader.Result, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestReviewWorkerHandleTimesOutHungOracle(t *testing.T) {
	answerID := uuid.New()
	store := &fakeReviewStore{
		contexts: map[uuid.UUID]*repository.ReviewContext{
			answerID: essayContext(answerID, "text", 50),
		},
	}

	w := NewReviewWorker(store, blockingGrader{}, newTestQueue(t), 1, 10*time.Millisecond, zerolog.Nop())

	job := makeJob(t, answerID)
	done := make(chan error, 1)
	go func() {
		done <- w.handle(context.Background(), job)
	}()

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("handle returned nil, want deadline error")
		}
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("err = %v, want context.DeadlineExceeded", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("handle did not return; grade call is not bounded")
	}
	if len(store.applied) != 0 {
		t.Errorf("applied = %d, want 0", len(store.applied))
	}
}

func TestReviewWorkerPersistFailureWritesPlaceholder(t *testing.T) {
	answerID := uuid.New()
	store := &fakeReviewStore{
		contexts: map[uuid.UUID]*repository.ReviewContext{
			answerID: essayContext(answerID, "text", 50),
		},
	}

	w := NewReviewWorker(store, &fakeGrader{}, newTestQueue(t), 1, time.Minute, zerolog.Nop())
	w.persistFailure(context.Background(), makeJob(t, answerID))

	if len(store.applied) != 1 {
		t.Fatalf("applied = %d, want 1", len(store.applied))
	}
	got := store.applied[0]
	if !got.feedback.SystemFailure {
		t.Error("placeholder not marked as system failure")
	}
	if got.points != 0 || got.aiScore != 0 {
		t.Errorf("placeholder score = (%d, %d), want zeros", got.aiScore, got.points)
	}
}

func makeJob(t *testing.T, answerID uuid.UUID) *queue.Job {
	t.Helper()
	q := newTestQueue(t)
	if err := q.Enqueue(context.Background(), JobTypeReviewEssay, ReviewEssayPayload{AnswerID: answerID}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	job, err := q.Dequeue(context.Background())
	if err != nil || job == nil {
		t.Fatalf("dequeue: job=%v err=%v", job, err)
	}
	return job
}
