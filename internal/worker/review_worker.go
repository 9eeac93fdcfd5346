package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/hangulab/topik-backend/internal/grader"
	"github.com/hangulab/topik-backend/internal/model"
	"github.com/hangulab/topik-backend/internal/queue"
	"github.com/hangulab/topik-backend/internal/repository"
)

// ReviewStore is the persistence surface the worker needs.
type ReviewStore interface {
	GetForReview(ctx context.Context, answerID uuid.UUID) (*repository.ReviewContext, error)
	ApplyReview(ctx context.Context, answerID, sessionID uuid.UUID, aiScore int, feedback model.AIFeedback, points int, reviewedAt time.Time) error
}

// Grader scores an essay answer against its question prompt on a 0-100 scale.
type Grader interface {
	Grade(ctx context.Context, questionPrompt, answerText string) (*grader.Result, error)
}

// ReviewWorker consumes essay review jobs, calls the grading oracle, and
// writes score plus feedback back to the answer. Failed jobs retry with
// backoff; after the last attempt a zero-score system-failure placeholder
// is persisted so the session's totals stop waiting on the answer.
type ReviewWorker struct {
	store        ReviewStore
	grader       Grader
	queue        *queue.Queue
	workers      int
	gradeTimeout time.Duration
	log          zerolog.Logger
}

func NewReviewWorker(store ReviewStore, g Grader, q *queue.Queue, workers int, gradeTimeout time.Duration, log zerolog.Logger) *ReviewWorker {
	if workers < 1 {
		workers = 1
	}
	if gradeTimeout <= 0 {
		gradeTimeout = time.Minute
	}
	return &ReviewWorker{
		store:        store,
		grader:       g,
		queue:        q,
		workers:      workers,
		gradeTimeout: gradeTimeout,
		log:          log.With().Str("component", "review_worker").Logger(),
	}
}

// Start runs the consumer loops plus the delayed-job promoter and blocks
// until ctx is canceled.
func (w *ReviewWorker) Start(ctx context.Context) error {
	w.log.Info().Int("workers", w.workers).Msg("ReviewWorker started")

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		w.queue.StartPromoter(ctx)
		return nil
	})

	for i := 0; i < w.workers; i++ {
		g.Go(func() error {
			w.runLoop(ctx)
			return nil
		})
	}

	return g.Wait()
}

func (w *ReviewWorker) runLoop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		job, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() == nil {
				w.log.Error().Err(err).Msg("Dequeue error")
			}
			continue
		}
		if job == nil {
			continue
		}

		if err := w.handle(ctx, job); err != nil {
			w.log.Error().Err(err).
				Str("job_id", job.ID).
				Int("attempt", job.Attempt).
				Msg("Review job failed")

			if job.FinalAttempt() {
				w.persistFailure(ctx, job)
			}
			if failErr := w.queue.Fail(ctx, job, err); failErr != nil {
				w.log.Error().Err(failErr).Str("job_id", job.ID).Msg("Requeue failed")
			}
		}
	}
}

func (w *ReviewWorker) handle(ctx context.Context, job *queue.Job) error {
	if job.Type != JobTypeReviewEssay {
		w.log.Warn().Str("job_type", job.Type).Msg("Unknown job type, dropping")
		return nil
	}

	var p ReviewEssayPayload
	if err := json.Unmarshal(job.Payload, &p); err != nil {
		w.log.Error().Err(err).Str("job_id", job.ID).Msg("Invalid payload, dropping")
		return nil
	}

	rc, err := w.store.GetForReview(ctx, p.AnswerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Answer deleted since enqueue. Nothing to review.
			return nil
		}
		return fmt.Errorf("load answer: %w", err)
	}

	// Stale or duplicate job: already reviewed, or not an essay at all.
	if rc.Answer.AIReviewedAt != nil || rc.QuestionType != model.QuestionTypeEssay {
		return nil
	}
	if rc.Answer.TextAnswer == nil || *rc.Answer.TextAnswer == "" {
		// Empty submissions are not sent to the oracle.
		return w.applyResult(ctx, rc, model.AIFeedback{
			DetailedFeedback: "No answer text was submitted.",
		})
	}

	// The oracle call gets its own deadline so a hung upstream fails the
	// job into the retry path instead of blocking the worker loop.
	gradeCtx, cancel := context.WithTimeout(ctx, w.gradeTimeout)
	result, err := w.grader.Grade(gradeCtx, rc.Prompt, *rc.Answer.TextAnswer)
	cancel()
	if err != nil {
		return fmt.Errorf("grade answer: %w", err)
	}

	return w.applyResult(ctx, rc, model.AIFeedback{
		Score:                  result.Score,
		Strengths:              result.Strengths,
		Weaknesses:             result.Weaknesses,
		ImprovementSuggestions: result.ImprovementSuggestions,
		DetailedFeedback:       result.DetailedFeedback,
	})
}

// applyResult converts the oracle's 0-100 score into the question's point
// weight and writes everything back, re-aggregating the session total.
func (w *ReviewWorker) applyResult(ctx context.Context, rc *repository.ReviewContext, feedback model.AIFeedback) error {
	points := int(math.Round(float64(feedback.Score) / 100 * float64(rc.ScoreWeight)))

	if err := w.store.ApplyReview(ctx, rc.Answer.ID, rc.Answer.SessionID, feedback.Score, feedback, points, time.Now()); err != nil {
		return fmt.Errorf("apply review: %w", err)
	}

	w.log.Info().
		Str("answer_id", rc.Answer.ID.String()).
		Int("ai_score", feedback.Score).
		Int("points", points).
		Msg("Essay review applied")
	return nil
}

// persistFailure writes the zero-score placeholder after the job's last
// attempt, using a fresh context so shutdown does not lose the write.
func (w *ReviewWorker) persistFailure(ctx context.Context, job *queue.Job) {
	var p ReviewEssayPayload
	if err := json.Unmarshal(job.Payload, &p); err != nil {
		return
	}

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	rc, err := w.store.GetForReview(writeCtx, p.AnswerID)
	if err != nil || rc.Answer.AIReviewedAt != nil {
		return
	}

	feedback := model.AIFeedback{
		DetailedFeedback: "Automatic review was not available for this answer.",
		SystemFailure:    true,
	}
	if err := w.store.ApplyReview(writeCtx, rc.Answer.ID, rc.Answer.SessionID, 0, feedback, 0, time.Now()); err != nil {
		w.log.Error().Err(err).Str("answer_id", p.AnswerID.String()).Msg("Persist failure placeholder failed")
		return
	}

	w.log.Warn().Str("answer_id", p.AnswerID.String()).Msg("Review exhausted retries, zero score recorded")
}
