package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hangulab/topik-backend/internal/model"
)

// ReviewContext is everything the essay review worker needs about one
// answer, re-read at processing time to avoid staleness.
type ReviewContext struct {
	Answer       model.Answer
	QuestionType model.QuestionType
	Prompt       string
	ScoreWeight  int
	ExamID       uuid.UUID
}

// AnswerRepository handles answer data access.
type AnswerRepository struct {
	pool *pgxpool.Pool
}

// NewAnswerRepository creates a new AnswerRepository.
func NewAnswerRepository(pool *pgxpool.Pool) *AnswerRepository {
	return &AnswerRepository{pool: pool}
}

const answerColumns = `id, session_id, question_id, selected_choice_id, text_answer, flagged,
	is_correct, score, ai_score, ai_feedback, ai_reviewed_at, created_at, updated_at`

func scanAnswer(row pgx.Row) (*model.Answer, error) {
	a := &model.Answer{}
	var feedback []byte
	err := row.Scan(&a.ID, &a.SessionID, &a.QuestionID, &a.SelectedChoiceID, &a.TextAnswer, &a.Flagged,
		&a.IsCorrect, &a.Score, &a.AIScore, &feedback, &a.AIReviewedAt, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(feedback) > 0 {
		var fb model.AIFeedback
		if err := json.Unmarshal(feedback, &fb); err != nil {
			return nil, err
		}
		a.AIFeedback = &fb
	}
	return a, nil
}

// Upsert creates or partially updates the answer keyed by (session_id,
// question_id). Nil patch fields leave the stored value unchanged, so rapid
// autosaves of different fields converge without clobbering each other.
func (r *AnswerRepository) Upsert(ctx context.Context, sessionID, questionID uuid.UUID, patch model.AnswerPatch) (*model.Answer, error) {
	return scanAnswer(r.pool.QueryRow(ctx,
		`INSERT INTO topik_answers (session_id, question_id, selected_choice_id, text_answer, flagged)
		 VALUES ($1, $2, $3, $4, COALESCE($5, FALSE))
		 ON CONFLICT (session_id, question_id) DO UPDATE SET
		   selected_choice_id = COALESCE(EXCLUDED.selected_choice_id, topik_answers.selected_choice_id),
		   text_answer        = COALESCE(EXCLUDED.text_answer, topik_answers.text_answer),
		   flagged            = COALESCE($5, topik_answers.flagged),
		   updated_at         = NOW()
		 RETURNING `+answerColumns,
		sessionID, questionID, patch.SelectedChoiceID, patch.TextAnswer, patch.Flagged))
}

// ListBySession retrieves every answer of a session.
func (r *AnswerRepository) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]model.Answer, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+answerColumns+`
		 FROM topik_answers
		 WHERE session_id = $1`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var answers []model.Answer
	for rows.Next() {
		a, err := scanAnswer(rows)
		if err != nil {
			return nil, err
		}
		answers = append(answers, *a)
	}
	return answers, rows.Err()
}

// ListUnreviewedEssays returns the ids of a session's essay answers that
// have not been AI-reviewed yet. These become one review job each.
func (r *AnswerRepository) ListUnreviewedEssays(ctx context.Context, sessionID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT a.id
		 FROM topik_answers a
		 JOIN topik_questions q ON a.question_id = q.id
		 WHERE a.session_id = $1 AND a.ai_reviewed_at IS NULL AND q.question_type = $2`,
		sessionID, model.QuestionTypeEssay)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// GetForReview re-fetches an answer with its question and exam context for
// the review worker. Returns pgx.ErrNoRows when the answer is gone.
func (r *AnswerRepository) GetForReview(ctx context.Context, answerID uuid.UUID) (*ReviewContext, error) {
	rc := &ReviewContext{}
	var feedback []byte
	err := r.pool.QueryRow(ctx,
		`SELECT a.id, a.session_id, a.question_id, a.selected_choice_id, a.text_answer, a.flagged,
		        a.is_correct, a.score, a.ai_score, a.ai_feedback, a.ai_reviewed_at, a.created_at, a.updated_at,
		        q.question_type, q.content, q.score_weight, s.exam_id
		 FROM topik_answers a
		 JOIN topik_questions q ON a.question_id = q.id
		 JOIN topik_sessions s ON a.session_id = s.id
		 WHERE a.id = $1`, answerID,
	).Scan(&rc.Answer.ID, &rc.Answer.SessionID, &rc.Answer.QuestionID, &rc.Answer.SelectedChoiceID,
		&rc.Answer.TextAnswer, &rc.Answer.Flagged, &rc.Answer.IsCorrect, &rc.Answer.Score,
		&rc.Answer.AIScore, &feedback, &rc.Answer.AIReviewedAt, &rc.Answer.CreatedAt, &rc.Answer.UpdatedAt,
		&rc.QuestionType, &rc.Prompt, &rc.ScoreWeight, &rc.ExamID)
	if err != nil {
		return nil, err
	}
	if len(feedback) > 0 {
		var fb model.AIFeedback
		if err := json.Unmarshal(feedback, &fb); err != nil {
			return nil, err
		}
		rc.Answer.AIFeedback = &fb
	}
	return rc, nil
}

// ApplyReview persists an AI review and re-aggregates the session total in
// one transaction, so the total is never stale relative to the answer score.
func (r *AnswerRepository) ApplyReview(ctx context.Context, answerID, sessionID uuid.UUID, aiScore int, feedback model.AIFeedback, points int, reviewedAt time.Time) error {
	raw, err := json.Marshal(feedback)
	if err != nil {
		return err
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`UPDATE topik_answers
		 SET ai_score = $1, ai_feedback = $2, ai_reviewed_at = $3, score = $4, updated_at = NOW()
		 WHERE id = $5`,
		aiScore, raw, reviewedAt, points, answerID); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx,
		`UPDATE topik_sessions
		 SET total_score = (
		       SELECT COALESCE(SUM(score), 0) FROM topik_answers WHERE session_id = $1
		     ),
		     updated_at = NOW()
		 WHERE id = $1`,
		sessionID); err != nil {
		return err
	}

	return tx.Commit(ctx)
}
