package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hangulab/topik-backend/internal/model"
)

// ErrStatusConflict is returned when a conditional status update loses the
// compare-and-set race (e.g. a concurrent double submit).
var ErrStatusConflict = errors.New("session status changed concurrently")

// AttemptStats summarizes a user's past sessions against one exam.
type AttemptStats struct {
	InProgress int
	Submitted  int
	BestScore  *int
}

// SessionRepository handles exam session data access.
type SessionRepository struct {
	pool *pgxpool.Pool
}

// NewSessionRepository creates a new SessionRepository.
func NewSessionRepository(pool *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

const sessionColumns = `id, user_id, exam_id, status, remaining_seconds, expires_at,
	current_question_index, total_score, submitted_at, created_at, updated_at`

func scanSession(row pgx.Row) (*model.Session, error) {
	s := &model.Session{}
	err := row.Scan(&s.ID, &s.UserID, &s.ExamID, &s.Status, &s.RemainingSeconds, &s.ExpiresAt,
		&s.CurrentQuestionIndex, &s.TotalScore, &s.SubmittedAt, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// GetByID retrieves a session by id. Returns pgx.ErrNoRows when absent.
func (r *SessionRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Session, error) {
	return scanSession(r.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM topik_sessions WHERE id = $1`, id))
}

// GetActive retrieves the user's IN_PROGRESS session for an exam, if any.
// A partial unique index guarantees at most one such row per (user, exam).
func (r *SessionRepository) GetActive(ctx context.Context, userID, examID uuid.UUID) (*model.Session, error) {
	return scanSession(r.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+`
		 FROM topik_sessions
		 WHERE user_id = $1 AND exam_id = $2 AND status = $3`,
		userID, examID, model.SessionStatusInProgress))
}

// Create inserts a new IN_PROGRESS session. The partial unique index on
// (user_id, exam_id) WHERE status = 'IN_PROGRESS' turns a concurrent double
// start into pgx.ErrNoRows, which the caller resolves by re-reading.
func (r *SessionRepository) Create(ctx context.Context, s *model.Session) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO topik_sessions (user_id, exam_id, status, remaining_seconds, expires_at, current_question_index)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (user_id, exam_id) WHERE status = 'IN_PROGRESS' DO NOTHING
		 RETURNING id, created_at, updated_at`,
		s.UserID, s.ExamID, model.SessionStatusInProgress, s.RemainingSeconds, s.ExpiresAt, s.CurrentQuestionIndex,
	).Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
}

// SaveProgress persists the clamped timer and resume pointer of an active
// session. Last writer wins; racing autosaves converge on the final clamp.
func (r *SessionRepository) SaveProgress(ctx context.Context, id uuid.UUID, remainingSeconds, currentQuestionIndex int, expiresAt time.Time) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE topik_sessions
		 SET remaining_seconds = $1, current_question_index = $2, expires_at = $3, updated_at = NOW()
		 WHERE id = $4`,
		remainingSeconds, currentQuestionIndex, expiresAt, id)
	return err
}

// Expire transitions an overdue session to EXPIRED. Conditional on the
// session still being IN_PROGRESS so a racing submit is not clobbered.
func (r *SessionRepository) Expire(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE topik_sessions
		 SET status = $1, submitted_at = $2, remaining_seconds = 0, updated_at = NOW()
		 WHERE id = $3 AND status = $4`,
		model.SessionStatusExpired, at, id, model.SessionStatusInProgress)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrStatusConflict
	}
	return nil
}

// Submit persists the objective grading results and flips the session to
// SUBMITTED in one transaction. The status flip is a compare-and-set on
// IN_PROGRESS; losing that race returns ErrStatusConflict and rolls back
// the answer updates, so a double submit never double-counts.
func (r *SessionRepository) Submit(ctx context.Context, id uuid.UUID, scores []model.AnswerScore, total, remainingSeconds int, submittedAt time.Time) (*model.Session, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	for _, sc := range scores {
		if _, err := tx.Exec(ctx,
			`UPDATE topik_answers
			 SET is_correct = $1, score = $2, updated_at = NOW()
			 WHERE id = $3`,
			sc.IsCorrect, sc.Score, sc.AnswerID); err != nil {
			return nil, err
		}
	}

	session, err := scanSession(tx.QueryRow(ctx,
		`UPDATE topik_sessions
		 SET status = $1, submitted_at = $2, remaining_seconds = $3, total_score = $4, updated_at = NOW()
		 WHERE id = $5 AND status = $6
		 RETURNING `+sessionColumns,
		model.SessionStatusSubmitted, submittedAt, remainingSeconds, total, id, model.SessionStatusInProgress))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrStatusConflict
		}
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return session, nil
}

// AttemptStatsByExam aggregates the user's session counts and best submitted
// score per exam, for the catalog overlay.
func (r *SessionRepository) AttemptStatsByExam(ctx context.Context, userID uuid.UUID, examIDs []uuid.UUID) (map[uuid.UUID]AttemptStats, error) {
	if len(examIDs) == 0 {
		return map[uuid.UUID]AttemptStats{}, nil
	}

	rows, err := r.pool.Query(ctx,
		`SELECT exam_id,
		        COUNT(*) FILTER (WHERE status = $2),
		        COUNT(*) FILTER (WHERE status = $3),
		        MAX(total_score) FILTER (WHERE status = $3)
		 FROM topik_sessions
		 WHERE user_id = $1 AND exam_id = ANY($4)
		 GROUP BY exam_id`,
		userID, model.SessionStatusInProgress, model.SessionStatusSubmitted, examIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := make(map[uuid.UUID]AttemptStats)
	for rows.Next() {
		var examID uuid.UUID
		var s AttemptStats
		if err := rows.Scan(&examID, &s.InProgress, &s.Submitted, &s.BestScore); err != nil {
			return nil, err
		}
		stats[examID] = s
	}
	return stats, rows.Err()
}
