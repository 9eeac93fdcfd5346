package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/hangulab/topik-backend/internal/model"
	"github.com/hangulab/topik-backend/internal/repository"
	"github.com/hangulab/topik-backend/internal/scoring"
	"github.com/hangulab/topik-backend/internal/worker"
)

// minSessionSeconds is the floor for a session's initial time budget.
const minSessionSeconds = 60

// ExamCatalog reads immutable exam definitions.
type ExamCatalog interface {
	GetPublished(ctx context.Context, examID uuid.UUID) (*model.Exam, error)
	GetExam(ctx context.Context, examID uuid.UUID) (*model.Exam, error)
	ListSections(ctx context.Context, examID uuid.UUID) ([]model.Section, error)
	ListQuestions(ctx context.Context, examID uuid.UUID) ([]model.Question, error)
	GetQuestion(ctx context.Context, questionID uuid.UUID) (*model.Question, error)
}

// SessionStore persists exam sessions.
type SessionStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Session, error)
	GetActive(ctx context.Context, userID, examID uuid.UUID) (*model.Session, error)
	Create(ctx context.Context, s *model.Session) error
	SaveProgress(ctx context.Context, id uuid.UUID, remainingSeconds, currentQuestionIndex int, expiresAt time.Time) error
	Expire(ctx context.Context, id uuid.UUID, at time.Time) error
	Submit(ctx context.Context, id uuid.UUID, scores []model.AnswerScore, total, remainingSeconds int, submittedAt time.Time) (*model.Session, error)
}

// AnswerStore persists answers.
type AnswerStore interface {
	Upsert(ctx context.Context, sessionID, questionID uuid.UUID, patch model.AnswerPatch) (*model.Answer, error)
	ListBySession(ctx context.Context, sessionID uuid.UUID) ([]model.Answer, error)
	ListUnreviewedEssays(ctx context.Context, sessionID uuid.UUID) ([]uuid.UUID, error)
}

// ReviewEnqueuer hands essay answers off to the async review pipeline.
type ReviewEnqueuer interface {
	Enqueue(ctx context.Context, jobType string, payload any) error
}

// SessionService is the exam session state machine: start/resume, autosave,
// lazy expiry, submit with objective scoring, and review assembly.
type SessionService struct {
	catalog  ExamCatalog
	sessions SessionStore
	answers  AnswerStore
	reviews  ReviewEnqueuer
	log      zerolog.Logger
	now      func() time.Time
}

// NewSessionService creates a new SessionService.
func NewSessionService(
	catalog ExamCatalog,
	sessions SessionStore,
	answers AnswerStore,
	reviews ReviewEnqueuer,
	log zerolog.Logger,
) *SessionService {
	return &SessionService{
		catalog:  catalog,
		sessions: sessions,
		answers:  answers,
		reviews:  reviews,
		log:      log.With().Str("component", "session_service").Logger(),
		now:      time.Now,
	}
}

// Start begins a new attempt, or resumes the existing IN_PROGRESS session
// for this (user, exam) pair unchanged. At most one such session exists.
func (s *SessionService) Start(ctx context.Context, userID, examID uuid.UUID) (*model.Session, error) {
	exam, err := s.catalog.GetPublished(ctx, examID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrExamNotFound
		}
		return nil, fmt.Errorf("get exam: %w", err)
	}

	existing, err := s.sessions.GetActive(ctx, userID, examID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("check existing session: %w", err)
	}

	remainingSeconds := exam.DurationMinutes * 60
	if remainingSeconds < minSessionSeconds {
		remainingSeconds = minSessionSeconds
	}

	session := &model.Session{
		UserID:           userID,
		ExamID:           examID,
		Status:           model.SessionStatusInProgress,
		RemainingSeconds: remainingSeconds,
		ExpiresAt:        s.now().Add(time.Duration(remainingSeconds) * time.Second),
	}

	if err := s.sessions.Create(ctx, session); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Lost a concurrent start race; the winner's session is ours too.
			winner, fetchErr := s.sessions.GetActive(ctx, userID, examID)
			if fetchErr != nil {
				return nil, fmt.Errorf("concurrent start detected, but fetch failed: %w", fetchErr)
			}
			return winner, nil
		}
		return nil, fmt.Errorf("create session: %w", err)
	}

	return session, nil
}

// SaveAnswer upserts one answer and persists the session's clamped timer
// and resume pointer. Omitted payload fields leave stored values unchanged.
func (s *SessionService) SaveAnswer(ctx context.Context, sessionID, userID uuid.UUID, req model.SaveAnswerRequest) (*model.Answer, error) {
	session, exam, err := s.requireActiveSession(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}

	question, err := s.catalog.GetQuestion(ctx, req.QuestionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrQuestionNotFound
		}
		return nil, fmt.Errorf("get question: %w", err)
	}
	if question.ExamID != session.ExamID {
		return nil, ErrQuestionNotInExam
	}

	answer, err := s.answers.Upsert(ctx, sessionID, req.QuestionID, model.AnswerPatch{
		SelectedChoiceID: req.SelectedChoiceID,
		TextAnswer:       req.TextAnswer,
		Flagged:          req.Flagged,
	})
	if err != nil {
		return nil, fmt.Errorf("upsert answer: %w", err)
	}

	remainingSeconds := s.clampRemaining(req.RemainingSeconds, session, exam)
	currentQuestionIndex := session.CurrentQuestionIndex
	if req.CurrentQuestionIndex != nil && *req.CurrentQuestionIndex >= 0 {
		currentQuestionIndex = *req.CurrentQuestionIndex
	}
	expiresAt := s.now().Add(time.Duration(remainingSeconds) * time.Second)

	if err := s.sessions.SaveProgress(ctx, sessionID, remainingSeconds, currentQuestionIndex, expiresAt); err != nil {
		return nil, fmt.Errorf("save progress: %w", err)
	}

	return answer, nil
}

// Submit grades all objective answers, flips the session to SUBMITTED, and
// hands essay answers to the async review pipeline. The status flip is a
// compare-and-set, so a concurrent double submit fails cleanly.
func (s *SessionService) Submit(ctx context.Context, sessionID, userID uuid.UUID, req model.SubmitSessionRequest) (*model.Session, error) {
	session, exam, err := s.requireActiveSession(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}

	remainingSeconds := s.clampRemaining(req.RemainingSeconds, session, exam)

	questions, err := s.catalog.ListQuestions(ctx, session.ExamID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	answers, err := s.answers.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}

	answerByQuestion := make(map[uuid.UUID]*model.Answer, len(answers))
	for i := range answers {
		answerByQuestion[answers[i].QuestionID] = &answers[i]
	}

	var scores []model.AnswerScore
	total := 0
	for i := range questions {
		q := &questions[i]
		a := answerByQuestion[q.ID]
		if a == nil {
			continue
		}

		var result scoring.Result
		switch q.QuestionType {
		case model.QuestionTypeMCQ:
			result = scoring.ScoreMCQ(q, a.SelectedChoiceID)
		case model.QuestionTypeShortText:
			result = scoring.ScoreShortText(q, a.TextAnswer)
		default:
			// Essays contribute 0 until the async reviewer scores them.
			continue
		}

		total += result.Score
		scores = append(scores, model.AnswerScore{
			AnswerID:  a.ID,
			IsCorrect: result.IsCorrect,
			Score:     result.Score,
		})
	}

	updated, err := s.sessions.Submit(ctx, sessionID, scores, total, remainingSeconds, s.now())
	if err != nil {
		if errors.Is(err, repository.ErrStatusConflict) {
			return nil, ErrSubmitConflict
		}
		return nil, fmt.Errorf("submit session: %w", err)
	}

	s.enqueueEssayReviews(ctx, sessionID)

	return updated, nil
}

// enqueueEssayReviews hands every unreviewed essay answer of the session to
// the async pipeline. Enqueue failures are logged, never surfaced: the
// submit has already committed and must not fail after the fact.
func (s *SessionService) enqueueEssayReviews(ctx context.Context, sessionID uuid.UUID) {
	ids, err := s.answers.ListUnreviewedEssays(ctx, sessionID)
	if err != nil {
		s.log.Error().Err(err).Str("session_id", sessionID.String()).Msg("List essay answers for review failed")
		return
	}

	for _, answerID := range ids {
		payload := worker.ReviewEssayPayload{AnswerID: answerID}
		if err := s.reviews.Enqueue(ctx, worker.JobTypeReviewEssay, payload); err != nil {
			s.log.Error().Err(err).
				Str("answer_id", answerID.String()).
				Msg("Enqueue essay review failed")
		}
	}
}

// GetReview assembles the full result view of a session: answers joined
// with questions and choices, per-section aggregates, and the achieved
// TOPIK level. Works on terminal sessions; AI fields may still be pending.
func (s *SessionService) GetReview(ctx context.Context, sessionID, userID uuid.UUID) (*model.SessionReview, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	if session.UserID != userID {
		return nil, ErrForbidden
	}

	exam, err := s.catalog.GetExam(ctx, session.ExamID)
	if err != nil {
		return nil, fmt.Errorf("get exam: %w", err)
	}
	sections, err := s.catalog.ListSections(ctx, session.ExamID)
	if err != nil {
		return nil, fmt.Errorf("list sections: %w", err)
	}
	questions, err := s.catalog.ListQuestions(ctx, session.ExamID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	answers, err := s.answers.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}

	questionByID := make(map[uuid.UUID]*model.Question, len(questions))
	for i := range questions {
		questionByID[questions[i].ID] = &questions[i]
	}

	reviewAnswers := make([]model.ReviewAnswer, 0, len(answers))
	for i := range answers {
		ra := model.ReviewAnswer{Answer: answers[i]}
		if q := questionByID[answers[i].QuestionID]; q != nil {
			ra.Question = *q
			if answers[i].SelectedChoiceID != nil {
				for j := range q.Choices {
					if q.Choices[j].ID == *answers[i].SelectedChoiceID {
						ra.SelectedChoice = &q.Choices[j]
						break
					}
				}
			}
		}
		reviewAnswers = append(reviewAnswers, ra)
	}

	sectionScores := scoring.AggregateSections(questions, answers, sections)

	return &model.SessionReview{
		Session:       *session,
		Answers:       reviewAnswers,
		SectionScores: sectionScores,
		MaxTotalScore: scoring.MaxTotalScore(sectionScores),
		AchievedLevel: scoring.AchievedLevel(exam.TopikLevel, session.TotalScore),
	}, nil
}

// requireActiveSession is the shared guard for mutating operations:
// NotFound, then ownership, then status, then lazy expiry. An overdue
// session is transitioned to EXPIRED here, on touch, not by a sweeper.
func (s *SessionService) requireActiveSession(ctx context.Context, sessionID, userID uuid.UUID) (*model.Session, *model.Exam, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, ErrSessionNotFound
		}
		return nil, nil, fmt.Errorf("get session: %w", err)
	}
	if session.UserID != userID {
		return nil, nil, ErrForbidden
	}
	if session.Status != model.SessionStatusInProgress {
		return nil, nil, ErrSessionNotActive
	}

	if !session.ExpiresAt.After(s.now()) {
		if err := s.sessions.Expire(ctx, session.ID, s.now()); err != nil && !errors.Is(err, repository.ErrStatusConflict) {
			return nil, nil, fmt.Errorf("expire session: %w", err)
		}
		return nil, nil, ErrSessionExpired
	}

	exam, err := s.catalog.GetExam(ctx, session.ExamID)
	if err != nil {
		return nil, nil, fmt.Errorf("get exam: %w", err)
	}

	return session, exam, nil
}

// clampRemaining bounds a client-reported timer to [0, exam duration] and
// falls back to the stored value when absent. The server stays the source
// of truth for expiry.
func (s *SessionService) clampRemaining(reported *int, session *model.Session, exam *model.Exam) int {
	if reported == nil || *reported < 0 {
		return session.RemainingSeconds
	}
	maxSeconds := exam.DurationMinutes * 60
	if *reported > maxSeconds {
		return maxSeconds
	}
	return *reported
}
