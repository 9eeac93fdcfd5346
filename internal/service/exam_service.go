package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/hangulab/topik-backend/internal/model"
	"github.com/hangulab/topik-backend/internal/repository"
)

// ExamService serves the published exam catalog with the caller's attempt
// overlay, and the full exam tree for taking an exam.
type ExamService struct {
	exams    *repository.ExamRepository
	sessions *repository.SessionRepository
	answers  *repository.AnswerRepository
	log      zerolog.Logger
}

// NewExamService creates a new ExamService.
func NewExamService(
	exams *repository.ExamRepository,
	sessions *repository.SessionRepository,
	answers *repository.AnswerRepository,
	log zerolog.Logger,
) *ExamService {
	return &ExamService{
		exams:    exams,
		sessions: sessions,
		answers:  answers,
		log:      log.With().Str("component", "exam_service").Logger(),
	}
}

// ListPublished returns the published catalog, newest first, with each
// exam's sections and the caller's attempt summary.
func (s *ExamService) ListPublished(ctx context.Context, userID uuid.UUID, filters model.ExamListFilters) ([]model.ExamSummary, error) {
	exams, err := s.exams.ListPublished(ctx, filters)
	if err != nil {
		return nil, fmt.Errorf("list exams: %w", err)
	}

	examIDs := make([]uuid.UUID, len(exams))
	for i := range exams {
		examIDs[i] = exams[i].ID
	}
	stats, err := s.sessions.AttemptStatsByExam(ctx, userID, examIDs)
	if err != nil {
		return nil, fmt.Errorf("attempt stats: %w", err)
	}

	summaries := make([]model.ExamSummary, 0, len(exams))
	for i := range exams {
		sections, err := s.exams.ListSections(ctx, exams[i].ID)
		if err != nil {
			return nil, fmt.Errorf("list sections: %w", err)
		}

		st := stats[exams[i].ID]
		summaries = append(summaries, model.ExamSummary{
			Exam:        exams[i],
			Sections:    sections,
			MyStatus:    attemptStatus(st),
			MyAttempts:  st.Submitted,
			MyBestScore: st.BestScore,
		})
	}
	return summaries, nil
}

// GetDetail returns the full question tree of a published exam with answer
// keys stripped, plus the caller's resumable session and its saved answers
// when one exists.
func (s *ExamService) GetDetail(ctx context.Context, userID, examID uuid.UUID) (*model.ExamDetail, error) {
	exam, err := s.exams.GetPublished(ctx, examID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrExamNotFound
		}
		return nil, fmt.Errorf("get exam: %w", err)
	}

	sections, err := s.exams.ListSections(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("list sections: %w", err)
	}
	questions, err := s.exams.ListQuestions(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}

	questionsBySection := make(map[uuid.UUID][]model.Question, len(sections))
	for i := range questions {
		q := questions[i]
		stripAnswerKey(&q)
		questionsBySection[q.SectionID] = append(questionsBySection[q.SectionID], q)
	}
	for i := range sections {
		sections[i].Questions = questionsBySection[sections[i].ID]
	}

	detail := &model.ExamDetail{
		Exam:     *exam,
		Sections: sections,
	}

	session, err := s.sessions.GetActive(ctx, userID, examID)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("get active session: %w", err)
		}
		return detail, nil
	}

	answers, err := s.answers.ListBySession(ctx, session.ID)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}
	detail.MySession = session
	detail.MyAnswers = answers
	return detail, nil
}

// stripAnswerKey removes grading material before an exam tree is sent to a
// test taker.
func stripAnswerKey(q *model.Question) {
	q.CorrectTextAnswer = nil
	q.Explanation = nil
	for i := range q.Choices {
		q.Choices[i].IsCorrect = false
	}
}

func attemptStatus(st repository.AttemptStats) string {
	switch {
	case st.InProgress > 0:
		return "IN_PROGRESS"
	case st.Submitted > 0:
		return "COMPLETED"
	default:
		return "NOT_STARTED"
	}
}
