package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hangulab/topik-backend/internal/model"
)

// ExamRepository is the read-only catalog accessor over exam, section,
// question and choice definitions.
type ExamRepository struct {
	pool *pgxpool.Pool
}

// NewExamRepository creates a new ExamRepository.
func NewExamRepository(pool *pgxpool.Pool) *ExamRepository {
	return &ExamRepository{pool: pool}
}

// GetPublished retrieves a published exam by id. Returns pgx.ErrNoRows when
// the exam does not exist or is not published.
func (r *ExamRepository) GetPublished(ctx context.Context, examID uuid.UUID) (*model.Exam, error) {
	e := &model.Exam{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, title, year, topik_level, level, duration_minutes, total_questions, status, created_at, updated_at
		 FROM topik_exams
		 WHERE id = $1 AND status = $2`, examID, model.ExamStatusPublished,
	).Scan(&e.ID, &e.Title, &e.Year, &e.TopikLevel, &e.Level, &e.DurationMinutes, &e.TotalQuestions, &e.Status, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return e, nil
}

// GetExam retrieves an exam by id regardless of status. Review of an old
// session must keep working after its exam is archived.
func (r *ExamRepository) GetExam(ctx context.Context, examID uuid.UUID) (*model.Exam, error) {
	e := &model.Exam{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, title, year, topik_level, level, duration_minutes, total_questions, status, created_at, updated_at
		 FROM topik_exams
		 WHERE id = $1`, examID,
	).Scan(&e.ID, &e.Title, &e.Year, &e.TopikLevel, &e.Level, &e.DurationMinutes, &e.TotalQuestions, &e.Status, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return e, nil
}

// ListPublished retrieves published exams with their section summaries,
// newest first, narrowed by the optional filters.
func (r *ExamRepository) ListPublished(ctx context.Context, filters model.ExamListFilters) ([]model.Exam, error) {
	query := `SELECT id, title, year, topik_level, level, duration_minutes, total_questions, status, created_at, updated_at
		FROM topik_exams
		WHERE status = $1`
	args := []any{model.ExamStatusPublished}

	if filters.TopikLevel != nil {
		args = append(args, *filters.TopikLevel)
		query += fmt.Sprintf(" AND topik_level = $%d", len(args))
	}
	if filters.Year != nil {
		args = append(args, *filters.Year)
		query += fmt.Sprintf(" AND year = $%d", len(args))
	}
	if len(filters.SectionTypes) > 0 {
		args = append(args, filters.SectionTypes)
		query += fmt.Sprintf(` AND EXISTS (
			SELECT 1 FROM topik_sections s
			WHERE s.exam_id = topik_exams.id AND s.type = ANY($%d)
		)`, len(args))
	}

	query += " ORDER BY year DESC, created_at DESC"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var exams []model.Exam
	for rows.Next() {
		var e model.Exam
		if err := rows.Scan(&e.ID, &e.Title, &e.Year, &e.TopikLevel, &e.Level, &e.DurationMinutes, &e.TotalQuestions, &e.Status, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		exams = append(exams, e)
	}
	return exams, rows.Err()
}

// ListSections retrieves the ordered sections of an exam, without questions.
func (r *ExamRepository) ListSections(ctx context.Context, examID uuid.UUID) ([]model.Section, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, exam_id, type, order_index, duration_minutes, max_score
		 FROM topik_sections
		 WHERE exam_id = $1
		 ORDER BY order_index`, examID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sections []model.Section
	for rows.Next() {
		var s model.Section
		if err := rows.Scan(&s.ID, &s.ExamID, &s.Type, &s.OrderIndex, &s.DurationMinutes, &s.MaxScore); err != nil {
			return nil, err
		}
		sections = append(sections, s)
	}
	return sections, rows.Err()
}

// ListQuestions retrieves every question of an exam with its choices, in
// section order then question order. Each question carries its section type.
func (r *ExamRepository) ListQuestions(ctx context.Context, examID uuid.UUID) ([]model.Question, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT q.id, q.section_id, s.type, q.question_type, q.order_index, q.content,
		        q.audio_url, q.listening_script, q.correct_text_answer, q.score_weight, q.explanation
		 FROM topik_questions q
		 JOIN topik_sections s ON q.section_id = s.id
		 WHERE s.exam_id = $1
		 ORDER BY s.order_index, q.order_index`, examID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var questions []model.Question
	for rows.Next() {
		var q model.Question
		if err := rows.Scan(&q.ID, &q.SectionID, &q.SectionType, &q.QuestionType, &q.OrderIndex, &q.Content,
			&q.AudioURL, &q.ListeningScript, &q.CorrectTextAnswer, &q.ScoreWeight, &q.Explanation); err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := r.attachChoices(ctx, questions); err != nil {
		return nil, err
	}
	return questions, nil
}

// GetQuestion retrieves a single question with its choices and section type.
// Returns pgx.ErrNoRows when absent.
func (r *ExamRepository) GetQuestion(ctx context.Context, questionID uuid.UUID) (*model.Question, error) {
	q := &model.Question{}
	err := r.pool.QueryRow(ctx,
		`SELECT q.id, q.section_id, s.type, s.exam_id, q.question_type, q.order_index, q.content,
		        q.audio_url, q.listening_script, q.correct_text_answer, q.score_weight, q.explanation
		 FROM topik_questions q
		 JOIN topik_sections s ON q.section_id = s.id
		 WHERE q.id = $1`, questionID,
	).Scan(&q.ID, &q.SectionID, &q.SectionType, &q.ExamID, &q.QuestionType, &q.OrderIndex, &q.Content,
		&q.AudioURL, &q.ListeningScript, &q.CorrectTextAnswer, &q.ScoreWeight, &q.Explanation)
	if err != nil {
		return nil, err
	}

	questions := []model.Question{*q}
	if err := r.attachChoices(ctx, questions); err != nil {
		return nil, err
	}
	return &questions[0], nil
}

// attachChoices loads the choices of the given questions in one query.
func (r *ExamRepository) attachChoices(ctx context.Context, questions []model.Question) error {
	if len(questions) == 0 {
		return nil
	}

	ids := make([]uuid.UUID, 0, len(questions))
	index := make(map[uuid.UUID]*model.Question, len(questions))
	for i := range questions {
		ids = append(ids, questions[i].ID)
		index[questions[i].ID] = &questions[i]
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, question_id, order_index, content, is_correct
		 FROM topik_choices
		 WHERE question_id = ANY($1)
		 ORDER BY order_index`, ids,
	)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var c model.Choice
		if err := rows.Scan(&c.ID, &c.QuestionID, &c.OrderIndex, &c.Content, &c.IsCorrect); err != nil {
			return err
		}
		if q, ok := index[c.QuestionID]; ok {
			q.Choices = append(q.Choices, c)
		}
	}
	return rows.Err()
}
