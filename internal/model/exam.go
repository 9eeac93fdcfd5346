package model

import (
	"time"

	"github.com/google/uuid"
)

// ExamStatus enumerates the possible states of an exam definition.
type ExamStatus string

const (
	ExamStatusDraft     ExamStatus = "DRAFT"
	ExamStatusPublished ExamStatus = "PUBLISHED"
	ExamStatusArchived  ExamStatus = "ARCHIVED"
)

// TopikLevel is the tier scheme of an exam. TOPIK I is scored out of 200
// across two achievable levels, TOPIK II out of 300 across four.
type TopikLevel string

const (
	TopikLevelI  TopikLevel = "TOPIK_I"
	TopikLevelII TopikLevel = "TOPIK_II"
)

// SectionType enumerates exam section kinds.
type SectionType string

const (
	SectionTypeListening SectionType = "LISTENING"
	SectionTypeReading   SectionType = "READING"
	SectionTypeWriting   SectionType = "WRITING"
)

// QuestionType enumerates question kinds. MCQ and SHORT_TEXT are machine
// gradable; ESSAY answers are graded asynchronously by the AI reviewer.
type QuestionType string

const (
	QuestionTypeMCQ       QuestionType = "MCQ"
	QuestionTypeShortText QuestionType = "SHORT_TEXT"
	QuestionTypeEssay     QuestionType = "ESSAY"
)

// Exam is an immutable published exam definition.
type Exam struct {
	ID              uuid.UUID  `json:"id"`
	Title           string     `json:"title"`
	Year            int        `json:"year"`
	TopikLevel      TopikLevel `json:"topik_level"`
	Level           *string    `json:"level,omitempty"`
	DurationMinutes int        `json:"duration_minutes"`
	TotalQuestions  int        `json:"total_questions"`
	Status          ExamStatus `json:"status"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Section is an ordered part of an exam (listening/reading/writing).
type Section struct {
	ID              uuid.UUID   `json:"id"`
	ExamID          uuid.UUID   `json:"exam_id"`
	Type            SectionType `json:"type"`
	OrderIndex      int         `json:"order_index"`
	DurationMinutes *int        `json:"duration_minutes,omitempty"`
	// MaxScore is the configured section maximum (official TOPIK uses 100).
	// When nil, the sum of the section's question weights is used instead.
	MaxScore *int `json:"max_score,omitempty"`

	Questions []Question `json:"questions,omitempty"`
}

// Question is a single exam question with its scoring rule.
type Question struct {
	ID          uuid.UUID   `json:"id"`
	SectionID   uuid.UUID   `json:"section_id"`
	SectionType SectionType `json:"section_type,omitempty"`
	ExamID      uuid.UUID   `json:"-"` // owning exam, via the section

	QuestionType      QuestionType `json:"question_type"`
	OrderIndex        int          `json:"order_index"`
	Content           string       `json:"content"`
	AudioURL          *string      `json:"audio_url,omitempty"`
	ListeningScript   *string      `json:"listening_script,omitempty"`
	CorrectTextAnswer *string      `json:"correct_text_answer,omitempty"`
	ScoreWeight       int          `json:"score_weight"`
	Explanation       *string      `json:"explanation,omitempty"`

	Choices []Choice `json:"choices,omitempty"`
}

// Choice is one option of an MCQ question. Exactly one choice per question
// carries IsCorrect; grading trusts the stored flag.
type Choice struct {
	ID         uuid.UUID `json:"id"`
	QuestionID uuid.UUID `json:"question_id"`
	OrderIndex int       `json:"order_index"`
	Content    string    `json:"content"`
	IsCorrect  bool      `json:"is_correct,omitempty"`
}

// CorrectChoice returns the choice flagged as correct, or nil.
func (q *Question) CorrectChoice() *Choice {
	for i := range q.Choices {
		if q.Choices[i].IsCorrect {
			return &q.Choices[i]
		}
	}
	return nil
}

// ExamListFilters narrows the published-exam catalog listing.
type ExamListFilters struct {
	TopikLevel   *TopikLevel
	Year         *int
	SectionTypes []SectionType
}

// ExamSummary is a catalog entry with the caller's attempt overlay.
type ExamSummary struct {
	Exam
	Sections    []Section `json:"sections"`
	MyStatus    string    `json:"my_status"`
	MyAttempts  int       `json:"my_attempts"`
	MyBestScore *int      `json:"my_best_score,omitempty"`
}

// ExamDetail is the full exam tree plus the caller's resumable session.
type ExamDetail struct {
	Exam      Exam      `json:"exam"`
	Sections  []Section `json:"sections"`
	MySession *Session  `json:"my_session,omitempty"`
	MyAnswers []Answer  `json:"my_answers,omitempty"`
}
