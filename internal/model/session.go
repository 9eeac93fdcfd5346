package model

import (
	"time"

	"github.com/google/uuid"
)

// SessionStatus enumerates exam session states. IN_PROGRESS is the only
// non-terminal state; no transition leaves SUBMITTED or EXPIRED.
type SessionStatus string

const (
	SessionStatusInProgress SessionStatus = "IN_PROGRESS"
	SessionStatusSubmitted  SessionStatus = "SUBMITTED"
	SessionStatusExpired    SessionStatus = "EXPIRED"
)

// Session represents one user's timed attempt at one exam.
type Session struct {
	ID                   uuid.UUID     `json:"id"`
	UserID               uuid.UUID     `json:"user_id"`
	ExamID               uuid.UUID     `json:"exam_id"`
	Status               SessionStatus `json:"status"`
	RemainingSeconds     int           `json:"remaining_seconds"`
	ExpiresAt            time.Time     `json:"expires_at"`
	CurrentQuestionIndex int           `json:"current_question_index"`
	TotalScore           int           `json:"total_score"`
	SubmittedAt          *time.Time    `json:"submitted_at,omitempty"`
	CreatedAt            time.Time     `json:"created_at"`
	UpdatedAt            time.Time     `json:"updated_at"`
}

// SaveAnswerRequest is the payload for autosaving an answer. All fields
// except question_id are optional; omitted fields are left unchanged.
type SaveAnswerRequest struct {
	QuestionID           uuid.UUID  `json:"question_id" binding:"required"`
	SelectedChoiceID     *uuid.UUID `json:"selected_choice_id" binding:"omitempty"`
	TextAnswer           *string    `json:"text_answer" binding:"omitempty"`
	Flagged              *bool      `json:"flagged" binding:"omitempty"`
	CurrentQuestionIndex *int       `json:"current_question_index" binding:"omitempty,min=0,max=500"`
	RemainingSeconds     *int       `json:"remaining_seconds" binding:"omitempty,min=0,max=86400"`
}

// SubmitSessionRequest is the payload for submitting a session.
type SubmitSessionRequest struct {
	RemainingSeconds *int `json:"remaining_seconds" binding:"omitempty,min=0,max=86400"`
}

// SectionScore is the per-section aggregate shown in a review.
type SectionScore struct {
	Type     SectionType `json:"type"`
	Score    int         `json:"score"`
	MaxScore int         `json:"max_score"`
}

// SessionReview is the full result view of a session. AI fields on essay
// answers stay null until the async reviewer has run.
type SessionReview struct {
	Session       Session        `json:"session"`
	Answers       []ReviewAnswer `json:"answers"`
	SectionScores []SectionScore `json:"section_scores"`
	MaxTotalScore int            `json:"max_total_score"`
	// AchievedLevel is the TOPIK level reached by the total score,
	// nil when below the lowest threshold.
	AchievedLevel *int `json:"achieved_level"`
}

// ReviewAnswer joins an answer with its question and selected choice.
type ReviewAnswer struct {
	Answer
	Question       Question `json:"question"`
	SelectedChoice *Choice  `json:"selected_choice,omitempty"`
}
