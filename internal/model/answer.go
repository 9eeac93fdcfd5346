package model

import (
	"time"

	"github.com/google/uuid"
)

// Answer is a user's response to one question within one session.
// Uniquely keyed by (session_id, question_id); saves are upserts.
type Answer struct {
	ID               uuid.UUID  `json:"id"`
	SessionID        uuid.UUID  `json:"session_id"`
	QuestionID       uuid.UUID  `json:"question_id"`
	SelectedChoiceID *uuid.UUID `json:"selected_choice_id,omitempty"`
	TextAnswer       *string    `json:"text_answer,omitempty"`
	Flagged          bool       `json:"flagged"`
	IsCorrect        *bool      `json:"is_correct,omitempty"`
	Score            int        `json:"score"`

	// AI review fields, null until the essay reviewer has run.
	AIScore      *int        `json:"ai_score,omitempty"`
	AIFeedback   *AIFeedback `json:"ai_feedback,omitempty"`
	AIReviewedAt *time.Time  `json:"ai_reviewed_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AnswerPatch carries the fields of a partial answer upsert. Nil pointers
// leave the stored value unchanged.
type AnswerPatch struct {
	SelectedChoiceID *uuid.UUID
	TextAnswer       *string
	Flagged          *bool
}

// AnswerScore is one objective grading result to persist on submit.
type AnswerScore struct {
	AnswerID  uuid.UUID
	IsCorrect bool
	Score     int
}

// AIFeedback is the structured result of an AI essay review.
type AIFeedback struct {
	Score                  int      `json:"score"`
	Strengths              []string `json:"strengths"`
	Weaknesses             []string `json:"weaknesses"`
	ImprovementSuggestions []string `json:"improvement_suggestions"`
	DetailedFeedback       string   `json:"detailed_feedback"`
	// SystemFailure marks a zero-score placeholder written after the
	// grading oracle failed all retry attempts. Not a genuine grade.
	SystemFailure bool `json:"system_failure,omitempty"`
}
