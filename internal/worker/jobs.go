package worker

import "github.com/google/uuid"

// Job types carried through the review queue.
const (
	JobTypeReviewEssay = "review_essay"
)

// ReviewEssayPayload identifies one essay answer awaiting AI review.
type ReviewEssayPayload struct {
	AnswerID uuid.UUID `json:"answer_id"`
}
