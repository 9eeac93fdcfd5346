// Package scoring contains the pure grading rules for objective questions
// and the score-to-level threshold tables. Nothing here touches a store.
package scoring

import (
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/hangulab/topik-backend/internal/model"
)

// Result is the outcome of grading a single answered question.
type Result struct {
	IsCorrect bool
	Score     int
}

// ScoreMCQ grades a multiple-choice answer: correct iff the selected choice
// id equals the id of the unique choice flagged correct.
func ScoreMCQ(q *model.Question, selectedChoiceID *uuid.UUID) Result {
	correct := q.CorrectChoice()
	if correct == nil || selectedChoiceID == nil {
		return Result{}
	}
	if *selectedChoiceID != correct.ID {
		return Result{}
	}
	return Result{IsCorrect: true, Score: q.ScoreWeight}
}

// ScoreShortText grades a short-text answer by normalized exact match.
// An empty expected answer never matches.
func ScoreShortText(q *model.Question, textAnswer *string) Result {
	expected := ""
	if q.CorrectTextAnswer != nil {
		expected = Normalize(*q.CorrectTextAnswer)
	}
	if expected == "" || textAnswer == nil {
		return Result{}
	}
	if Normalize(*textAnswer) != expected {
		return Result{}
	}
	return Result{IsCorrect: true, Score: q.ScoreWeight}
}

// Normalize trims surrounding whitespace and lowercases. Applied to both
// sides of a short-text comparison.
func Normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// AggregateSections sums per-answer scores grouped by the owning section's
// type. The section max is the configured section max score when present,
// otherwise the running sum of scored question weights.
func AggregateSections(questions []model.Question, answers []model.Answer, sections []model.Section) []model.SectionScore {
	sectionByID := make(map[string]*model.Section, len(sections))
	for i := range sections {
		sectionByID[sections[i].ID.String()] = &sections[i]
	}
	questionByID := make(map[string]*model.Question, len(questions))
	for i := range questions {
		questionByID[questions[i].ID.String()] = &questions[i]
	}

	byType := make(map[model.SectionType]*model.SectionScore)
	configured := make(map[model.SectionType]bool)

	for i := range answers {
		q := questionByID[answers[i].QuestionID.String()]
		if q == nil {
			continue
		}
		sec := sectionByID[q.SectionID.String()]
		if sec == nil {
			continue
		}

		entry := byType[sec.Type]
		if entry == nil {
			entry = &model.SectionScore{Type: sec.Type}
			if sec.MaxScore != nil {
				entry.MaxScore = *sec.MaxScore
				configured[sec.Type] = true
			}
			byType[sec.Type] = entry
		}

		entry.Score += answers[i].Score
		if !configured[sec.Type] {
			entry.MaxScore += q.ScoreWeight
		}
	}

	out := make([]model.SectionScore, 0, len(byType))
	for _, entry := range byType {
		out = append(out, *entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out
}

// MaxTotalScore sums the section maxima of a review.
func MaxTotalScore(scores []model.SectionScore) int {
	total := 0
	for _, s := range scores {
		total += s.MaxScore
	}
	return total
}

// levelThreshold maps a minimum total score to an achieved TOPIK level.
type levelThreshold struct {
	MinScore int
	Level    int
}

// Official TOPIK score thresholds, highest first.
// TOPIK I (200): Level 1 >= 80, Level 2 >= 140.
// TOPIK II (300): Level 3 >= 120, Level 4 >= 150, Level 5 >= 190, Level 6 >= 230.
var levelThresholds = map[model.TopikLevel][]levelThreshold{
	model.TopikLevelI: {
		{MinScore: 140, Level: 2},
		{MinScore: 80, Level: 1},
	},
	model.TopikLevelII: {
		{MinScore: 230, Level: 6},
		{MinScore: 190, Level: 5},
		{MinScore: 150, Level: 4},
		{MinScore: 120, Level: 3},
	},
}

// AchievedLevel maps a total score to a TOPIK level under the exam's tier
// scheme. Returns nil below the lowest threshold or for an unrecognized
// scheme.
func AchievedLevel(topikLevel model.TopikLevel, totalScore int) *int {
	for _, t := range levelThresholds[topikLevel] {
		if totalScore >= t.MinScore {
			level := t.Level
			return &level
		}
	}
	return nil
}
