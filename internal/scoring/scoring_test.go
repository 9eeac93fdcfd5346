package scoring

import (
	"testing"

	"github.com/google/uuid"

	"github.com/hangulab/topik-backend/internal/model"
)

func strPtr(s string) *string { return &s }
func intPtr(n int) *int       { return &n }

func mcqQuestion(weight int) (*model.Question, uuid.UUID) {
	correctID := uuid.New()
	q := &model.Question{
		ID:           uuid.New(),
		QuestionType: model.QuestionTypeMCQ,
		ScoreWeight:  weight,
		Choices: []model.Choice{
			{ID: uuid.New(), OrderIndex: 1, Content: "가"},
			{ID: correctID, OrderIndex: 2, Content: "나", IsCorrect: true},
			{ID: uuid.New(), OrderIndex: 3, Content: "다"},
		},
	}
	return q, correctID
}

func TestScoreMCQ(t *testing.T) {
	q, correctID := mcqQuestion(2)
	wrongID := q.Choices[0].ID

	tests := []struct {
		name     string
		selected *uuid.UUID
		want     Result
	}{
		{"correct choice", &correctID, Result{IsCorrect: true, Score: 2}},
		{"wrong choice", &wrongID, Result{}},
		{"unanswered", nil, Result{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ScoreMCQ(q, tt.selected)
			if got != tt.want {
				t.Errorf("ScoreMCQ() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestScoreMCQNoCorrectChoice(t *testing.T) {
	q := &model.Question{
		QuestionType: model.QuestionTypeMCQ,
		ScoreWeight:  1,
		Choices:      []model.Choice{{ID: uuid.New(), Content: "가"}},
	}
	sel := q.Choices[0].ID
	if got := ScoreMCQ(q, &sel); got.IsCorrect {
		t.Errorf("expected incorrect when no choice is flagged correct, got %+v", got)
	}
}

func TestScoreShortText(t *testing.T) {
	q := &model.Question{
		QuestionType:      model.QuestionTypeShortText,
		ScoreWeight:       3,
		CorrectTextAnswer: strPtr("사랑"),
	}

	tests := []struct {
		name   string
		answer *string
		want   Result
	}{
		{"exact match", strPtr("사랑"), Result{IsCorrect: true, Score: 3}},
		{"surrounding whitespace", strPtr("  사랑 "), Result{IsCorrect: true, Score: 3}},
		{"wrong answer", strPtr("우정"), Result{}},
		{"empty answer", strPtr(""), Result{}},
		{"unanswered", nil, Result{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ScoreShortText(q, tt.answer)
			if got != tt.want {
				t.Errorf("ScoreShortText() = %+v, want %+v", got, tt.want)
			}
		})
	}

	t.Run("latin case folding", func(t *testing.T) {
		latin := &model.Question{ScoreWeight: 1, CorrectTextAnswer: strPtr("Seoul")}
		if got := ScoreShortText(latin, strPtr(" seoul ")); !got.IsCorrect {
			t.Errorf("expected normalized match, got %+v", got)
		}
	})

	t.Run("empty expected never matches", func(t *testing.T) {
		q2 := &model.Question{ScoreWeight: 1, CorrectTextAnswer: strPtr("  ")}
		if got := ScoreShortText(q2, strPtr("")); got.IsCorrect {
			t.Errorf("empty expected answer must never be correct, got %+v", got)
		}
	})
}

func TestAggregateSections(t *testing.T) {
	listening := model.Section{ID: uuid.New(), Type: model.SectionTypeListening, MaxScore: intPtr(100)}
	writing := model.Section{ID: uuid.New(), Type: model.SectionTypeWriting} // no configured max

	q1 := model.Question{ID: uuid.New(), SectionID: listening.ID, ScoreWeight: 2}
	q2 := model.Question{ID: uuid.New(), SectionID: listening.ID, ScoreWeight: 2}
	q3 := model.Question{ID: uuid.New(), SectionID: writing.ID, ScoreWeight: 30}

	answers := []model.Answer{
		{QuestionID: q1.ID, Score: 2},
		{QuestionID: q2.ID, Score: 0},
		{QuestionID: q3.ID, Score: 25},
	}

	got := AggregateSections(
		[]model.Question{q1, q2, q3},
		answers,
		[]model.Section{listening, writing},
	)

	if len(got) != 2 {
		t.Fatalf("expected 2 section scores, got %d", len(got))
	}
	// Sorted by type: LISTENING < WRITING.
	if got[0].Type != model.SectionTypeListening || got[0].Score != 2 || got[0].MaxScore != 100 {
		t.Errorf("listening aggregate = %+v", got[0])
	}
	if got[1].Type != model.SectionTypeWriting || got[1].Score != 25 || got[1].MaxScore != 30 {
		t.Errorf("writing aggregate = %+v", got[1])
	}

	if total := MaxTotalScore(got); total != 130 {
		t.Errorf("MaxTotalScore = %d, want 130", total)
	}
}

func TestAchievedLevel(t *testing.T) {
	tests := []struct {
		name  string
		tier  model.TopikLevel
		score int
		want  *int
	}{
		{"topik1 below threshold", model.TopikLevelI, 79, nil},
		{"topik1 level1 lower bound", model.TopikLevelI, 80, intPtr(1)},
		{"topik1 level1 upper bound", model.TopikLevelI, 139, intPtr(1)},
		{"topik1 level2 lower bound", model.TopikLevelI, 140, intPtr(2)},
		{"topik1 perfect", model.TopikLevelI, 200, intPtr(2)},
		{"topik2 below threshold", model.TopikLevelII, 119, nil},
		{"topik2 level3", model.TopikLevelII, 120, intPtr(3)},
		{"topik2 level4", model.TopikLevelII, 150, intPtr(4)},
		{"topik2 level5", model.TopikLevelII, 190, intPtr(5)},
		{"topik2 level6", model.TopikLevelII, 230, intPtr(6)},
		{"unknown tier scheme", model.TopikLevel("TOPIK_III"), 300, nil},
		{"zero score", model.TopikLevelI, 0, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AchievedLevel(tt.tier, tt.score)
			switch {
			case got == nil && tt.want != nil:
				t.Errorf("AchievedLevel(%s, %d) = nil, want %d", tt.tier, tt.score, *tt.want)
			case got != nil && tt.want == nil:
				t.Errorf("AchievedLevel(%s, %d) = %d, want nil", tt.tier, tt.score, *got)
			case got != nil && tt.want != nil && *got != *tt.want:
				t.Errorf("AchievedLevel(%s, %d) = %d, want %d", tt.tier, tt.score, *got, *tt.want)
			}
		})
	}
}
