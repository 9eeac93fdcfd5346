package grader

import (
	"strings"
	"testing"
)

func TestBuildUserPrompt(t *testing.T) {
	prompt := buildUserPrompt("다음 글을 읽고 자신의 생각을 쓰십시오.", "저는 한국어를 공부합니다.")

	if !strings.Contains(prompt, "다음 글을 읽고 자신의 생각을 쓰십시오.") {
		t.Error("prompt should contain the question prompt")
	}
	if !strings.Contains(prompt, "저는 한국어를 공부합니다.") {
		t.Error("prompt should contain the student answer")
	}
	if !strings.Contains(prompt, `"score"`) {
		t.Error("prompt should describe the expected JSON shape")
	}
	if !strings.Contains(prompt, "0 to 100") {
		t.Error("prompt should state the score range")
	}
}

func TestParseResult(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		wantScore int
		wantErr   bool
	}{
		{
			name:      "well formed",
			raw:       `{"score": 72, "strengths": ["clear structure"], "weaknesses": [], "improvement_suggestions": ["use more connectives"], "detailed_feedback": "Good effort."}`,
			wantScore: 72,
		},
		{
			name:      "score above range is clamped",
			raw:       `{"score": 150, "detailed_feedback": "x"}`,
			wantScore: 100,
		},
		{
			name:      "negative score is clamped",
			raw:       `{"score": -3, "detailed_feedback": "x"}`,
			wantScore: 0,
		},
		{
			name:    "malformed JSON",
			raw:     `score: 50`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseResult(tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected parse error")
				}
				return
			}
			if err != nil {
				t.Fatalf("parseResult: %v", err)
			}
			if got.Score != tt.wantScore {
				t.Errorf("score = %d, want %d", got.Score, tt.wantScore)
			}
		})
	}
}

func TestParseResultCapsFeedbackLists(t *testing.T) {
	raw := `{"score": 50, "strengths": ["a","b","c","d","e","f","g"], "detailed_feedback": "x"}`
	got, err := parseResult(raw)
	if err != nil {
		t.Fatalf("parseResult: %v", err)
	}
	if len(got.Strengths) != maxFeedbackItems {
		t.Errorf("strengths capped to %d, want %d", len(got.Strengths), maxFeedbackItems)
	}
}
