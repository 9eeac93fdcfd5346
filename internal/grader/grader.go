// Package grader wraps an OpenAI-compatible API as the essay grading
// oracle. The oracle returns a 0-100 score plus structured feedback;
// converting that score into exam points is the caller's concern.
package grader

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// maxFeedbackItems caps each of the strengths/weaknesses/suggestions lists.
const maxFeedbackItems = 5

// Result holds the oracle's assessment of a single essay answer.
type Result struct {
	Score                  int      `json:"score"`
	Strengths              []string `json:"strengths"`
	Weaknesses             []string `json:"weaknesses"`
	ImprovementSuggestions []string `json:"improvement_suggestions"`
	DetailedFeedback       string   `json:"detailed_feedback"`
}

// Client wraps an OpenAI-compatible API client.
type Client struct {
	api   *openai.Client
	model string
}

// New creates a grader client. baseURL may be empty for the default
// OpenAI endpoint.
func New(baseURL, apiKey, modelName string) *Client {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &Client{
		api:   openai.NewClientWithConfig(config),
		model: modelName,
	}
}

// Grade asks the oracle to score an essay answer against its prompt.
func (c *Client) Grade(ctx context.Context, questionPrompt, answerText string) (*Result, error) {
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: buildUserPrompt(questionPrompt, answerText)},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 0.2,
	})
	if err != nil {
		return nil, fmt.Errorf("grading API call: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("grading oracle returned no choices")
	}

	raw := resp.Choices[0].Message.Content
	result, err := parseResult(raw)
	if err != nil {
		return nil, fmt.Errorf("parse grading response: %w (raw: %s)", err, raw)
	}
	return result, nil
}

const systemPrompt = "You are a TOPIK writing examiner. Respond with valid JSON only. " +
	"No markdown, no prose outside the JSON object."

func buildUserPrompt(questionPrompt, answerText string) string {
	var sb strings.Builder
	sb.WriteString("Grade this TOPIK writing answer.\n\n")
	sb.WriteString("QUESTION PROMPT:\n" + questionPrompt + "\n\n")
	sb.WriteString("STUDENT ANSWER:\n" + answerText + "\n\n")
	sb.WriteString("Respond with this JSON shape:\n")
	sb.WriteString(`{
  "score": 0,
  "strengths": ["..."],
  "weaknesses": ["..."],
  "improvement_suggestions": ["..."],
  "detailed_feedback": "..."
}` + "\n\n")
	sb.WriteString("- score is an integer from 0 to 100\n")
	sb.WriteString(fmt.Sprintf("- strengths/weaknesses/improvement_suggestions: at most %d items each\n", maxFeedbackItems))
	sb.WriteString("- detailed_feedback should include corrected example sentences where appropriate\n")
	return sb.String()
}

// parseResult decodes and sanitizes the oracle's JSON: the score is clamped
// to [0,100] and the feedback lists are capped, since the model does not
// always respect its instructions.
func parseResult(raw string) (*Result, error) {
	var result Result
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return nil, err
	}

	if result.Score < 0 {
		result.Score = 0
	}
	if result.Score > 100 {
		result.Score = 100
	}
	result.Strengths = capItems(result.Strengths)
	result.Weaknesses = capItems(result.Weaknesses)
	result.ImprovementSuggestions = capItems(result.ImprovementSuggestions)

	return &result, nil
}

func capItems(items []string) []string {
	if len(items) > maxFeedbackItems {
		return items[:maxFeedbackItems]
	}
	return items
}
