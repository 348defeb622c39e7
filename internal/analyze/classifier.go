// Package analyze runs collected posts through the three-stage frustration
// pipeline: keyword pre-filter, sentiment gate, LLM verdict. Qualifying
// verdicts are promoted to leads in the same pass.
package analyze

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/social-listener/internal/model"
	"github.com/sells-group/social-listener/pkg/anthropic"
)

// ClassificationError marks an LLM response that could not be turned into
// a verdict. The post stays unanalyzed, so the next run retries it.
type ClassificationError struct {
	PostID string
	Err    error
}

func (e *ClassificationError) Error() string {
	return "classify post " + e.PostID + ": " + e.Err.Error()
}

func (e *ClassificationError) Unwrap() error { return e.Err }

const classifierSystemPrompt = `You are an expert at detecting when someone is genuinely frustrated about getting a job or task done and could benefit from professional help. Always respond with valid JSON only.`

const classifierUserPrompt = `Analyze the following social media post and determine:
1. Is the author genuinely frustrated about completing a specific job or task?
2. How confident are you (0.0 to 1.0)?
3. Why do you think so?
4. What professional service could help them?

IMPORTANT:
- Only flag posts where someone is struggling with a SPECIFIC task they need done (not general life complaints).
- Look for actionable frustration, meaning someone who might hire a professional to solve their problem.
- Do NOT flag jokes, sarcasm, or venting about unrelated topics.

Post:
"""
%s
"""

Available services we offer: %s

Respond with ONLY valid JSON:
{
    "is_frustrated": true/false,
    "confidence": 0.0-1.0,
    "reason": "brief explanation",
    "suggested_service": "which service from the list could help, or 'none'"
}`

// Classifier asks the LLM for a frustration verdict on a single post.
type Classifier struct {
	ai        anthropic.Client
	maxTokens int64
}

// NewClassifier creates a classifier using the given client.
func NewClassifier(ai anthropic.Client, maxTokens int64) *Classifier {
	if maxTokens <= 0 {
		maxTokens = 512
	}
	return &Classifier{ai: ai, maxTokens: maxTokens}
}

// Classify returns the LLM verdict for a post. A malformed response yields
// a *ClassificationError and no verdict is recorded.
func (c *Classifier) Classify(ctx context.Context, post model.RawPost, set model.Settings) (model.Verdict, error) {
	temp := 0.1
	req := anthropic.MessageRequest{
		Model:       set.LLMModel,
		MaxTokens:   c.maxTokens,
		System:      anthropic.BuildCachedSystemBlocks(classifierSystemPrompt),
		Temperature: &temp,
		Messages: []anthropic.Message{
			{Role: "user", Content: buildUserPrompt(post.Text(), set.Services)},
		},
	}

	resp, err := c.ai.CreateMessage(ctx, req)
	if err != nil {
		return model.Verdict{}, &ClassificationError{PostID: post.ID, Err: err}
	}
	resp.Usage.LogCost(set.LLMModel, "classify")

	verdict, err := parseVerdict(resp.Text())
	if err != nil {
		return model.Verdict{}, &ClassificationError{PostID: post.ID, Err: err}
	}
	return verdict, nil
}

func buildUserPrompt(postText string, services []string) string {
	list := strings.Join(services, ", ")
	if list == "" {
		list = "none listed"
	}
	return fmt.Sprintf(classifierUserPrompt, postText, list)
}

// parseVerdict decodes the model's JSON reply. Replies sometimes arrive
// wrapped in markdown code fences; those are stripped first. Field types
// are validated strictly.
func parseVerdict(raw string) (model.Verdict, error) {
	raw = stripFences(strings.TrimSpace(raw))
	if raw == "" {
		return model.Verdict{}, eris.New("empty response")
	}

	var verdict model.Verdict
	if err := json.Unmarshal([]byte(raw), &verdict); err != nil {
		return model.Verdict{}, eris.Wrap(err, "decode verdict")
	}

	if verdict.Confidence < 0 || verdict.Confidence > 1 {
		return model.Verdict{}, eris.Errorf("confidence %v out of range", verdict.Confidence)
	}
	if verdict.SuggestedService == "" {
		verdict.SuggestedService = "none"
	}
	return verdict, nil
}

// stripFences removes a surrounding markdown code block, with or without a
// language tag.
func stripFences(raw string) string {
	if !strings.HasPrefix(raw, "```") {
		return raw
	}
	if idx := strings.IndexByte(raw, '\n'); idx >= 0 {
		raw = raw[idx+1:]
	} else {
		raw = strings.TrimPrefix(raw, "```")
	}
	raw = strings.TrimSpace(raw)
	return strings.TrimSpace(strings.TrimSuffix(raw, "```"))
}
