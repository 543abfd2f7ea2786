package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"reportwatch/internal/watch"
)

const classifySystemPrompt = `You triage articles that alert feeds point at.
Classify the article into exactly one category:
- "original-report": the article itself is the primary publication of a finding.
- "repost": the article reports on or links to a more original source. Set
  "referenced_url" to the most original source URL the article points at.
- "not-relevant": the article is off-topic, promotional, or carries no finding.

Rules:
- "referenced_url" must be set if and only if the category is "repost".
- "confidence" is your certainty in the category, between 0 and 1.
- Judge only from the provided title, description and content.`

var classifySchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"category": {
			Type:        genai.TypeString,
			Description: "One of original-report, repost, not-relevant",
		},
		"referenced_url": {
			Type:        genai.TypeString,
			Description: "The original source URL, only for repost",
		},
		"confidence": {
			Type:        genai.TypeNumber,
			Description: "Certainty in the category, 0 to 1",
		},
	},
	Required: []string{"category", "confidence"},
}

type classifyResponse struct {
	Category      string  `json:"category"`
	ReferencedURL string  `json:"referenced_url"`
	Confidence    float64 `json:"confidence"`
}

// Classify asks the model for a verdict on one candidate article and
// validates the response before anyone downstream can see it.
func (c *Client) Classify(ctx context.Context, article watch.CandidateArticle, content string) (watch.ClassificationVerdict, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Title: %s\n", article.Title)
	if article.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", article.Description)
	}
	fmt.Fprintf(&b, "URL: %s\n\nContent:\n%s", article.NormalizedURL, content)

	raw, err := c.call(ctx, classifySystemPrompt, b.String(), classifySchema)
	if err != nil {
		return watch.ClassificationVerdict{}, fmt.Errorf("classify article: %w", err)
	}

	verdict, err := c.parseVerdict(raw)
	if err != nil {
		return watch.ClassificationVerdict{}, err
	}
	return verdict, nil
}

// parseVerdict enforces the verdict invariants: a known category, confidence
// inside [0,1], and referenced_url present exactly for reposts. A repost
// without a URL is coerced to not-relevant rather than propagated malformed.
func (c *Client) parseVerdict(raw string) (watch.ClassificationVerdict, error) {
	var resp classifyResponse
	if err := json.Unmarshal([]byte(stripFences(raw)), &resp); err != nil {
		return watch.ClassificationVerdict{}, &watch.MalformedResponseError{
			Call: "classify", Reason: fmt.Sprintf("invalid JSON: %v", err),
		}
	}

	category := watch.Category(resp.Category)
	if !category.Valid() {
		return watch.ClassificationVerdict{}, &watch.MalformedResponseError{
			Call: "classify", Reason: fmt.Sprintf("unknown category %q", resp.Category),
		}
	}

	confidence := resp.Confidence
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	referenced := strings.TrimSpace(resp.ReferencedURL)
	switch category {
	case watch.CategoryRepost:
		if referenced == "" {
			c.logger.Warn("repost verdict without referenced url, coercing to not-relevant")
			return watch.ClassificationVerdict{
				Category:   watch.CategoryNotRelevant,
				Confidence: confidence,
			}, nil
		}
	default:
		if referenced != "" {
			c.logger.Debug("dropping referenced url on non-repost verdict",
				zap.String("category", string(category)))
			referenced = ""
		}
	}

	return watch.ClassificationVerdict{
		Category:      category,
		ReferencedURL: referenced,
		Confidence:    confidence,
	}, nil
}

// stripFences removes a markdown code fence if the model wrapped its JSON in
// one despite the response MIME type.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
