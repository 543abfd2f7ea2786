package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"reportwatch/internal/watch"
)

const extractSystemPrompt = `You turn the full text of a report into catalog
fields. Respond with:
- "title": a short, specific title for the finding.
- "summary": 2-4 sentences covering what happened, who is affected and why
  it matters.
- "severity": one of "low", "medium", "high", "critical", or "" when the
  text gives no basis for a rating.
- "is_domain_specific": true when the finding concerns the watched domain
  directly rather than the broader industry.
Use only the provided text.`

var extractSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"title":   {Type: genai.TypeString},
		"summary": {Type: genai.TypeString},
		"severity": {
			Type:        genai.TypeString,
			Description: "low, medium, high, critical or empty",
		},
		"is_domain_specific": {Type: genai.TypeBoolean},
	},
	Required: []string{"title", "summary"},
}

type extractResponse struct {
	Title            string `json:"title"`
	Summary          string `json:"summary"`
	Severity         string `json:"severity"`
	IsDomainSpecific bool   `json:"is_domain_specific"`
}

var knownSeverities = map[string]struct{}{
	"": {}, "low": {}, "medium": {}, "high": {}, "critical": {},
}

// ExtractReport asks the model for structured catalog fields over the full
// text of a resolved, novel report.
func (c *Client) ExtractReport(ctx context.Context, content string) (watch.ReportFields, error) {
	raw, err := c.call(ctx, extractSystemPrompt, content, extractSchema)
	if err != nil {
		return watch.ReportFields{}, fmt.Errorf("extract report: %w", err)
	}
	return parseReportFields(raw)
}

// parseReportFields validates the extraction response: title and summary are
// required; an unknown severity is cleared rather than stored.
func parseReportFields(raw string) (watch.ReportFields, error) {
	var resp extractResponse
	if err := json.Unmarshal([]byte(stripFences(raw)), &resp); err != nil {
		return watch.ReportFields{}, &watch.MalformedResponseError{
			Call: "extract-report", Reason: fmt.Sprintf("invalid JSON: %v", err),
		}
	}

	title := strings.TrimSpace(resp.Title)
	summary := strings.TrimSpace(resp.Summary)
	if title == "" || summary == "" {
		return watch.ReportFields{}, &watch.MalformedResponseError{
			Call: "extract-report", Reason: "missing required title or summary",
		}
	}

	severity := strings.ToLower(strings.TrimSpace(resp.Severity))
	if _, ok := knownSeverities[severity]; !ok {
		severity = ""
	}

	return watch.ReportFields{
		Title:            title,
		Summary:          summary,
		Severity:         severity,
		IsDomainSpecific: resp.IsDomainSpecific,
	}, nil
}
