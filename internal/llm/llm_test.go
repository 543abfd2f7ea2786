package llm

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"reportwatch/internal/watch"
)

type fakeGenerator struct {
	response string
	err      error

	lastSystem  string
	lastContent string
	calls       int
}

func (f *fakeGenerator) generateJSON(_ context.Context, systemPrompt, content string, _ *genai.Schema) (string, error) {
	f.calls++
	f.lastSystem = systemPrompt
	f.lastContent = content
	return f.response, f.err
}

func testClient(gen *fakeGenerator) *Client {
	return newClient(gen, Config{}, nil)
}

func TestClassifyOriginalReport(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{response: `{"category":"original-report","confidence":0.93}`}
	c := testClient(gen)

	article := watch.CandidateArticle{
		Title:         "Vendor advisory",
		Description:   "details",
		NormalizedURL: "https://exampleorg.example/advisory/1",
	}
	verdict, err := c.Classify(context.Background(), article, "full text")
	require.NoError(t, err)
	require.Equal(t, watch.CategoryOriginalReport, verdict.Category)
	require.Empty(t, verdict.ReferencedURL)
	require.InDelta(t, 0.93, verdict.Confidence, 1e-9)

	require.Contains(t, gen.lastContent, "Vendor advisory")
	require.Contains(t, gen.lastContent, "full text")
	require.Contains(t, gen.lastSystem, "repost")
}

func TestClassifyRepostKeepsReferencedURL(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{
		response: `{"category":"repost","referenced_url":"https://exampleorg.example/advisory/1","confidence":0.8}`,
	}
	verdict, err := testClient(gen).Classify(context.Background(), watch.CandidateArticle{}, "text")
	require.NoError(t, err)
	require.Equal(t, watch.CategoryRepost, verdict.Category)
	require.Equal(t, "https://exampleorg.example/advisory/1", verdict.ReferencedURL)
}

func TestClassifyRepostWithoutURLCoerced(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{response: `{"category":"repost","confidence":0.7}`}
	verdict, err := testClient(gen).Classify(context.Background(), watch.CandidateArticle{}, "text")
	require.NoError(t, err)
	require.Equal(t, watch.CategoryNotRelevant, verdict.Category)
	require.Empty(t, verdict.ReferencedURL)
}

func TestClassifyDropsURLOnNonRepost(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{
		response: `{"category":"original-report","referenced_url":"https://stray.example/x","confidence":0.6}`,
	}
	verdict, err := testClient(gen).Classify(context.Background(), watch.CandidateArticle{}, "text")
	require.NoError(t, err)
	require.Equal(t, watch.CategoryOriginalReport, verdict.Category)
	require.Empty(t, verdict.ReferencedURL)
}

func TestClassifyClampsConfidence(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{response: `{"category":"not-relevant","confidence":3.5}`}
	verdict, err := testClient(gen).Classify(context.Background(), watch.CandidateArticle{}, "text")
	require.NoError(t, err)
	require.Equal(t, 1.0, verdict.Confidence)
}

func TestClassifyMalformedResponses(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		response string
	}{
		{name: "not json", response: "the article seems fine"},
		{name: "unknown category", response: `{"category":"breaking-news","confidence":0.9}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			gen := &fakeGenerator{response: tt.response}
			_, err := testClient(gen).Classify(context.Background(), watch.CandidateArticle{}, "text")
			var me *watch.MalformedResponseError
			require.ErrorAs(t, err, &me)
			require.False(t, watch.IsRetryable(err))
		})
	}
}

func TestClassifyUnwrapsCodeFence(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{response: "```json\n{\"category\":\"not-relevant\",\"confidence\":0.2}\n```"}
	verdict, err := testClient(gen).Classify(context.Background(), watch.CandidateArticle{}, "text")
	require.NoError(t, err)
	require.Equal(t, watch.CategoryNotRelevant, verdict.Category)
}

func TestClassifyPropagatesCallErrors(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{err: errors.New("deadline exceeded")}
	_, err := testClient(gen).Classify(context.Background(), watch.CandidateArticle{}, "text")
	require.Error(t, err)
	var me *watch.MalformedResponseError
	require.False(t, errors.As(err, &me))
}

func TestExtractReport(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{
		response: `{"title":"Advisory 1","summary":"Things broke.","severity":"High","is_domain_specific":true}`,
	}
	fields, err := testClient(gen).ExtractReport(context.Background(), "full report text")
	require.NoError(t, err)
	require.Equal(t, "Advisory 1", fields.Title)
	require.Equal(t, "Things broke.", fields.Summary)
	require.Equal(t, "high", fields.Severity)
	require.True(t, fields.IsDomainSpecific)
	require.Equal(t, "full report text", gen.lastContent)
}

func TestExtractReportUnknownSeverityCleared(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{
		response: `{"title":"T","summary":"S","severity":"catastrophic"}`,
	}
	fields, err := testClient(gen).ExtractReport(context.Background(), "text")
	require.NoError(t, err)
	require.Empty(t, fields.Severity)
}

func TestExtractReportMissingRequiredFields(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		response string
	}{
		{name: "missing title", response: `{"summary":"S"}`},
		{name: "blank summary", response: `{"title":"T","summary":"   "}`},
		{name: "not json", response: "no structure"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			gen := &fakeGenerator{response: tt.response}
			_, err := testClient(gen).ExtractReport(context.Background(), "text")
			var me *watch.MalformedResponseError
			require.ErrorAs(t, err, &me)
		})
	}
}

func TestStripFences(t *testing.T) {
	t.Parallel()

	require.Equal(t, `{"a":1}`, stripFences("```json\n{\"a\":1}\n```"))
	require.Equal(t, `{"a":1}`, stripFences("```\n{\"a\":1}\n```"))
	require.Equal(t, `{"a":1}`, stripFences(`{"a":1}`))
	require.False(t, strings.Contains(stripFences("``````"), "`"))
}
