// Package llm adapts the Gemini API for classification and report extraction.
package llm

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gemini-flash-lite-latest"

// Config controls the Gemini client.
type Config struct {
	// APIKeyEnv names the environment variable holding the API key.
	APIKeyEnv string
	Model     string
	// CallTimeout bounds one generation call.
	CallTimeout time.Duration
	// RequestsPerMinute throttles outbound calls. Zero disables throttling.
	RequestsPerMinute int
}

// generator abstracts the model call so verdict validation can be tested
// without network access.
type generator interface {
	generateJSON(ctx context.Context, systemPrompt, content string, schema *genai.Schema) (string, error)
}

// Client shapes requests to Gemini and validates its responses.
type Client struct {
	gen         generator
	limiter     *rate.Limiter
	callTimeout time.Duration
	logger      *zap.Logger
}

// NewClient reads the API key from the configured environment variable and
// connects the Gemini backend.
func NewClient(ctx context.Context, cfg Config, logger *zap.Logger) (*Client, error) {
	keyEnv := cfg.APIKeyEnv
	if keyEnv == "" {
		keyEnv = "GEMINI_API_KEY"
	}
	apiKey := os.Getenv(keyEnv)
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required: set %s", keyEnv)
	}

	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}

	gClient, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	return newClient(&genaiGenerator{client: gClient, model: model}, cfg, logger), nil
}

func newClient(gen generator, cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.CallTimeout
	if timeout == 0 {
		timeout = 90 * time.Second
	}
	var limiter *rate.Limiter
	if cfg.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerMinute)/60.0), cfg.RequestsPerMinute)
	}
	return &Client{
		gen:         gen,
		limiter:     limiter,
		callTimeout: timeout,
		logger:      logger,
	}
}

func (c *Client) call(ctx context.Context, systemPrompt, content string, schema *genai.Schema) (string, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("rate limit wait: %w", err)
		}
	}
	callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()
	return c.gen.generateJSON(callCtx, systemPrompt, content, schema)
}

// genaiGenerator issues real Gemini calls with structured JSON output.
type genaiGenerator struct {
	client *genai.Client
	model  string
}

func (g *genaiGenerator) generateJSON(ctx context.Context, systemPrompt, content string, schema *genai.Schema) (string, error) {
	contents := []*genai.Content{{
		Parts: []*genai.Part{{Text: content}},
		Role:  "user",
	}}
	config := &genai.GenerateContentConfig{
		Temperature:      genai.Ptr(float32(0.1)),
		ResponseMIMEType: "application/json",
		ResponseSchema:   schema,
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: systemPrompt}},
		},
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, config)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("empty response from model")
	}
	return text, nil
}
