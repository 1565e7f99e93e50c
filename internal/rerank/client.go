// Package rerank reorders BM25 candidate lists with a hosted LLM, in
// zero-shot or few-shot prompting mode.
package rerank

import (
	"context"
	stderrors "errors"
	"strings"

	"google.golang.org/genai"

	"github.com/lexbench/lex-bench/internal/config"
	"github.com/lexbench/lex-bench/internal/pkg/errors"
)

// Generator produces free-form text for a prompt. The Gemini client sits
// behind this so the engine can be exercised without network access.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GeminiGenerator calls the Gemini API.
type GeminiGenerator struct {
	client *genai.Client
	model  string
}

// NewGeminiGenerator creates a Gemini-backed generator. A missing API key
// fails here, before any network call is attempted.
func NewGeminiGenerator(ctx context.Context, cfg config.RerankConfig) (*GeminiGenerator, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.ConfigError("GOOGLE_API_KEY is not set; the rerank stage needs a Gemini API key")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, errors.LLMError("creating Gemini client", err)
	}

	return &GeminiGenerator{
		client: client,
		model:  cfg.Model,
	}, nil
}

// Generate sends the prompt and returns the model's text reply.
func (g *GeminiGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), nil)
	if err != nil {
		var apiErr genai.APIError
		if stderrors.As(err, &apiErr) && apiErr.Code == 429 {
			return "", errors.RateLimitedError(err)
		}
		if ctx.Err() != nil {
			return "", errors.TimeoutError("generate", err)
		}
		return "", errors.LLMError("generate request failed", err).WithDetail("model", g.model)
	}

	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		// Blocked or empty responses carry no ranking to parse.
		return "", errors.ParseError("empty model response")
	}
	return text, nil
}
