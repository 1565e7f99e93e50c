// Package dense implements the embedding-similarity baseline ranker.
package dense

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/lexbench/lex-bench/internal/config"
	"github.com/lexbench/lex-bench/internal/pkg/errors"
)

// Embedder turns texts into fixed-size vectors. Implementations must return
// one vector per input text, in input order.
type Embedder interface {
	Model() string
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// OpenAIEmbedder calls an OpenAI-compatible embeddings endpoint, which is
// how a locally hosted sentence-embedding model (TEI, Infinity, llama.cpp)
// is exposed to this pipeline.
type OpenAIEmbedder struct {
	client *openai.Client
	model  string
}

// NewOpenAIEmbedder creates an embedder against cfg.BaseURL. The handle is
// constructed once per stage run and passed to everything that encodes.
func NewOpenAIEmbedder(cfg config.DenseConfig) (*OpenAIEmbedder, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.ConfigError("dense base_url is required")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, errors.ConfigError("dense model is required")
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	clientCfg.BaseURL = cfg.BaseURL
	clientCfg.HTTPClient = &http.Client{Timeout: cfg.RequestTimeout()}

	return &OpenAIEmbedder{
		client: openai.NewClientWithConfig(clientCfg),
		model:  cfg.Model,
	}, nil
}

// Model returns the embedding model name.
func (e *OpenAIEmbedder) Model() string {
	return e.model
}

// EmbedTexts embeds a batch of texts. Vectors come back L2-normalized so
// cosine similarity reduces to a dot product.
func (e *OpenAIEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	req := openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(e.model),
	}

	resp, err := e.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, errors.LLMError("embedding request failed", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, errors.LLMError(
			fmt.Sprintf("expected %d embeddings, got %d", len(texts), len(resp.Data)), nil)
	}

	out := make([][]float32, len(resp.Data))
	for i, row := range resp.Data {
		vec := make([]float32, len(row.Embedding))
		copy(vec, row.Embedding)
		out[i] = l2Normalize(vec)
	}
	return out, nil
}

// l2Normalize normalizes a vector to unit length.
func l2Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}

	norm := float32(math.Sqrt(sum))
	if norm == 0 {
		return v
	}

	for i, x := range v {
		v[i] = x / norm
	}
	return v
}

// cosine computes the cosine similarity of two unit vectors.
func cosine(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}
