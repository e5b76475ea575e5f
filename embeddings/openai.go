package embeddings

import (
	"context"
	"errors"
	"fmt"
	"net"

	openai "github.com/sashabaranov/go-openai"
)

type openAIEmbedder struct {
	client    *openai.Client
	model     string
	dimension int
	maxChars  int
}

func NewOpenAIEmbedder(opts Options) Embedder {
	cfg := openai.DefaultConfig(opts.OpenAIAPIKey)
	if opts.OpenAIBaseURL != "" {
		cfg.BaseURL = opts.OpenAIBaseURL
	}

	return &openAIEmbedder{
		client:    openai.NewClientWithConfig(cfg),
		model:     opts.Model,
		dimension: opts.Dimension,
		maxChars:  opts.MaxChars,
	}
}

func (e *openAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(e.model),
		Input: []string{truncate(text, e.maxChars)},
	})
	if err != nil {
		return nil, classifyOpenAIError(err)
	}

	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("openai embeddings returned no vectors: %w", ErrUnavailable)
	}

	vector := resp.Data[0].Embedding
	if e.dimension > 0 && len(vector) != e.dimension {
		return nil, fmt.Errorf("openai embedding dimension mismatch: expected %d, got %d", e.dimension, len(vector))
	}

	return vector, nil
}

// classifyOpenAIError maps provider failures onto the package sentinels so
// the retriever can branch with errors.Is instead of matching message text.
func classifyOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatusCode == 429 || apiErr.Code == "insufficient_quota" {
			return fmt.Errorf("create openai embeddings: %v: %w", apiErr.Message, ErrQuotaExceeded)
		}
		if apiErr.HTTPStatusCode >= 500 {
			return fmt.Errorf("create openai embeddings: %v: %w", apiErr.Message, ErrUnavailable)
		}
		return fmt.Errorf("create openai embeddings: %w", err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("create openai embeddings: %v: %w", err, ErrUnavailable)
	}

	return fmt.Errorf("create openai embeddings: %w", err)
}
