package embeddings

import (
	"context"
	"errors"
	"fmt"

	"github.com/altamira-institute/assistant/config"
)

// ErrUnavailable marks any embedding failure the caller may recover from by
// switching to lexical retrieval. ErrQuotaExceeded wraps it, so checking
// errors.Is(err, ErrUnavailable) covers both conditions.
var (
	ErrUnavailable   = errors.New("embedding provider unavailable")
	ErrQuotaExceeded = fmt.Errorf("embedding quota exceeded: %w", ErrUnavailable)
)

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type Options struct {
	Provider  string
	Model     string
	Dimension int
	MaxChars  int

	OllamaHost    string
	OpenAIAPIKey  string
	OpenAIBaseURL string
}

func NewEmbedder(cfg config.Config) (Embedder, error) {
	opts := Options{
		Provider:      cfg.Embeddings.Provider,
		Model:         cfg.Embeddings.Model,
		Dimension:     cfg.Embeddings.Dimension,
		MaxChars:      cfg.Assistant.MaxEmbedChars,
		OllamaHost:    cfg.OllamaHost,
		OpenAIAPIKey:  cfg.OpenAIAPIKey,
		OpenAIBaseURL: cfg.OpenAIBaseURL,
	}

	switch opts.Provider {
	case config.ProviderOllama:
		return NewOllamaEmbedder(opts), nil
	case config.ProviderOpenAI:
		if opts.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("openai provider selected but OPENAI_API_KEY not set")
		}
		return NewOpenAIEmbedder(opts), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s", opts.Provider)
	}
}

func truncate(text string, maxChars int) string {
	if maxChars <= 0 || len(text) <= maxChars {
		return text
	}
	runes := []rune(text)
	if len(runes) <= maxChars {
		return text
	}
	return string(runes[:maxChars])
}
