package chat

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/altamira-institute/assistant/embeddings"
)

type RetrievalConfig struct {
	TopK          int
	MinSimilarity float64
	Timeout       time.Duration
}

// Retriever owns the embed-then-search path and its request-scoped
// degradations: lexical search when the embedding gateway is unavailable,
// empty results when the store itself fails.
type Retriever struct {
	embedder embeddings.Embedder
	store    ChunkStore
	cfg      RetrievalConfig
	logger   *log.Logger
}

func NewRetriever(embedder embeddings.Embedder, store ChunkStore, cfg RetrievalConfig, logger *log.Logger) *Retriever {
	if logger == nil {
		logger = log.Default()
	}
	if cfg.TopK <= 0 {
		cfg.TopK = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}

	return &Retriever{
		embedder: embedder,
		store:    store,
		cfg:      cfg,
		logger:   logger,
	}
}

// Retrieve returns the chunks grounding one question, ordered by descending
// similarity. An unreachable store is treated as an empty corpus; the only
// errors returned are programming mistakes (nil collaborators).
func (r *Retriever) Retrieve(ctx context.Context, question string) ([]RetrievedChunk, error) {
	if r.store == nil {
		return nil, fmt.Errorf("chunk store is not configured")
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	chunks, err := r.vectorSearch(ctx, question)
	if err == nil {
		return chunks, nil
	}

	if !errors.Is(err, embeddings.ErrUnavailable) && !errors.Is(err, context.DeadlineExceeded) {
		r.logger.Printf("vector retrieval failed, treating corpus as empty: %v", err)
		return nil, nil
	}

	// The switch to lexical search is scoped to this request only.
	r.logger.Printf("embedding path unavailable, using lexical search: %v", err)

	// The retrieval deadline may already be spent on the embedding call.
	lexCtx := ctx
	if ctx.Err() != nil {
		var lexCancel context.CancelFunc
		lexCtx, lexCancel = context.WithTimeout(context.WithoutCancel(ctx), r.cfg.Timeout)
		defer lexCancel()
	}

	lexical, lexErr := r.store.SearchText(lexCtx, question, r.cfg.TopK)
	if lexErr != nil {
		r.logger.Printf("lexical retrieval failed, treating corpus as empty: %v", lexErr)
		return nil, nil
	}
	return lexical, nil
}

func (r *Retriever) vectorSearch(ctx context.Context, question string) ([]RetrievedChunk, error) {
	if r.embedder == nil {
		return nil, fmt.Errorf("embedder is not configured: %w", embeddings.ErrUnavailable)
	}

	vector, err := r.embedder.Embed(ctx, question)
	if err != nil {
		return nil, err
	}
	if len(vector) == 0 {
		return nil, fmt.Errorf("embedder returned an empty vector: %w", embeddings.ErrUnavailable)
	}

	chunks, err := r.store.SimilarChunks(ctx, vector, r.cfg.TopK)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}

	if r.cfg.MinSimilarity > 0 {
		kept := chunks[:0]
		for _, chunk := range chunks {
			if chunk.Similarity >= r.cfg.MinSimilarity {
				kept = append(kept, chunk)
			}
		}
		chunks = kept
	}
	return chunks, nil
}
