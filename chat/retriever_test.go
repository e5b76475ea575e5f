package chat_test

import (
	"context"
	"testing"
	"time"

	"github.com/altamira-institute/assistant/chat"
	"github.com/altamira-institute/assistant/embeddings"
)

func TestRetrieverSwitchesToLexicalPerRequest(t *testing.T) {
	store := &countingStore{inner: seededStore(
		chat.DocumentChunk{ID: "c1", DocumentID: "d1", Title: "Becas", Content: "Becas de investigación.", Embedding: []float32{1}},
	)}
	embedder := &flakyEmbedder{failures: 1, vector: []float32{1}}

	retriever := chat.NewRetriever(embedder, store, chat.RetrievalConfig{TopK: 5, Timeout: time.Second}, discard())

	// First request: embedding quota exhausted, lexical path used.
	first, err := retriever.Retrieve(context.Background(), "becas")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.textCalls != 1 {
		t.Fatalf("expected lexical search on first request, got %d text calls", store.textCalls)
	}
	if len(first) != 1 || first[0].Similarity != chat.LexicalScore {
		t.Fatalf("lexical result expected, got %+v", first)
	}

	// Second request: embedder recovered, the switch must not persist.
	second, err := retriever.Retrieve(context.Background(), "becas")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.vectorCalls != 1 {
		t.Fatalf("expected vector search on second request, got %d vector calls", store.vectorCalls)
	}
	if len(second) != 1 || second[0].Similarity == chat.LexicalScore {
		t.Fatalf("vector result expected, got %+v", second)
	}
}

func TestRetrieverDropsChunksBelowThreshold(t *testing.T) {
	store := seededStore(
		chat.DocumentChunk{ID: "good", Content: "a", Embedding: []float32{1, 0}},
		chat.DocumentChunk{ID: "weak", Content: "b", Embedding: []float32{0, 1}},
	)

	retriever := chat.NewRetriever(&stubEmbedder{vector: []float32{1, 0}}, store, chat.RetrievalConfig{
		TopK:          5,
		MinSimilarity: 0.5,
		Timeout:       time.Second,
	}, discard())

	results, err := retriever.Retrieve(context.Background(), "pregunta")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 1 || results[0].ID != "good" {
		t.Fatalf("threshold must drop weak chunks, got %+v", results)
	}
}

func TestRetrieverTreatsStoreFailureAsEmptyCorpus(t *testing.T) {
	retriever := chat.NewRetriever(&stubEmbedder{vector: []float32{1}}, erroringStore{}, chat.RetrievalConfig{TopK: 5, Timeout: time.Second}, discard())

	results, err := retriever.Retrieve(context.Background(), "pregunta")
	if err != nil {
		t.Fatalf("store failure must not surface: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected empty results, got %d", len(results))
	}
}

// flakyEmbedder fails its first calls with a quota error, then recovers.
type flakyEmbedder struct {
	failures int
	vector   []float32
}

func (f *flakyEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if f.failures > 0 {
		f.failures--
		return nil, embeddings.ErrQuotaExceeded
	}
	return f.vector, nil
}

var _ embeddings.Embedder = (*flakyEmbedder)(nil)
