package chat

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"
)

// MemoryChunkStore is a brute-force in-process store. It backs tests and
// small single-binary deployments seeded from a JSON snapshot; the Postgres
// store is the production path.
type MemoryChunkStore struct {
	mu     sync.RWMutex
	chunks []DocumentChunk
}

func NewMemoryChunkStore() *MemoryChunkStore {
	return &MemoryChunkStore{}
}

func (s *MemoryChunkStore) Load(chunks []DocumentChunk) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks = append(s.chunks, chunks...)
}

func (s *MemoryChunkStore) SimilarChunks(ctx context.Context, embedding []float32, k int) ([]RetrievedChunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	k = clampK(k)

	type scored struct {
		chunk DocumentChunk
		score float64
		order int
	}

	results := make([]scored, 0, len(s.chunks))
	for i, chunk := range s.chunks {
		results = append(results, scored{chunk: chunk, score: cosineSimilarity(embedding, chunk.Embedding), order: i})
	}

	// Ties keep insertion order.
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].score > results[j].score
	})

	if len(results) > k {
		results = results[:k]
	}

	retrieved := make([]RetrievedChunk, len(results))
	for i, r := range results {
		retrieved[i] = RetrievedChunk{DocumentChunk: r.chunk, Similarity: r.score}
	}
	return retrieved, nil
}

func (s *MemoryChunkStore) SearchText(ctx context.Context, query string, k int) ([]RetrievedChunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	k = clampK(k)

	needle := strings.ToLower(strings.TrimSpace(query))
	results := make([]RetrievedChunk, 0)
	for _, chunk := range s.chunks {
		if needle == "" || !strings.Contains(strings.ToLower(chunk.Content), needle) {
			continue
		}
		results = append(results, RetrievedChunk{DocumentChunk: chunk, Similarity: LexicalScore})
		if len(results) == k {
			break
		}
	}
	return results, nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

var _ ChunkStore = (*MemoryChunkStore)(nil)
