package chat

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
)

// snapshotDocument is the on-disk shape consumed by the load command and the
// in-memory seed: one document with its pre-chunked passages. Embeddings are
// optional; chunks without one are embedded at load time.
type snapshotDocument struct {
	ID       string            `json:"id"`
	Title    string            `json:"title"`
	URL      string            `json:"url"`
	Metadata map[string]string `json:"metadata"`
	Chunks   []snapshotChunk   `json:"chunks"`
}

type snapshotChunk struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Embedding []float32 `json:"embedding"`
}

// ReadSnapshot parses a JSON snapshot file into flat document chunks,
// assigning IDs where the file omits them.
func ReadSnapshot(path string) ([]DocumentChunk, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	var documents []snapshotDocument
	if err := json.Unmarshal(data, &documents); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}

	chunks := make([]DocumentChunk, 0)
	for i, doc := range documents {
		if strings.TrimSpace(doc.Title) == "" {
			return nil, fmt.Errorf("snapshot document %d has no title", i)
		}
		docID := doc.ID
		if docID == "" {
			docID = uuid.NewString()
		}

		for j, chunk := range doc.Chunks {
			if strings.TrimSpace(chunk.Content) == "" {
				return nil, fmt.Errorf("snapshot document %q chunk %d is empty", doc.Title, j)
			}
			chunkID := chunk.ID
			if chunkID == "" {
				chunkID = uuid.NewString()
			}
			chunks = append(chunks, DocumentChunk{
				ID:         chunkID,
				DocumentID: docID,
				Title:      doc.Title,
				URL:        doc.URL,
				Content:    chunk.Content,
				Metadata:   doc.Metadata,
				Embedding:  chunk.Embedding,
			})
		}
	}

	return chunks, nil
}
