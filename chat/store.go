package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// ChunkStore is the read interface to the knowledge base. SimilarChunks
// orders by descending similarity; SearchText is the lexical fallback that
// works without the embedding gateway. Both return an empty slice, never an
// error, when nothing matches.
type ChunkStore interface {
	SimilarChunks(ctx context.Context, embedding []float32, k int) ([]RetrievedChunk, error)
	SearchText(ctx context.Context, query string, k int) ([]RetrievedChunk, error)
}

type PostgresChunkStore struct {
	pool *pgxpool.Pool
}

func NewPostgresChunkStore(pool *pgxpool.Pool) *PostgresChunkStore {
	return &PostgresChunkStore{pool: pool}
}

func (s *PostgresChunkStore) SimilarChunks(ctx context.Context, embedding []float32, k int) ([]RetrievedChunk, error) {
	if s.pool == nil {
		return nil, fmt.Errorf("postgres pool is nil")
	}
	if len(embedding) == 0 {
		return nil, fmt.Errorf("embedding is empty")
	}
	k = clampK(k)

	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	probes := k * 10
	if probes < 10 {
		probes = 10
	}
	if _, err := conn.Exec(ctx, fmt.Sprintf("SET ivfflat.probes = %d", probes)); err != nil {
		return nil, fmt.Errorf("set ivfflat probes: %w", err)
	}

	rows, err := conn.Query(ctx, `
        SELECT
            kc.id,
            kc.document_id,
            kd.title,
            kd.url,
            kc.content,
            kc.metadata,
            (kc.embedding <-> $1::vector) AS distance
        FROM kb_chunks kc
        JOIN kb_documents kd ON kd.id = kc.document_id
        ORDER BY kc.embedding <-> $1::vector, kc.created_at, kc.chunk_index
        LIMIT $2
    `, pgvector.NewVector(embedding), k)
	if err != nil {
		return nil, fmt.Errorf("query similar chunks: %w", err)
	}
	defer rows.Close()

	return scanChunks(rows, func(distance float64) float64 {
		return 1 / (1 + distance)
	})
}

// SearchText matches chunk content by case-insensitive containment. Results
// keep insertion order and carry the fixed lexical sentinel score.
func (s *PostgresChunkStore) SearchText(ctx context.Context, query string, k int) ([]RetrievedChunk, error) {
	if s.pool == nil {
		return nil, fmt.Errorf("postgres pool is nil")
	}
	k = clampK(k)

	rows, err := s.pool.Query(ctx, `
        SELECT
            kc.id,
            kc.document_id,
            kd.title,
            kd.url,
            kc.content,
            kc.metadata,
            0.0 AS distance
        FROM kb_chunks kc
        JOIN kb_documents kd ON kd.id = kc.document_id
        WHERE kc.content ILIKE '%' || $1 || '%' ESCAPE '\'
        ORDER BY kc.created_at, kc.chunk_index
        LIMIT $2
    `, escapeLikePattern(query), k)
	if err != nil {
		return nil, fmt.Errorf("query chunks by text: %w", err)
	}
	defer rows.Close()

	return scanChunks(rows, func(float64) float64 {
		return LexicalScore
	})
}

// escapeLikePattern quotes LIKE metacharacters so a question containing % or _
// matches literally instead of widening the pattern.
func escapeLikePattern(query string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(query)
}

// InsertChunks persists a pre-embedded snapshot. It backs the load command;
// chat requests never write.
func (s *PostgresChunkStore) InsertChunks(ctx context.Context, chunks []DocumentChunk) error {
	if s.pool == nil {
		return fmt.Errorf("postgres pool is nil")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	indexes := make(map[string]int, len(chunks))
	for _, chunk := range chunks {
		if _, err := tx.Exec(ctx, `
            INSERT INTO kb_documents (id, title, url)
            VALUES ($1, $2, $3)
            ON CONFLICT (id) DO UPDATE SET title = EXCLUDED.title, url = EXCLUDED.url, updated_at = NOW()
        `, chunk.DocumentID, chunk.Title, chunk.URL); err != nil {
			return fmt.Errorf("upsert document %s: %w", chunk.DocumentID, err)
		}

		metadata, err := json.Marshal(chunk.Metadata)
		if err != nil {
			return fmt.Errorf("marshal chunk metadata: %w", err)
		}

		idx := indexes[chunk.DocumentID]
		indexes[chunk.DocumentID] = idx + 1

		if _, err := tx.Exec(ctx, `
            INSERT INTO kb_chunks (id, document_id, chunk_index, content, metadata, embedding)
            VALUES ($1, $2, $3, $4, $5, $6)
            ON CONFLICT (document_id, chunk_index) DO UPDATE SET content = EXCLUDED.content, metadata = EXCLUDED.metadata, embedding = EXCLUDED.embedding
        `, chunk.ID, chunk.DocumentID, idx, chunk.Content, metadata, pgvector.NewVector(chunk.Embedding)); err != nil {
			return fmt.Errorf("insert chunk %s: %w", chunk.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit chunks: %w", err)
	}
	return nil
}

func scanChunks(rows pgx.Rows, score func(distance float64) float64) ([]RetrievedChunk, error) {
	results := make([]RetrievedChunk, 0)
	for rows.Next() {
		var item RetrievedChunk
		var metadata []byte
		var distance float64
		if err := rows.Scan(&item.ID, &item.DocumentID, &item.Title, &item.URL, &item.Content, &metadata, &distance); err != nil {
			return nil, fmt.Errorf("scan chunk row: %w", err)
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &item.Metadata); err != nil {
				return nil, fmt.Errorf("decode chunk metadata: %w", err)
			}
		}
		item.Similarity = score(distance)
		results = append(results, item)
	}

	if rows.Err() != nil {
		return nil, rows.Err()
	}

	return results, nil
}

func clampK(k int) int {
	const maxK = 20
	if k <= 0 {
		return 5
	}
	if k > maxK {
		return maxK
	}
	return k
}

var _ ChunkStore = (*PostgresChunkStore)(nil)
