package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"

	"ai-content-pipeline/internal/models"
)

// EmbeddingRecord is one persisted content chunk with its vector. Records
// are append-only from this system's perspective; deletion follows the
// owning post's lifecycle elsewhere.
type EmbeddingRecord struct {
	ID        string    `json:"id"`
	PostID    string    `json:"post_id"`
	Content   string    `json:"content"`
	Vector    []float32 `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// EmbeddingMatch is an EmbeddingRecord ranked against a query vector.
type EmbeddingMatch struct {
	ID         string  `json:"id"`
	PostID     string  `json:"postId"`
	Content    string  `json:"content"`
	Similarity float64 `json:"similarity"`
}

// SaveEmbedding inserts one embedding row and returns its id. The vector is
// stored exactly as produced by the provider, without truncation or
// re-normalization; only its length is checked against the store dimension.
func (s *Store) SaveEmbedding(ctx context.Context, postID, content string, vector []float32) (string, error) {
	if len(vector) != s.dimension {
		return "", fmt.Errorf("%w: got %d, store holds %d", models.ErrDimensionMismatch, len(vector), s.dimension)
	}

	id := uuid.New().String()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO embeddings (id, post_id, content, embedding, created_at)
		VALUES ($1, $2, $3, $4, NOW())
	`, id, postID, content, pgvector.NewVector(vector))
	if err != nil {
		return "", fmt.Errorf("insert embedding: %w", err)
	}
	return id, nil
}

// NearestEmbeddings returns the limit closest records to the query vector by
// cosine distance, most similar first. Distance is computed by pgvector's
// <=> operator so the scan stays inside the database and can use an index;
// created_at breaks distance ties in insertion order. An empty table yields
// an empty slice.
func (s *Store) NearestEmbeddings(ctx context.Context, query []float32, limit int) ([]EmbeddingMatch, error) {
	if len(query) != s.dimension {
		return nil, fmt.Errorf("%w: query has %d, store holds %d", models.ErrDimensionMismatch, len(query), s.dimension)
	}
	if limit <= 0 {
		limit = 5
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, post_id, content, 1 - (embedding <=> $1) AS similarity
		FROM embeddings
		ORDER BY embedding <=> $1, created_at
		LIMIT $2
	`, pgvector.NewVector(query), limit)
	if err != nil {
		return nil, fmt.Errorf("query embeddings: %w", err)
	}
	defer rows.Close()

	matches := make([]EmbeddingMatch, 0, limit)
	for rows.Next() {
		var m EmbeddingMatch
		if err := rows.Scan(&m.ID, &m.PostID, &m.Content, &m.Similarity); err != nil {
			return nil, fmt.Errorf("scan embedding match: %w", err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate embedding matches: %w", err)
	}
	return matches, nil
}
