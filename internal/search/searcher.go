// Package search answers semantic queries over stored content embeddings.
// The query text is embedded live on the request path, then ranking is
// delegated to the store's vector index; this is the one place request
// latency is dominated by an external API call.
package search

import (
	"context"
	"log/slog"
	"time"

	"ai-content-pipeline/internal/ai"
	"ai-content-pipeline/internal/store"
	"ai-content-pipeline/internal/telemetry"
)

// DefaultLimit is used when a caller passes a non-positive limit.
const DefaultLimit = 5

// VectorIndex is the slice of the store the searcher needs. The concrete
// implementation is *store.Store; tests substitute an in-memory index.
type VectorIndex interface {
	NearestEmbeddings(ctx context.Context, query []float32, limit int) ([]store.EmbeddingMatch, error)
}

// Searcher embeds queries and ranks stored records against them.
type Searcher struct {
	index    VectorIndex
	embedder ai.Embedder
	logger   *slog.Logger
}

// New constructs a searcher over the given index and embedding backend.
func New(index VectorIndex, embedder ai.Embedder) *Searcher {
	return &Searcher{
		index:    index,
		embedder: embedder,
		logger:   slog.Default().With("component", "search"),
	}
}

// Search embeds query and returns up to limit records in descending
// similarity order. An embedding failure fails the search; there is no
// fallback text-search path.
func (s *Searcher) Search(ctx context.Context, query string, limit int) ([]store.EmbeddingMatch, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	started := time.Now()

	vector, err := s.embedder.GenerateEmbedding(ctx, query)
	if err != nil {
		s.logger.Error("query embedding failed", "err", err)
		return nil, err
	}

	matches, err := s.index.NearestEmbeddings(ctx, vector, limit)
	if err != nil {
		s.logger.Error("vector query failed", "err", err)
		return nil, err
	}

	telemetry.SearchDuration.Observe(time.Since(started).Seconds())
	s.logger.Debug("search complete", "hits", len(matches), "limit", limit)
	return matches, nil
}
