package driving

import (
	"context"

	"github.com/ferrule-labs/docstream-core/internal/core/domain"
)

// SearchService performs hybrid retrieval over ingested chunks.
type SearchService interface {
	// Search embeds the query text and merges semantic and lexical hits.
	Search(ctx context.Context, query string, opts domain.SearchOptions) (*domain.SearchResult, error)

	// SearchWithEmbedding runs hybrid search with a caller-supplied query
	// embedding; queryText may be empty for semantic-only retrieval.
	SearchWithEmbedding(ctx context.Context, queryEmbedding []float32, queryText string, opts domain.SearchOptions) (*domain.SearchResult, error)
}
