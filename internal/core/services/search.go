package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/ferrule-labs/docstream-core/internal/core/domain"
	"github.com/ferrule-labs/docstream-core/internal/core/ports/driven"
	"github.com/ferrule-labs/docstream-core/internal/core/ports/driving"
)

// Ensure Search implements SearchService
var _ driving.SearchService = (*Search)(nil)

const defaultSearchLimit = 10

// Search merges semantic and lexical retrieval over stored chunks. Both legs
// overfetch, duplicates collapse with the semantic score winning, and the
// merged set is sorted by score and truncated to the requested limit.
type Search struct {
	chunks     driven.ChunkStore
	documents  driven.DocumentStore
	embeddings driven.EmbeddingFactory
	logger     *slog.Logger
}

// SearchConfig holds dependencies for the Search service.
type SearchConfig struct {
	Chunks     driven.ChunkStore
	Documents  driven.DocumentStore
	Embeddings driven.EmbeddingFactory
	Logger     *slog.Logger
}

// NewSearch creates a hybrid search service.
func NewSearch(cfg SearchConfig) *Search {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Search{
		chunks:     cfg.Chunks,
		documents:  cfg.Documents,
		embeddings: cfg.Embeddings,
		logger:     logger,
	}
}

// Search embeds the query with the default provider and runs hybrid
// retrieval.
func (s *Search) Search(ctx context.Context, query string, opts domain.SearchOptions) (*domain.SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: empty query", domain.ErrInvalidInput)
	}

	embedder := s.embeddings.Get(s.embeddings.DefaultKey())
	embedding, err := embedder.EmbedQuery(ctx, query)
	if err != nil {
		// degrade to lexical-only rather than failing the search
		s.logger.Warn("query embedding failed, lexical only", "error", err)
		return s.SearchWithEmbedding(ctx, nil, query, opts)
	}

	return s.SearchWithEmbedding(ctx, embedding, query, opts)
}

// SearchWithEmbedding runs both retrieval legs with a caller-supplied query
// embedding. Either leg may be disabled: a nil embedding skips the semantic
// leg, an empty queryText skips the lexical leg.
func (s *Search) SearchWithEmbedding(ctx context.Context, queryEmbedding []float32, queryText string, opts domain.SearchOptions) (*domain.SearchResult, error) {
	start := time.Now()

	limit := opts.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	// each leg overfetches so the merge still fills the limit after
	// duplicates collapse
	fetchLimit := limit * 2

	var semantic []*domain.ScoredChunk
	if len(queryEmbedding) > 0 {
		var err error
		semantic, err = s.chunks.SemanticSearch(ctx, queryEmbedding, fetchLimit, opts.SimilarityThreshold)
		if err != nil {
			return nil, fmt.Errorf("semantic search: %w", err)
		}
	}

	var lexical []*domain.ScoredChunk
	if strings.TrimSpace(queryText) != "" {
		var err error
		lexical, err = s.chunks.TextSearch(ctx, queryText, fetchLimit)
		if err != nil {
			// lexical leg failure degrades the search, it does not fail it
			s.logger.Warn("text search failed, semantic only", "error", err)
			lexical = nil
		}
	}

	merged := mergeResults(semantic, lexical)
	if len(merged) > limit {
		merged = merged[:limit]
	}

	s.enrich(ctx, merged)

	return &domain.SearchResult{
		Results:    merged,
		TotalFound: len(merged),
		Took:       time.Since(start),
	}, nil
}

// mergeResults combines both legs by chunk id. A chunk found by both keeps
// its semantic score. Results sort by similarity descending, which places
// lexical-only hits (similarity 0) after all semantic hits.
func mergeResults(semantic, lexical []*domain.ScoredChunk) []*domain.ScoredChunk {
	seen := make(map[string]*domain.ScoredChunk, len(semantic)+len(lexical))
	order := make([]string, 0, len(semantic)+len(lexical))

	for _, hit := range semantic {
		hit.Semantic = true
		seen[hit.Chunk.ID] = hit
		order = append(order, hit.Chunk.ID)
	}
	for _, hit := range lexical {
		if _, dup := seen[hit.Chunk.ID]; dup {
			continue
		}
		hit.Semantic = false
		hit.Similarity = 0
		seen[hit.Chunk.ID] = hit
		order = append(order, hit.Chunk.ID)
	}

	merged := make([]*domain.ScoredChunk, 0, len(order))
	for _, id := range order {
		merged = append(merged, seen[id])
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Similarity > merged[j].Similarity
	})

	return merged
}

// enrich attaches parent documents to hits, one lookup per distinct
// document. Lookup failures leave the hit without its document.
func (s *Search) enrich(ctx context.Context, hits []*domain.ScoredChunk) {
	if s.documents == nil {
		return
	}
	cache := make(map[string]*domain.Document)
	for _, hit := range hits {
		if hit.Document != nil || hit.Chunk == nil {
			continue
		}
		doc, ok := cache[hit.Chunk.DocumentID]
		if !ok {
			var err error
			doc, err = s.documents.Get(ctx, hit.Chunk.DocumentID)
			if err != nil {
				s.logger.Warn("document enrichment failed",
					"document_id", hit.Chunk.DocumentID, "error", err)
				cache[hit.Chunk.DocumentID] = nil
				continue
			}
			cache[hit.Chunk.DocumentID] = doc
		}
		hit.Document = doc
	}
}
