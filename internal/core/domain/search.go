package domain

import "time"

// SearchOptions controls a hybrid search request.
type SearchOptions struct {
	// Limit is the maximum number of merged results to return
	Limit int

	// SimilarityThreshold filters semantic candidates; chunks scoring below
	// it never appear in the merged result
	SimilarityThreshold float64
}

// ScoredChunk is one search hit: a stored chunk with its similarity score and
// how it was found.
type ScoredChunk struct {
	Chunk      *DocumentChunk `json:"chunk"`
	Document   *Document      `json:"document,omitempty"`
	Similarity float64        `json:"similarity"`

	// Semantic is true when the score came from vector similarity.
	// Lexical-only hits carry similarity 0.
	Semantic bool `json:"semantic"`
}

// SearchResult is the outcome of a hybrid search.
type SearchResult struct {
	Results    []*ScoredChunk `json:"results"`
	TotalFound int            `json:"total_found"`
	Took       time.Duration  `json:"took"`
}
