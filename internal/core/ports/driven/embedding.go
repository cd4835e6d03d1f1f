package driven

import (
	"context"
)

// EmbeddingService generates text embeddings
type EmbeddingService interface {
	// Embed generates embeddings for multiple texts
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery generates an embedding for a search query
	EmbedQuery(ctx context.Context, query string) ([]float32, error)

	// Dimensions returns the embedding dimension size
	Dimensions() int

	// MaxTokens returns the largest input the provider accepts
	MaxTokens() int

	// Model returns the model name being used
	Model() string

	// HealthCheck verifies the embedding service is available
	HealthCheck(ctx context.Context) error

	// Close releases resources held by the embedding service
	Close() error
}

// EmbeddingFactory resolves a provider key from a processing plan to a
// concrete embedding service. Unknown keys resolve to the default provider
// rather than failing, so a stale plan never stops the pipeline.
type EmbeddingFactory interface {
	// Get resolves a provider key; empty or unknown keys return the default.
	Get(key string) EmbeddingService

	// DefaultKey returns the provider key used for fallback.
	DefaultKey() string
}
