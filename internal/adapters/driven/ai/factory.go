package ai

import (
	"fmt"

	"github.com/ferrule-labs/docstream-core/internal/core/domain"
	"github.com/ferrule-labs/docstream-core/internal/core/ports/driven"
)

// Ensure Registry implements EmbeddingFactory
var _ driven.EmbeddingFactory = (*Registry)(nil)

// Registry resolves embedding provider keys to configured services.
// Processing plans pin a provider key per document; unknown or empty keys
// fall back to the default so a stale plan never stops a job.
type Registry struct {
	defaultKey string
	services   map[string]driven.EmbeddingService
}

// NewRegistry creates a provider registry with the given default key.
func NewRegistry(defaultKey string) *Registry {
	return &Registry{
		defaultKey: defaultKey,
		services:   make(map[string]driven.EmbeddingService),
	}
}

// Register adds a provider under a key. The first registered provider becomes
// the default when the configured default key is never registered.
func (r *Registry) Register(key string, svc driven.EmbeddingService) {
	if svc == nil {
		return
	}
	if len(r.services) == 0 && r.defaultKey == "" {
		r.defaultKey = key
	}
	r.services[key] = svc
}

// Get resolves a provider key; empty or unknown keys return the default.
func (r *Registry) Get(key string) driven.EmbeddingService {
	if svc, ok := r.services[key]; ok {
		return svc
	}
	return r.services[r.defaultKey]
}

// DefaultKey returns the provider key used for fallback.
func (r *Registry) DefaultKey() string {
	return r.defaultKey
}

// Close shuts down every registered provider.
func (r *Registry) Close() error {
	var firstErr error
	for key, svc := range r.services {
		if err := svc.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close provider %s: %w", key, err)
		}
	}
	return firstErr
}

// NewEmbeddingService builds a provider from its key and credentials.
func NewEmbeddingService(provider, apiKey, model, baseURL string) (driven.EmbeddingService, error) {
	switch provider {
	case "openai":
		return NewOpenAIEmbedding(apiKey, model, baseURL)
	case "ollama":
		return NewOllamaEmbedding(baseURL, model)
	default:
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidProvider, provider)
	}
}
