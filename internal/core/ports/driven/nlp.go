package driven

import (
	"context"

	"github.com/ferrule-labs/docstream-core/internal/core/domain"
)

// EntityExtractor runs named-entity recognition and sentiment analysis over
// extracted text. Extraction is best effort: callers treat an error as
// "no enrichment", never as pipeline failure.
type EntityExtractor interface {
	Extract(ctx context.Context, text string) (*domain.TextAnalysis, error)
}

// LanguageDetection is the outcome of a language detection call.
type LanguageDetection struct {
	Language   string  `json:"language"`
	Confidence float64 `json:"confidence"`
}

// LanguageDetector identifies the language of a text sample. Implementations
// call an external service; callers degrade to a local heuristic on error.
type LanguageDetector interface {
	// Detect returns the most confident language at or above minConfidence.
	Detect(ctx context.Context, text string, minConfidence float64) (*LanguageDetection, error)

	// Health checks the detector backend.
	Health(ctx context.Context) error
}
