package driven

import (
	"context"

	"github.com/ferrule-labs/docstream-core/internal/core/domain"
)

// StagingStore persists the per-job lifecycle ledger. Records are created on
// first dequeue and updated at phase transitions; they are never deleted.
// Only the worker holding a job's claim writes its record.
type StagingStore interface {
	// Get retrieves the record for a job id; domain.ErrNotFound when absent.
	Get(ctx context.Context, jobID string) (*domain.StagingRecord, error)

	// Save creates or updates a record.
	Save(ctx context.Context, record *domain.StagingRecord) error
}

// DocumentStore persists canonical documents. Content hash is unique:
// saving a document whose hash already exists is a no-op that reports the
// existing document.
type DocumentStore interface {
	// Save stores a document, returning the stored id. When a document with
	// the same content hash exists its id is returned unchanged.
	Save(ctx context.Context, doc *domain.Document) (string, error)

	// Get retrieves a document by id; domain.ErrNotFound when absent.
	Get(ctx context.Context, id string) (*domain.Document, error)

	// GetByContentHash retrieves a document by content hash;
	// domain.ErrNotFound when absent.
	GetByContentHash(ctx context.Context, hash string) (*domain.Document, error)
}

// ChunkStore persists document chunks with their embeddings and serves both
// search legs of hybrid retrieval.
type ChunkStore interface {
	// SaveBatch stores all chunks of a document in one transaction.
	SaveBatch(ctx context.Context, chunks []*domain.DocumentChunk) error

	// GetByDocument retrieves a document's chunks ordered by index.
	GetByDocument(ctx context.Context, documentID string) ([]*domain.DocumentChunk, error)

	// SemanticSearch returns up to limit chunks by cosine similarity against
	// the query embedding, filtered to similarity >= threshold, most similar
	// first.
	SemanticSearch(ctx context.Context, embedding []float32, limit int, threshold float64) ([]*domain.ScoredChunk, error)

	// TextSearch returns up to limit chunks matching the query text by
	// lexical full-text rank.
	TextSearch(ctx context.Context, query string, limit int) ([]*domain.ScoredChunk, error)
}
