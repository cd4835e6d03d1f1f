package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ferrule-labs/docstream-core/internal/core/domain"
	"github.com/ferrule-labs/docstream-core/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.DocumentStore = (*DocumentStore)(nil)

// DocumentStore implements driven.DocumentStore using PostgreSQL.
// The unique constraint on content_hash makes Save idempotent for
// identical bytes.
type DocumentStore struct {
	db *DB
}

// NewDocumentStore creates a new DocumentStore
func NewDocumentStore(db *DB) *DocumentStore {
	return &DocumentStore{db: db}
}

// Save stores a document, returning the stored id. When a document with the
// same content hash already exists the insert is skipped and the existing id
// is returned.
func (s *DocumentStore) Save(ctx context.Context, doc *domain.Document) (string, error) {
	analysis, err := json.Marshal(doc.Analysis)
	if err != nil {
		return "", fmt.Errorf("marshal analysis: %w", err)
	}

	query := `
		INSERT INTO documents (id, job_id, source_uri, mime_type, content_hash,
			extracted_text, analysis, embedding, embedding_dim, status,
			schema_version, ingested_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (content_hash) DO NOTHING
		RETURNING id
	`

	var id string
	err = s.db.QueryRowContext(ctx, query,
		doc.ID,
		doc.JobID,
		doc.SourceURI,
		doc.MimeType,
		doc.ContentHash,
		doc.ExtractedText,
		analysis,
		vectorValue(doc.Embedding),
		doc.EmbeddingDim,
		string(doc.Status),
		doc.SchemaVersion,
		doc.IngestedAt,
	).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("insert document: %w", err)
	}

	// conflict path: report the already stored document
	existing, err := s.GetByContentHash(ctx, doc.ContentHash)
	if err != nil {
		return "", fmt.Errorf("resolve existing document: %w", err)
	}
	return existing.ID, nil
}

// Get retrieves a document by id.
func (s *DocumentStore) Get(ctx context.Context, id string) (*domain.Document, error) {
	return s.getBy(ctx, "id = $1", id)
}

// GetByContentHash retrieves a document by content hash.
func (s *DocumentStore) GetByContentHash(ctx context.Context, hash string) (*domain.Document, error) {
	return s.getBy(ctx, "content_hash = $1", hash)
}

func (s *DocumentStore) getBy(ctx context.Context, where string, arg any) (*domain.Document, error) {
	query := `
		SELECT id, job_id, source_uri, mime_type, content_hash, extracted_text,
			analysis, embedding, embedding_dim, status, schema_version, ingested_at
		FROM documents
		WHERE ` + where

	var (
		doc      domain.Document
		analysis []byte
		vec      nullVector
		status   string
	)
	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&doc.ID,
		&doc.JobID,
		&doc.SourceURI,
		&doc.MimeType,
		&doc.ContentHash,
		&doc.ExtractedText,
		&analysis,
		&vec,
		&doc.EmbeddingDim,
		&status,
		&doc.SchemaVersion,
		&doc.IngestedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("query document: %w", err)
	}

	if err := json.Unmarshal(analysis, &doc.Analysis); err != nil {
		return nil, fmt.Errorf("unmarshal analysis: %w", err)
	}
	doc.Embedding = vec.Slice()
	doc.Status = domain.ProcessingStatus(status)

	return &doc, nil
}
