package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ferrule-labs/docstream-core/internal/core/domain"
	"github.com/ferrule-labs/docstream-core/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.StagingStore = (*StagingStore)(nil)

// StagingStore implements driven.StagingStore using PostgreSQL.
type StagingStore struct {
	db *DB
}

// NewStagingStore creates a new StagingStore
func NewStagingStore(db *DB) *StagingStore {
	return &StagingStore{db: db}
}

// Get retrieves the record for a job id.
func (s *StagingStore) Get(ctx context.Context, jobID string) (*domain.StagingRecord, error) {
	query := `
		SELECT job_id, status, attempts, source_uri, mime_type, content_hash,
			document_id, error, created_at, updated_at
		FROM staging_jobs
		WHERE job_id = $1
	`

	var (
		rec    domain.StagingRecord
		status string
	)
	err := s.db.QueryRowContext(ctx, query, jobID).Scan(
		&rec.JobID,
		&status,
		&rec.Attempts,
		&rec.SourceURI,
		&rec.MimeType,
		&rec.ContentHash,
		&rec.DocumentID,
		&rec.Error,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("query staging record: %w", err)
	}
	rec.Status = domain.StagingStatus(status)

	return &rec, nil
}

// Save creates or updates a record.
func (s *StagingStore) Save(ctx context.Context, record *domain.StagingRecord) error {
	query := `
		INSERT INTO staging_jobs (job_id, status, attempts, source_uri, mime_type,
			content_hash, document_id, error, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (job_id) DO UPDATE SET
			status = EXCLUDED.status,
			attempts = EXCLUDED.attempts,
			content_hash = EXCLUDED.content_hash,
			document_id = EXCLUDED.document_id,
			error = EXCLUDED.error,
			updated_at = EXCLUDED.updated_at
	`

	_, err := s.db.ExecContext(ctx, query,
		record.JobID,
		string(record.Status),
		record.Attempts,
		record.SourceURI,
		record.MimeType,
		record.ContentHash,
		record.DocumentID,
		record.Error,
		record.CreatedAt,
		record.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save staging record: %w", err)
	}
	return nil
}
