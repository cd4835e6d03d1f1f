package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ferrule-labs/docstream-core/internal/core/domain"
	"github.com/ferrule-labs/docstream-core/internal/core/ports/driven"
	"github.com/ferrule-labs/docstream-core/internal/core/ports/driving"
)

// Ensure Ingest implements IngestService
var _ driving.IngestService = (*Ingest)(nil)

// Ingest accepts documents for processing. Submission only validates and
// enqueues; all heavy work happens in the worker.
type Ingest struct {
	queue   driven.JobQueue
	staging driven.StagingStore
	loader  driven.SourceLoader
	logger  *slog.Logger
}

// IngestConfig carries the ingestion dependencies. Loader is optional; when
// present, submissions carry the content hash of the source bytes.
type IngestConfig struct {
	Queue   driven.JobQueue
	Staging driven.StagingStore
	Loader  driven.SourceLoader
	Logger  *slog.Logger
}

// NewIngest creates the ingestion entry point.
func NewIngest(cfg IngestConfig) *Ingest {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingest{
		queue:   cfg.Queue,
		staging: cfg.Staging,
		loader:  cfg.Loader,
		logger:  logger,
	}
}

// Submit enqueues an ingestion job and returns the envelope as enqueued.
func (s *Ingest) Submit(ctx context.Context, sourceURI, mimeType, notifyURL string, metadata map[string]string) (*domain.JobEnvelope, error) {
	sourceURI = strings.TrimSpace(sourceURI)
	if sourceURI == "" {
		return nil, fmt.Errorf("%w: source uri is required", domain.ErrInvalidInput)
	}

	job := domain.NewJobEnvelope(sourceURI, mimeType)
	job.NotifyURL = notifyURL
	job.Metadata = metadata

	// Best effort: a readable source is hashed at submission so workers
	// can resolve duplicates without reprocessing.
	if s.loader != nil {
		if data, err := s.loader.Load(ctx, sourceURI); err == nil {
			job.ContentHash = domain.HashContent(data)
		} else {
			s.logger.Debug("source not readable at submission, hash deferred",
				"source", sourceURI, "error", err)
		}
	}

	if err := s.queue.Enqueue(ctx, job); err != nil {
		return nil, fmt.Errorf("enqueue job: %w", err)
	}

	s.logger.Info("job submitted", "job_id", job.ID, "source", job.SourceURI, "mime", job.MimeType)
	return job, nil
}

// Status reports the staging ledger entry for a job.
func (s *Ingest) Status(ctx context.Context, jobID string) (*domain.StagingRecord, error) {
	if jobID == "" {
		return nil, fmt.Errorf("%w: job id is required", domain.ErrInvalidInput)
	}
	return s.staging.Get(ctx, jobID)
}
