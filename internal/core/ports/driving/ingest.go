package driving

import (
	"context"

	"github.com/ferrule-labs/docstream-core/internal/core/domain"
)

// IngestService is the entry point for submitting documents to the pipeline.
type IngestService interface {
	// Submit enqueues an ingestion job for a source location and returns the
	// envelope as enqueued.
	Submit(ctx context.Context, sourceURI, mimeType, notifyURL string, metadata map[string]string) (*domain.JobEnvelope, error)

	// Status reports the staging ledger entry for a job.
	Status(ctx context.Context, jobID string) (*domain.StagingRecord, error)
}
