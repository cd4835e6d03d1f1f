package domain

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
)

// GenerateID creates a unique random ID.
func GenerateID() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}

// HashContent returns the hex-encoded SHA-256 of the given bytes.
// The hash is the idempotency key for ingestion: at most one stored
// document exists per content hash.
func HashContent(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// JobEnvelope is one unit of ingestion work. It is immutable once enqueued;
// retries redeliver the same envelope.
type JobEnvelope struct {
	// ID is the unique identifier for this job
	ID string `json:"id"`

	// SourceURI is where the document bytes live (file://, s3://, ...)
	SourceURI string `json:"source_uri"`

	// MimeType is the declared content type; may be empty or generic,
	// in which case the pipeline sniffs the real type
	MimeType string `json:"mime_type"`

	// ContentHash is the SHA-256 of the source bytes, when known at enqueue time
	ContentHash string `json:"content_hash"`

	// NotifyURL, when set, receives a best-effort completion callback
	NotifyURL string `json:"notify_url,omitempty"`

	// Metadata carries arbitrary caller-supplied context
	Metadata map[string]string `json:"metadata,omitempty"`

	// ReceivedAt is when the job entered the system
	ReceivedAt time.Time `json:"received_at"`
}

// NewJobEnvelope creates a job for a source location.
func NewJobEnvelope(sourceURI, mimeType string) *JobEnvelope {
	return &JobEnvelope{
		ID:         uuid.NewString(),
		SourceURI:  sourceURI,
		MimeType:   mimeType,
		ReceivedAt: time.Now().UTC(),
	}
}

// StagingStatus is the lifecycle state of a job in the staging ledger.
type StagingStatus string

const (
	StagingPending    StagingStatus = "pending"
	StagingProcessing StagingStatus = "processing"
	StagingDone       StagingStatus = "done"
	StagingFailed     StagingStatus = "failed"
)

// StagingRecord tracks a job's lifecycle independent of the final document.
// It is created on first dequeue, updated at each phase transition, and never
// deleted: together with the dead-letter stream it is the audit trail of what
// happened to every job.
type StagingRecord struct {
	// JobID keys the record; one record per job
	JobID string `json:"job_id"`

	// Status is the current lifecycle state
	Status StagingStatus `json:"status"`

	// Attempts counts how many times a worker has claimed this job
	Attempts int `json:"attempts"`

	// SourceURI and MimeType snapshot the raw input
	SourceURI string `json:"source_uri"`
	MimeType  string `json:"mime_type"`

	// ContentHash is filled in once the bytes have been read
	ContentHash string `json:"content_hash,omitempty"`

	// DocumentID points at the stored document once processing succeeded
	DocumentID string `json:"document_id,omitempty"`

	// Error holds the last failure message
	Error string `json:"error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewStagingRecord creates a pending record for a job.
func NewStagingRecord(job *JobEnvelope) *StagingRecord {
	now := time.Now().UTC()
	return &StagingRecord{
		JobID:       job.ID,
		Status:      StagingPending,
		SourceURI:   job.SourceURI,
		MimeType:    job.MimeType,
		ContentHash: job.ContentHash,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// MarkProcessing transitions the record to processing and counts the attempt.
func (r *StagingRecord) MarkProcessing() {
	r.Status = StagingProcessing
	r.Attempts++
	r.UpdatedAt = time.Now().UTC()
}

// MarkDone transitions the record to done, recording the stored document.
func (r *StagingRecord) MarkDone(documentID string) {
	r.Status = StagingDone
	r.DocumentID = documentID
	r.Error = ""
	r.UpdatedAt = time.Now().UTC()
}

// MarkPending returns the record to pending so a later redelivery can retry it.
func (r *StagingRecord) MarkPending(reason string) {
	r.Status = StagingPending
	r.Error = reason
	r.UpdatedAt = time.Now().UTC()
}

// MarkFailed transitions the record to its terminal failed state.
func (r *StagingRecord) MarkFailed(reason string) {
	r.Status = StagingFailed
	r.Error = reason
	r.UpdatedAt = time.Now().UTC()
}
