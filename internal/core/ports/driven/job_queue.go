package driven

import (
	"context"

	"github.com/ferrule-labs/docstream-core/internal/core/domain"
)

// JobDelivery is one claimed queue entry: the decoded job plus the stream
// bookkeeping the worker needs to ack, retry, or dead-letter it.
type JobDelivery struct {
	// MessageID is the stream entry id
	MessageID string

	// Job is the decoded envelope; nil when the payload was malformed
	Job *domain.JobEnvelope

	// RawJob is the serialized envelope as carried on the wire
	RawJob string

	// RetryCount is how many times this entry has already failed delivery
	// (0 on first delivery)
	RetryCount int

	// Malformed marks an entry whose payload could not be decoded.
	// Such entries are acknowledged and dropped, never retried.
	Malformed bool
}

// JobQueue is the durable, ordered, multi-consumer ingestion stream.
// Delivery is at-least-once: an entry stays claimable until acknowledged,
// and entries that exhaust their retries move to a dead-letter stream.
type JobQueue interface {
	// Enqueue appends a job to the stream.
	Enqueue(ctx context.Context, job *domain.JobEnvelope) error

	// Fetch claims up to count entries for this consumer, blocking up to
	// blockSeconds for new work. Abandoned entries from dead consumers are
	// reclaimed ahead of new ones. Returns an empty slice on timeout.
	Fetch(ctx context.Context, count int, blockSeconds int) ([]*JobDelivery, error)

	// Ack acknowledges an entry, removing it from the pending set.
	Ack(ctx context.Context, messageID string) error

	// DeadLetter copies an entry to the dead-letter stream with the failure
	// reason and acknowledges the original.
	DeadLetter(ctx context.Context, delivery *JobDelivery, reason string) error

	// Stats returns stream depth counters.
	Stats(ctx context.Context) (*QueueStats, error)

	// Ping checks if the queue backend is healthy.
	Ping(ctx context.Context) error

	// Close cleans up resources.
	Close() error
}

// QueueStats contains queue statistics
type QueueStats struct {
	// PendingCount is the number of entries waiting in the stream
	PendingCount int64 `json:"pending_count"`

	// ProcessingCount is the number of entries claimed but unacknowledged
	ProcessingCount int64 `json:"processing_count"`

	// DeadLetterCount is the number of entries in the dead-letter stream
	DeadLetterCount int64 `json:"dead_letter_count"`
}
