package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ferrule-labs/docstream-core/internal/core/domain"
	"github.com/ferrule-labs/docstream-core/internal/core/ports/driven"
	"github.com/ferrule-labs/docstream-core/internal/core/services"
)

// Worker consumes ingestion jobs from the queue and drives each one through
// the processing pipeline. Acknowledgement happens only after the results are
// persisted, so a crash between processing and persistence redelivers the
// job rather than losing it.
type Worker struct {
	queue     driven.JobQueue
	pipeline  *services.Pipeline
	staging   driven.StagingStore
	documents driven.DocumentStore
	chunks    driven.ChunkStore
	logger    *slog.Logger

	// Configuration
	concurrency  int
	batchSize    int
	blockSeconds int
	maxRetries   int

	// Internal state
	mu      sync.RWMutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// WorkerConfig holds configuration for the worker.
type WorkerConfig struct {
	Queue     driven.JobQueue
	Pipeline  *services.Pipeline
	Staging   driven.StagingStore
	Documents driven.DocumentStore
	Chunks    driven.ChunkStore
	Logger    *slog.Logger

	Concurrency  int // Number of concurrent job processors
	BatchSize    int // Entries claimed per fetch
	BlockSeconds int // Seconds to block waiting for work before looping
	MaxRetries   int // Delivery attempts before dead-lettering
}

// NewWorker creates a new ingestion worker.
func NewWorker(cfg WorkerConfig) *Worker {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 10
	}

	blockSeconds := cfg.BlockSeconds
	if blockSeconds <= 0 {
		blockSeconds = 5
	}

	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	return &Worker{
		queue:        cfg.Queue,
		pipeline:     cfg.Pipeline,
		staging:      cfg.Staging,
		documents:    cfg.Documents,
		chunks:       cfg.Chunks,
		logger:       logger,
		concurrency:  concurrency,
		batchSize:    batchSize,
		blockSeconds: blockSeconds,
		maxRetries:   maxRetries,
	}
}

// Start begins the worker loop.
// It runs until Stop is called or context is cancelled.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	w.mu.Unlock()

	w.logger.Info("worker starting",
		"concurrency", w.concurrency,
		"batch_size", w.batchSize,
		"max_retries", w.maxRetries,
	)

	var wg sync.WaitGroup
	for i := 0; i < w.concurrency; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			w.processLoop(ctx, workerID)
		}(i)
	}

	go func() {
		wg.Wait()
		close(w.doneCh)
	}()

	return nil
}

// Stop gracefully stops the worker.
func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	close(w.stopCh)
	w.mu.Unlock()

	<-w.doneCh

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()

	w.logger.Info("worker stopped")
}

// Wait blocks until the worker stops.
func (w *Worker) Wait() {
	<-w.doneCh
}

// processLoop is the main processing loop for a worker goroutine.
func (w *Worker) processLoop(ctx context.Context, workerID int) {
	logger := w.logger.With("worker_id", workerID)
	logger.Info("worker goroutine started")

	for {
		select {
		case <-ctx.Done():
			logger.Info("worker context cancelled")
			return
		case <-w.stopCh:
			logger.Info("worker stop signal received")
			return
		default:
		}

		deliveries, err := w.queue.Fetch(ctx, w.batchSize, w.blockSeconds)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			logger.Error("failed to fetch jobs", "error", err)
			time.Sleep(time.Second) // Back off on error
			continue
		}

		for _, delivery := range deliveries {
			w.processDelivery(ctx, delivery, logger)
		}
	}
}

// processDelivery handles one claimed queue entry end to end.
func (w *Worker) processDelivery(ctx context.Context, delivery *driven.JobDelivery, logger *slog.Logger) {
	// Malformed payloads can never succeed: acknowledge and drop.
	if delivery.Malformed || delivery.Job == nil {
		logger.Error("dropping malformed queue entry",
			"message_id", delivery.MessageID,
			"raw", delivery.RawJob,
		)
		if err := w.queue.Ack(ctx, delivery.MessageID); err != nil {
			logger.Error("failed to ack malformed entry", "error", err)
		}
		return
	}

	job := delivery.Job
	logger = logger.With("job_id", job.ID, "message_id", delivery.MessageID, "retry_count", delivery.RetryCount)
	logger.Info("processing job", "source", job.SourceURI)

	startTime := time.Now()

	record := w.loadStagingRecord(ctx, job, logger)

	// A job enqueued with a known content hash short-circuits before the
	// pipeline runs: the document is already stored, so resolve to it.
	if job.ContentHash != "" {
		if existing, err := w.documents.GetByContentHash(ctx, job.ContentHash); err == nil {
			record.ContentHash = job.ContentHash
			record.MarkDone(existing.ID)
			w.saveStagingRecord(ctx, record, logger)
			if err := w.queue.Ack(ctx, delivery.MessageID); err != nil {
				logger.Error("failed to ack job", "error", err)
			}
			logger.Info("job resolved to existing document",
				"document_id", existing.ID,
				"content_hash", job.ContentHash,
			)
			return
		} else if !errors.Is(err, domain.ErrNotFound) {
			logger.Error("content hash lookup failed", "error", err)
		}
	}

	record.MarkProcessing()
	w.saveStagingRecord(ctx, record, logger)

	result := w.pipeline.ProcessDocument(ctx, job)

	if result.Success {
		documentID, err := w.persist(ctx, job, result)
		if err != nil {
			logger.Error("persistence failed", "error", err)
			w.handleFailure(ctx, delivery, record, fmt.Sprintf("persist: %v", err), true, logger)
			return
		}

		record.ContentHash = result.Document.ContentHash
		record.MarkDone(documentID)
		w.saveStagingRecord(ctx, record, logger)

		if err := w.queue.Ack(ctx, delivery.MessageID); err != nil {
			logger.Error("failed to ack job", "error", err)
		}

		logger.Info("job completed",
			"document_id", documentID,
			"duration", time.Since(startTime),
		)
		return
	}

	logger.Error("job failed",
		"duration", time.Since(startTime),
		"error", result.Error,
		"retryable", result.Retryable,
	)
	w.handleFailure(ctx, delivery, record, result.Error, result.Retryable, logger)
}

// loadStagingRecord fetches the ledger entry for a job, creating it on first
// delivery. A broken staging store never blocks processing.
func (w *Worker) loadStagingRecord(ctx context.Context, job *domain.JobEnvelope, logger *slog.Logger) *domain.StagingRecord {
	record, err := w.staging.Get(ctx, job.ID)
	if err == nil {
		return record
	}
	if !errors.Is(err, domain.ErrNotFound) {
		logger.Error("staging lookup failed", "error", err)
	}
	return domain.NewStagingRecord(job)
}

func (w *Worker) saveStagingRecord(ctx context.Context, record *domain.StagingRecord, logger *slog.Logger) {
	if err := w.staging.Save(ctx, record); err != nil {
		logger.Error("staging save failed", "status", record.Status, "error", err)
	}
}

// persist stores the document projection and its chunks. The document store
// deduplicates on content hash, so reprocessed bytes resolve to the already
// stored document and its chunks are left untouched.
func (w *Worker) persist(ctx context.Context, job *domain.JobEnvelope, result *domain.PipelineResult) (string, error) {
	doc := result.Document

	if existing, err := w.documents.GetByContentHash(ctx, doc.ContentHash); err == nil {
		return existing.ID, nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		return "", fmt.Errorf("content hash lookup: %w", err)
	}

	documentID, err := w.documents.Save(ctx, &domain.Document{
		ID:            uuid.NewString(),
		JobID:         job.ID,
		SourceURI:     doc.SourceURI,
		MimeType:      doc.MimeType,
		ContentHash:   doc.ContentHash,
		ExtractedText: doc.ExtractedText,
		Analysis:      doc.Analysis,
		Embedding:     doc.Embedding,
		EmbeddingDim:  doc.EmbeddingDim,
		Status:        doc.Status,
		SchemaVersion: doc.SchemaVersion,
		IngestedAt:    doc.IngestedAt,
	})
	if err != nil {
		return "", fmt.Errorf("save document: %w", err)
	}

	if len(result.ChunkEmbeddings) > 0 {
		chunks := make([]*domain.DocumentChunk, 0, len(result.ChunkEmbeddings))
		now := time.Now().UTC()
		for _, ce := range result.ChunkEmbeddings {
			chunks = append(chunks, &domain.DocumentChunk{
				ID:         uuid.NewString(),
				DocumentID: documentID,
				Index:      ce.Index,
				Content:    ce.Content,
				StartChar:  ce.Start,
				EndChar:    ce.End,
				Embedding:  ce.Embedding,
				CreatedAt:  now,
			})
		}
		if err := w.chunks.SaveBatch(ctx, chunks); err != nil {
			return "", fmt.Errorf("save chunks: %w", err)
		}
	}

	return documentID, nil
}

// handleFailure routes a failed delivery: unrecoverable input and exhausted
// retries dead-letter, anything else stays unacknowledged for redelivery.
func (w *Worker) handleFailure(ctx context.Context, delivery *driven.JobDelivery, record *domain.StagingRecord, reason string, retryable bool, logger *slog.Logger) {
	if !retryable || delivery.RetryCount >= w.maxRetries {
		record.MarkFailed(reason)
		w.saveStagingRecord(ctx, record, logger)

		if err := w.queue.DeadLetter(ctx, delivery, reason); err != nil {
			logger.Error("failed to dead-letter job", "error", err)
		} else {
			logger.Warn("job dead-lettered", "reason", reason)
		}
		return
	}

	// Below the retry bound: put the ledger back to pending and leave the
	// entry unacknowledged so the queue redelivers it.
	record.MarkPending(reason)
	w.saveStagingRecord(ctx, record, logger)
	logger.Info("job left for redelivery",
		"attempt", delivery.RetryCount+1,
		"max_retries", w.maxRetries,
	)
}

// Health returns health status of the worker.
type Health struct {
	Running     bool   `json:"running"`
	QueueHealth bool   `json:"queue_health"`
	Error       string `json:"error,omitempty"`
}

// Health returns the health status of the worker.
func (w *Worker) Health(ctx context.Context) Health {
	w.mu.RLock()
	running := w.running
	w.mu.RUnlock()

	health := Health{
		Running: running,
	}

	if err := w.queue.Ping(ctx); err != nil {
		health.QueueHealth = false
		health.Error = err.Error()
	} else {
		health.QueueHealth = true
	}

	return health
}
