package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"sync"
	"time"
	"unicode"

	"golang.org/x/sync/errgroup"

	"github.com/ferrule-labs/docstream-core/internal/core/domain"
	"github.com/ferrule-labs/docstream-core/internal/core/ports/driven"
)

const (
	// previewLength bounds the content sample handed to the decision engine
	previewLength = 500

	// chunkingThreshold is the text length above which documents are
	// chunked; shorter documents embed as a single unit
	chunkingThreshold = 2000

	// embedConcurrency bounds parallel per-chunk embedding calls
	embedConcurrency = 4
)

// Pipeline orchestrates document processing:
// load → detect → plan → parse → extract entities → chunk → embed → assemble
// → notify. Every step converts failures into the result; no error or panic
// escapes ProcessDocument.
type Pipeline struct {
	loader     driven.SourceLoader
	detector   driven.ContentDetector
	decision   *DecisionEngine
	chunker    *Chunker
	structured driven.DocumentParser
	ocr        driven.OCRService
	advanced   driven.DocumentParser
	entities   driven.EntityExtractor
	embeddings driven.EmbeddingFactory
	notifier   driven.NotificationService
	logger     *slog.Logger
}

// PipelineConfig holds dependencies for the Pipeline.
type PipelineConfig struct {
	Loader     driven.SourceLoader
	Detector   driven.ContentDetector
	Decision   *DecisionEngine
	Chunker    *Chunker
	Structured driven.DocumentParser
	OCR        driven.OCRService
	Advanced   driven.DocumentParser
	Entities   driven.EntityExtractor
	Embeddings driven.EmbeddingFactory
	Notifier   driven.NotificationService
	Logger     *slog.Logger
}

// NewPipeline creates a document processing pipeline.
func NewPipeline(cfg PipelineConfig) *Pipeline {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	chunker := cfg.Chunker
	if chunker == nil {
		chunker = NewChunker()
	}
	return &Pipeline{
		loader:     cfg.Loader,
		detector:   cfg.Detector,
		decision:   cfg.Decision,
		chunker:    chunker,
		structured: cfg.Structured,
		ocr:        cfg.OCR,
		advanced:   cfg.Advanced,
		entities:   cfg.Entities,
		embeddings: cfg.Embeddings,
		notifier:   cfg.Notifier,
		logger:     logger,
	}
}

// ProcessDocument runs the full pipeline for one job. The returned result is
// always non-nil; Success/Error describe the outcome and Retryable marks
// whether redelivery could help.
func (p *Pipeline) ProcessDocument(ctx context.Context, job *domain.JobEnvelope) (result *domain.PipelineResult) {
	logger := p.logger.With("job_id", job.ID, "source", job.SourceURI)

	// last-resort backstop: a panic anywhere below becomes a failure result
	defer func() {
		if r := recover(); r != nil {
			logger.Error("pipeline panic recovered", "panic", r)
			result = &domain.PipelineResult{
				Success:   false,
				Error:     fmt.Sprintf("pipeline panic: %v", r),
				Retryable: true,
			}
		}
	}()

	start := time.Now()

	// Step 1: load source bytes. A missing source is fatal and not retried;
	// other load failures are transient.
	data, err := p.loader.Load(ctx, job.SourceURI)
	if err != nil {
		logger.Error("source load failed", "error", err)
		if errors.Is(err, domain.ErrSourceMissing) {
			return &domain.PipelineResult{
				Success:   false,
				Error:     err.Error(),
				Retryable: false,
			}
		}
		return &domain.PipelineResult{
			Success:   false,
			Error:     fmt.Sprintf("source load failed: %v", err),
			Retryable: true,
		}
	}

	// Step 2: resolve the MIME type when the declared one is unusable.
	mimeType := job.MimeType
	if isGenericMime(mimeType) && p.detector != nil {
		mimeType = p.detector.Detect(data, job.SourceURI)
		logger.Debug("mime type detected", "declared", job.MimeType, "detected", mimeType)
	}

	// Step 3: bounded preview for the decision engine; a partial or empty
	// preview is fine.
	preview := contentPreview(data)

	// Step 4: processing plan. The plan pins the embedding provider for the
	// rest of the pipeline.
	plan := p.decision.GeneratePlan(ctx, PlanInput{
		FileName:       path.Base(job.SourceURI),
		FileSize:       int64(len(data)),
		MimeType:       mimeType,
		ContentPreview: preview,
		Metadata:       job.Metadata,
	})
	logger.Info("plan generated",
		"document_type", plan.DocumentType,
		"strategy", plan.Strategy,
		"priority", plan.Priority,
		"language", plan.Language,
	)

	// Step 5: parse.
	parse := p.dispatchParse(ctx, data, mimeType, plan)
	text := sanitizeText(parse.Text)

	// Step 6: best-effort entity extraction.
	analysis := domain.TextAnalysis{}
	if text != "" && plan.EnableNER && p.entities != nil {
		if a, err := p.entities.Extract(ctx, text); err != nil {
			logger.Warn("entity extraction failed, continuing without", "error", err)
		} else if a != nil {
			analysis = *a
		}
	}

	// Step 7: chunk long documents.
	var chunks []domain.TextChunk
	if len(text) > chunkingThreshold {
		chunks = p.chunker.ChunkText(text, ChunkOptions{
			MaxTokens:     plan.ChunkSize,
			OverlapTokens: plan.ChunkOverlap,
			Strategy:      plan.Strategy,
		})
	}

	// Step 8: embeddings.
	embedder := p.embeddings.Get(plan.EmbeddingProvider)
	docEmbedding, chunkEmbeddings, embedErr := p.embed(ctx, embedder, text, chunks, logger)

	// Step 9: assemble the canonical document.
	doc := &domain.CanonicalDocument{
		JobID:         job.ID,
		SourceURI:     job.SourceURI,
		IngestedAt:    time.Now().UTC(),
		MimeType:      mimeType,
		IsStructured:  parse.Structured != nil,
		Structured:    parse.Structured,
		ExtractedText: text,
		Analysis:      analysis,
		Tables:        parse.Tables,
		Sections:      parse.Sections,
		Embedding:     docEmbedding,
		EmbeddingDim:  len(docEmbedding),
		ContentHash:   domain.HashContent(data),
		SchemaVersion: domain.SchemaVersion,
	}
	if !parse.Success {
		doc.ParseError = parse.ErrorMessage
	}
	if embedErr != "" {
		doc.EmbeddingError = embedErr
	}
	if parse.Success && embedErr == "" {
		doc.Status = domain.StatusProcessed
	} else {
		doc.Status = domain.StatusFailed
	}

	result = &domain.PipelineResult{
		Success:         doc.Status == domain.StatusProcessed,
		Document:        doc,
		ChunkEmbeddings: chunkEmbeddings,
		Plan:            plan,
	}
	if !result.Success {
		result.Error = strings.TrimSpace(doc.ParseError + " " + doc.EmbeddingError)
		result.Retryable = true
	}

	// Step 10: best-effort notification.
	if job.NotifyURL != "" && p.notifier != nil {
		result.Notification = p.notifier.Send(ctx, &driven.NotificationRequest{
			URL:    job.NotifyURL,
			JobID:  job.ID,
			Status: doc.Status,
			Error:  result.Error,
		})
		if result.Notification != nil && !result.Notification.Sent {
			logger.Warn("notification failed", "error", result.Notification.Error)
		}
	}

	logger.Info("pipeline finished",
		"success", result.Success,
		"chunks", len(chunkEmbeddings),
		"embedding_dim", doc.EmbeddingDim,
		"duration", time.Since(start),
	)

	return result
}

// dispatchParse routes bytes to the right parser: structured formats, image
// OCR, then the advanced parser chain, and finally raw text decoding.
func (p *Pipeline) dispatchParse(ctx context.Context, data []byte, mimeType string, plan *domain.ProcessingPlan) *domain.DocumentParseResult {
	if p.structured != nil && p.structured.CanHandle(mimeType) {
		return p.structured.Parse(ctx, data, mimeType)
	}

	if plan.RequiresOCR || strings.HasPrefix(mimeType, "image/") {
		if p.ocr != nil {
			return p.ocr.Parse(ctx, data, mimeType)
		}
		return &domain.DocumentParseResult{
			ParserName:   "none",
			Success:      false,
			ErrorMessage: "ocr required but no ocr capability configured",
		}
	}

	if p.advanced != nil && p.advanced.CanHandle(mimeType) {
		// the advanced chain claimed this type, so its failure is the
		// parse outcome; decoding raw bytes as text would mark binary
		// garbage as processed
		return p.advanced.Parse(ctx, data, mimeType)
	}

	return plainTextResult(data)
}

// embed generates chunk embeddings (bounded parallelism, per-chunk failure
// isolation) and derives the document vector. For unchunked documents the
// whole text embeds as one unit. Returns the non-empty error string when the
// document ends up with no usable vector.
func (p *Pipeline) embed(
	ctx context.Context,
	embedder driven.EmbeddingService,
	text string,
	chunks []domain.TextChunk,
	logger *slog.Logger,
) ([]float32, []domain.ChunkEmbedding, string) {
	if text == "" {
		return nil, nil, "no text to embed"
	}
	if embedder == nil {
		return nil, nil, "no embedding provider available"
	}

	if len(chunks) == 0 {
		vec, err := embedder.EmbedQuery(ctx, text)
		if err != nil {
			return nil, nil, fmt.Sprintf("embedding failed: %v", err)
		}
		return vec, nil, ""
	}

	type embedded struct {
		idx int
		vec []float32
	}

	var mu sync.Mutex
	results := make([]embedded, 0, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(embedConcurrency)

	for _, chunk := range chunks {
		chunk := chunk
		g.Go(func() error {
			vec, err := embedder.EmbedQuery(gctx, chunk.Content)
			if err != nil {
				// a failed chunk is skipped, not fatal
				logger.Warn("chunk embedding failed, skipping chunk",
					"chunk_index", chunk.Index, "error", err)
				return nil
			}
			mu.Lock()
			results = append(results, embedded{idx: chunk.Index, vec: vec})
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if len(results) == 0 {
		return nil, nil, "all chunk embeddings failed"
	}

	byIndex := make(map[int][]float32, len(results))
	vectors := make([][]float32, 0, len(results))
	for _, r := range results {
		byIndex[r.idx] = r.vec
	}

	chunkEmbeddings := make([]domain.ChunkEmbedding, 0, len(results))
	wantDim := 0
	for _, chunk := range chunks {
		vec, ok := byIndex[chunk.Index]
		if !ok {
			continue
		}
		// all persisted chunk vectors must share one dimensionality,
		// keyed off the first successful chunk
		if wantDim == 0 {
			wantDim = len(vec)
		} else if len(vec) != wantDim {
			logger.Warn("chunk embedding dimension mismatch, skipping chunk",
				"chunk_index", chunk.Index, "got", len(vec), "want", wantDim)
			continue
		}
		vectors = append(vectors, vec)
		chunkEmbeddings = append(chunkEmbeddings, domain.ChunkEmbedding{
			Index:     chunk.Index,
			Content:   chunk.Content,
			Start:     chunk.Start,
			End:       chunk.End,
			Embedding: vec,
			Metadata: map[string]string{
				"strategy":    string(chunk.Strategy),
				"token_count": fmt.Sprintf("%d", chunk.TokenCount),
				"provider":    embedder.Model(),
			},
		})
	}

	// document vector = dimension-wise mean over successful chunk vectors
	return domain.MeanVector(vectors), chunkEmbeddings, ""
}

// plainTextResult is the last-resort parser: decode bytes as text.
func plainTextResult(data []byte) *domain.DocumentParseResult {
	return &domain.DocumentParseResult{
		Text:       string(data),
		ParserName: "plaintext",
		Success:    true,
	}
}

// sanitizeText replaces non-printable control characters, keeping CR, LF
// and TAB.
func sanitizeText(text string) string {
	if text == "" {
		return ""
	}
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return ' '
		}
		return r
	}, text)
}

// contentPreview returns up to previewLength characters of printable text.
func contentPreview(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	s := string(data)
	if len(s) > previewLength {
		s = s[:previewLength]
	}
	return sanitizeText(s)
}

// isGenericMime reports whether a declared type is too vague to dispatch on.
func isGenericMime(mimeType string) bool {
	switch strings.ToLower(strings.TrimSpace(mimeType)) {
	case "", "application/octet-stream", "binary/octet-stream", "*/*":
		return true
	}
	return false
}
