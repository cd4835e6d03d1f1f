package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/ferrule-labs/docstream-core/internal/core/domain"
	"github.com/ferrule-labs/docstream-core/internal/core/ports/driven"
)

type mockLoader struct {
	data map[string][]byte
	err  error
}

func (m *mockLoader) Load(ctx context.Context, sourceURI string) ([]byte, error) {
	if m.err != nil {
		return nil, m.err
	}
	data, ok := m.data[sourceURI]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrSourceMissing, sourceURI)
	}
	return data, nil
}

type mockContentDetector struct {
	mimeType string
	calls    int
}

func (m *mockContentDetector) Detect(data []byte, hint string) string {
	m.calls++
	return m.mimeType
}

type mockParser struct {
	canHandle bool
	result    *domain.DocumentParseResult
}

func (m *mockParser) CanHandle(mimeType string) bool { return m.canHandle }

func (m *mockParser) Parse(ctx context.Context, data []byte, mimeType string) *domain.DocumentParseResult {
	return m.result
}

type mockOCR struct {
	result *domain.DocumentParseResult
}

func (m *mockOCR) Parse(ctx context.Context, data []byte, mimeType string) *domain.DocumentParseResult {
	return m.result
}

type mockEmbedder struct {
	dims      int
	embedFn   func(text string) ([]float32, error)
	callCount atomic.Int64
}

func (m *mockEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, t := range texts {
		vec, err := m.EmbedQuery(ctx, t)
		if err != nil {
			return nil, err
		}
		out = append(out, vec)
	}
	return out, nil
}

func (m *mockEmbedder) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	m.callCount.Add(1)
	if m.embedFn != nil {
		return m.embedFn(query)
	}
	vec := make([]float32, m.dims)
	for i := range vec {
		vec[i] = 1.0
	}
	return vec, nil
}

func (m *mockEmbedder) Dimensions() int                       { return m.dims }
func (m *mockEmbedder) MaxTokens() int                        { return 8192 }
func (m *mockEmbedder) Model() string                         { return "mock-embed" }
func (m *mockEmbedder) HealthCheck(ctx context.Context) error { return nil }
func (m *mockEmbedder) Close() error                          { return nil }

type mockFactory struct {
	svc     driven.EmbeddingService
	lastKey string
}

func (m *mockFactory) Get(key string) driven.EmbeddingService {
	m.lastKey = key
	return m.svc
}

func (m *mockFactory) DefaultKey() string { return "openai" }

type mockEntityExtractor struct {
	analysis *domain.TextAnalysis
	err      error
	calls    int
}

func (m *mockEntityExtractor) Extract(ctx context.Context, text string) (*domain.TextAnalysis, error) {
	m.calls++
	return m.analysis, m.err
}

type mockNotifier struct {
	lastReq *driven.NotificationRequest
	result  *domain.NotificationResult
}

func (m *mockNotifier) Send(ctx context.Context, req *driven.NotificationRequest) *domain.NotificationResult {
	m.lastReq = req
	return m.result
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testPipeline(cfg PipelineConfig) *Pipeline {
	if cfg.Decision == nil {
		cfg.Decision = NewDecisionEngine(DefaultDecisionConfig(), nil, quietLogger())
	}
	if cfg.Logger == nil {
		cfg.Logger = quietLogger()
	}
	return NewPipeline(cfg)
}

func TestProcessDocument_ShortTextSuccess(t *testing.T) {
	embedder := &mockEmbedder{dims: 4}
	factory := &mockFactory{svc: embedder}
	content := []byte("A short plain text document about quarterly planning.")

	p := testPipeline(PipelineConfig{
		Loader:     &mockLoader{data: map[string][]byte{"file:///notes.txt": content}},
		Embeddings: factory,
	})

	job := domain.NewJobEnvelope("file:///notes.txt", "text/plain")
	result := p.ProcessDocument(context.Background(), job)

	if !result.Success {
		t.Fatalf("expected success, got error %q", result.Error)
	}
	doc := result.Document
	if doc.Status != domain.StatusProcessed {
		t.Errorf("status = %s, want processed", doc.Status)
	}
	if doc.ExtractedText != string(content) {
		t.Errorf("extracted text mismatch: %q", doc.ExtractedText)
	}
	if doc.ContentHash != domain.HashContent(content) {
		t.Error("content hash does not match source bytes")
	}
	if doc.EmbeddingDim != 4 {
		t.Errorf("embedding dim = %d, want 4", doc.EmbeddingDim)
	}
	if len(result.ChunkEmbeddings) != 0 {
		t.Errorf("short document must not be chunked, got %d chunks", len(result.ChunkEmbeddings))
	}
	if got := embedder.callCount.Load(); got != 1 {
		t.Errorf("embed calls = %d, want 1 for unchunked document", got)
	}
	if doc.SchemaVersion != domain.SchemaVersion {
		t.Errorf("schema version = %d, want %d", doc.SchemaVersion, domain.SchemaVersion)
	}
}

func TestProcessDocument_MissingSourceIsFatal(t *testing.T) {
	p := testPipeline(PipelineConfig{
		Loader:     &mockLoader{data: map[string][]byte{}},
		Embeddings: &mockFactory{svc: &mockEmbedder{dims: 4}},
	})

	job := domain.NewJobEnvelope("file:///gone.txt", "text/plain")
	result := p.ProcessDocument(context.Background(), job)

	if result.Success {
		t.Fatal("expected failure for missing source")
	}
	if result.Retryable {
		t.Error("missing source must not be retryable")
	}
	if !strings.Contains(result.Error, domain.ErrSourceMissing.Error()) {
		t.Errorf("error = %q, want source missing", result.Error)
	}
	if result.Document != nil {
		t.Error("no document expected for missing source")
	}
}

func TestProcessDocument_TransientLoadFailureIsRetryable(t *testing.T) {
	p := testPipeline(PipelineConfig{
		Loader:     &mockLoader{err: errors.New("connection reset")},
		Embeddings: &mockFactory{svc: &mockEmbedder{dims: 4}},
	})

	job := domain.NewJobEnvelope("s3://bucket/report.pdf", "application/pdf")
	result := p.ProcessDocument(context.Background(), job)

	if result.Success {
		t.Fatal("expected failure")
	}
	if !result.Retryable {
		t.Error("transient load failure must be retryable")
	}
}

func TestProcessDocument_GenericMimeTriggersDetection(t *testing.T) {
	detector := &mockContentDetector{mimeType: "text/plain"}
	p := testPipeline(PipelineConfig{
		Loader:     &mockLoader{data: map[string][]byte{"f.bin": []byte("plain enough")}},
		Detector:   detector,
		Embeddings: &mockFactory{svc: &mockEmbedder{dims: 4}},
	})

	job := domain.NewJobEnvelope("f.bin", "application/octet-stream")
	result := p.ProcessDocument(context.Background(), job)

	if detector.calls != 1 {
		t.Errorf("detector calls = %d, want 1", detector.calls)
	}
	if result.Document.MimeType != "text/plain" {
		t.Errorf("mime = %q, want detected text/plain", result.Document.MimeType)
	}

	// a usable declared type skips detection
	detector.calls = 0
	job = domain.NewJobEnvelope("f.bin", "text/markdown")
	p.ProcessDocument(context.Background(), job)
	if detector.calls != 0 {
		t.Errorf("detector calls = %d, want 0 for declared type", detector.calls)
	}
}

func TestProcessDocument_LongTextIsChunkedAndAveraged(t *testing.T) {
	embedder := &mockEmbedder{
		embedFn: func(text string) ([]float32, error) {
			return []float32{float32(len(text)), 2}, nil
		},
	}
	text := strings.Repeat("a", 3000)

	p := testPipeline(PipelineConfig{
		Loader:     &mockLoader{data: map[string][]byte{"big.txt": []byte(text)}},
		Embeddings: &mockFactory{svc: embedder},
	})

	job := domain.NewJobEnvelope("big.txt", "text/plain")
	result := p.ProcessDocument(context.Background(), job)

	if !result.Success {
		t.Fatalf("expected success, got %q", result.Error)
	}
	// sliding window 512/100 over 3000 chars: [0,2048) then [1648,3000)
	if len(result.ChunkEmbeddings) != 2 {
		t.Fatalf("chunk embeddings = %d, want 2", len(result.ChunkEmbeddings))
	}
	doc := result.Document
	if doc.EmbeddingDim != 2 {
		t.Fatalf("embedding dim = %d, want 2", doc.EmbeddingDim)
	}
	// mean of chunk vectors: ((2048+1352)/2, 2)
	if doc.Embedding[0] != 1700 || doc.Embedding[1] != 2 {
		t.Errorf("document embedding = %v, want [1700 2]", doc.Embedding)
	}
	for i, ce := range result.ChunkEmbeddings {
		if ce.Index != i {
			t.Errorf("chunk embedding %d has index %d", i, ce.Index)
		}
	}
}

func TestProcessDocument_FailedChunkEmbeddingIsSkipped(t *testing.T) {
	embedder := &mockEmbedder{
		embedFn: func(text string) ([]float32, error) {
			if strings.HasPrefix(text, "b") {
				return nil, errors.New("provider hiccup")
			}
			return []float32{1, 1}, nil
		},
	}
	// two sliding-window chunks; second starts with 'b'
	text := strings.Repeat("a", 1648) + strings.Repeat("b", 1352)

	p := testPipeline(PipelineConfig{
		Loader:     &mockLoader{data: map[string][]byte{"mixed.txt": []byte(text)}},
		Embeddings: &mockFactory{svc: embedder},
	})

	job := domain.NewJobEnvelope("mixed.txt", "text/plain")
	result := p.ProcessDocument(context.Background(), job)

	if !result.Success {
		t.Fatalf("one failed chunk must not fail the document: %q", result.Error)
	}
	if len(result.ChunkEmbeddings) != 1 {
		t.Fatalf("chunk embeddings = %d, want 1 surviving", len(result.ChunkEmbeddings))
	}
	if result.ChunkEmbeddings[0].Index != 0 {
		t.Errorf("surviving chunk index = %d, want 0", result.ChunkEmbeddings[0].Index)
	}
	if result.Document.Embedding[0] != 1 {
		t.Errorf("document embedding = %v, want mean of surviving chunks", result.Document.Embedding)
	}
}

func TestProcessDocument_MismatchedChunkDimensionIsDropped(t *testing.T) {
	embedder := &mockEmbedder{
		embedFn: func(text string) ([]float32, error) {
			if strings.HasPrefix(text, "b") {
				return []float32{9, 9, 9}, nil
			}
			return []float32{4, 2}, nil
		},
	}
	// two sliding-window chunks; second starts with 'b' and comes back
	// with the wrong vector length
	text := strings.Repeat("a", 1648) + strings.Repeat("b", 1352)

	p := testPipeline(PipelineConfig{
		Loader:     &mockLoader{data: map[string][]byte{"drift.txt": []byte(text)}},
		Embeddings: &mockFactory{svc: embedder},
	})

	job := domain.NewJobEnvelope("drift.txt", "text/plain")
	result := p.ProcessDocument(context.Background(), job)

	if !result.Success {
		t.Fatalf("dimension drift in one chunk must not fail the document: %q", result.Error)
	}
	if len(result.ChunkEmbeddings) != 1 {
		t.Fatalf("chunk embeddings = %d, want 1 after dropping the mismatch", len(result.ChunkEmbeddings))
	}
	if got := len(result.ChunkEmbeddings[0].Embedding); got != 2 {
		t.Errorf("surviving chunk dim = %d, want 2", got)
	}
	if result.Document.EmbeddingDim != 2 {
		t.Errorf("document dim = %d, want dominant chunk dim", result.Document.EmbeddingDim)
	}
}

func TestProcessDocument_AllEmbeddingsFailedIsRetryable(t *testing.T) {
	embedder := &mockEmbedder{
		embedFn: func(text string) ([]float32, error) {
			return nil, errors.New("provider down")
		},
	}
	p := testPipeline(PipelineConfig{
		Loader:     &mockLoader{data: map[string][]byte{"t.txt": []byte(strings.Repeat("x", 3000))}},
		Embeddings: &mockFactory{svc: embedder},
	})

	job := domain.NewJobEnvelope("t.txt", "text/plain")
	result := p.ProcessDocument(context.Background(), job)

	if result.Success {
		t.Fatal("expected failure when every embedding fails")
	}
	if !result.Retryable {
		t.Error("embedding outage must be retryable")
	}
	if result.Document == nil || result.Document.Status != domain.StatusFailed {
		t.Error("document must be kept with failed status")
	}
	if result.Document.EmbeddingError == "" {
		t.Error("embedding error must be recorded on the document")
	}
}

func TestProcessDocument_StructuredParserWins(t *testing.T) {
	structured := &mockParser{
		canHandle: true,
		result: &domain.DocumentParseResult{
			Text:       `{"a": 1}`,
			Structured: map[string]any{"a": float64(1)},
			ParserName: "json",
			Success:    true,
		},
	}
	p := testPipeline(PipelineConfig{
		Loader:     &mockLoader{data: map[string][]byte{"d.json": []byte(`{"a": 1}`)}},
		Structured: structured,
		Embeddings: &mockFactory{svc: &mockEmbedder{dims: 4}},
	})

	job := domain.NewJobEnvelope("d.json", "application/json")
	result := p.ProcessDocument(context.Background(), job)

	if !result.Success {
		t.Fatalf("expected success, got %q", result.Error)
	}
	if !result.Document.IsStructured {
		t.Error("structured parse must set IsStructured")
	}
	if result.Document.Structured["a"] != float64(1) {
		t.Errorf("structured payload lost: %v", result.Document.Structured)
	}
}

func TestProcessDocument_ImageGoesToOCR(t *testing.T) {
	ocr := &mockOCR{result: &domain.DocumentParseResult{
		Text:       "text read from scan",
		ParserName: "ocr",
		Success:    true,
	}}
	p := testPipeline(PipelineConfig{
		Loader:     &mockLoader{data: map[string][]byte{"scan.png": {0x89, 0x50, 0x4e, 0x47}}},
		OCR:        ocr,
		Embeddings: &mockFactory{svc: &mockEmbedder{dims: 4}},
	})

	job := domain.NewJobEnvelope("scan.png", "image/png")
	result := p.ProcessDocument(context.Background(), job)

	if !result.Success {
		t.Fatalf("expected success, got %q", result.Error)
	}
	if result.Document.ExtractedText != "text read from scan" {
		t.Errorf("text = %q, want OCR output", result.Document.ExtractedText)
	}
}

func TestProcessDocument_OCRRequiredButMissing(t *testing.T) {
	p := testPipeline(PipelineConfig{
		Loader:     &mockLoader{data: map[string][]byte{"scan.png": {0x89, 0x50}}},
		Embeddings: &mockFactory{svc: &mockEmbedder{dims: 4}},
	})

	job := domain.NewJobEnvelope("scan.png", "image/png")
	result := p.ProcessDocument(context.Background(), job)

	if result.Success {
		t.Fatal("expected failure without OCR capability")
	}
	if result.Document == nil || result.Document.ParseError == "" {
		t.Error("parse error must be recorded")
	}
}

func TestProcessDocument_AdvancedParserFailureIsFinal(t *testing.T) {
	advanced := &mockParser{
		canHandle: true,
		result: &domain.DocumentParseResult{
			ParserName:   "pdf",
			Success:      false,
			ErrorMessage: "corrupt pdf",
		},
	}
	p := testPipeline(PipelineConfig{
		Loader:     &mockLoader{data: map[string][]byte{"odd.pdf": {0x25, 0x50, 0x44, 0x46, 0x00, 0x01}}},
		Advanced:   advanced,
		Embeddings: &mockFactory{svc: &mockEmbedder{dims: 4}},
	})

	job := domain.NewJobEnvelope("odd.pdf", "application/pdf")
	result := p.ProcessDocument(context.Background(), job)

	// the claimed type must not decay into raw bytes marked processed
	if result.Success {
		t.Fatal("expected failure when the advanced parser rejects its own type")
	}
	if result.Document.Status != domain.StatusFailed {
		t.Errorf("status = %q, want %q", result.Document.Status, domain.StatusFailed)
	}
	if result.Document.ParseError != "corrupt pdf" {
		t.Errorf("parse error = %q, want the parser's message", result.Document.ParseError)
	}
	if result.Document.ExtractedText != "" {
		t.Errorf("text = %q, want empty, not raw bytes", result.Document.ExtractedText)
	}
}

func TestProcessDocument_UnclaimedTypeFallsBackToPlaintext(t *testing.T) {
	advanced := &mockParser{canHandle: false}
	p := testPipeline(PipelineConfig{
		Loader:     &mockLoader{data: map[string][]byte{"notes.log": []byte("plain log line")}},
		Advanced:   advanced,
		Embeddings: &mockFactory{svc: &mockEmbedder{dims: 4}},
	})

	job := domain.NewJobEnvelope("notes.log", "text/x-log")
	result := p.ProcessDocument(context.Background(), job)

	if !result.Success {
		t.Fatalf("expected plaintext fallback, got %q", result.Error)
	}
	if result.Document.ExtractedText != "plain log line" {
		t.Errorf("text = %q, want raw bytes as text", result.Document.ExtractedText)
	}
}

func TestProcessDocument_EntityExtractionBestEffort(t *testing.T) {
	extractor := &mockEntityExtractor{analysis: &domain.TextAnalysis{
		Entities:  []domain.Entity{{Text: "Acme", Type: "ORG", Start: 0, End: 4}},
		WordCount: 12,
	}}
	p := testPipeline(PipelineConfig{
		Loader:     &mockLoader{data: map[string][]byte{"t.txt": []byte("Acme filed the report on time.")}},
		Entities:   extractor,
		Embeddings: &mockFactory{svc: &mockEmbedder{dims: 4}},
	})

	job := domain.NewJobEnvelope("t.txt", "text/plain")
	result := p.ProcessDocument(context.Background(), job)

	if len(result.Document.Analysis.Entities) != 1 {
		t.Fatalf("entities = %d, want 1", len(result.Document.Analysis.Entities))
	}

	// extractor errors degrade to empty analysis, never failure
	extractor.err = errors.New("nlp service down")
	extractor.analysis = nil
	result = p.ProcessDocument(context.Background(), job)
	if !result.Success {
		t.Fatalf("entity failure must not fail the pipeline: %q", result.Error)
	}
	if len(result.Document.Analysis.Entities) != 0 {
		t.Error("expected empty analysis after extractor error")
	}
}

func TestProcessDocument_PanicBecomesFailureResult(t *testing.T) {
	embedder := &mockEmbedder{
		embedFn: func(text string) ([]float32, error) {
			panic("embedder exploded")
		},
	}
	p := testPipeline(PipelineConfig{
		Loader:     &mockLoader{data: map[string][]byte{"t.txt": []byte("some text")}},
		Embeddings: &mockFactory{svc: embedder},
	})

	job := domain.NewJobEnvelope("t.txt", "text/plain")
	result := p.ProcessDocument(context.Background(), job)

	if result == nil {
		t.Fatal("result must never be nil")
	}
	if result.Success {
		t.Fatal("panic must surface as failure")
	}
	if !result.Retryable {
		t.Error("panic failures are retryable")
	}
	if !strings.Contains(result.Error, "panic") {
		t.Errorf("error = %q, want panic mention", result.Error)
	}
}

func TestProcessDocument_NotificationBestEffort(t *testing.T) {
	notifier := &mockNotifier{result: &domain.NotificationResult{Attempted: true, Sent: true}}
	p := testPipeline(PipelineConfig{
		Loader:     &mockLoader{data: map[string][]byte{"t.txt": []byte("notify me")}},
		Embeddings: &mockFactory{svc: &mockEmbedder{dims: 4}},
		Notifier:   notifier,
	})

	job := domain.NewJobEnvelope("t.txt", "text/plain")
	job.NotifyURL = "http://callback.local/done"
	result := p.ProcessDocument(context.Background(), job)

	if notifier.lastReq == nil {
		t.Fatal("notifier was not called")
	}
	if notifier.lastReq.JobID != job.ID {
		t.Errorf("notified job id = %q, want %q", notifier.lastReq.JobID, job.ID)
	}
	if result.Notification == nil || !result.Notification.Sent {
		t.Error("notification outcome must be recorded")
	}

	// a failed callback never flips the overall outcome
	notifier.result = &domain.NotificationResult{Attempted: true, Sent: false, Error: "503"}
	result = p.ProcessDocument(context.Background(), job)
	if !result.Success {
		t.Error("failed notification must not fail the pipeline")
	}
}

func TestProcessDocument_SanitizesControlCharacters(t *testing.T) {
	raw := "clean\x00text\x07with\tkept\nwhitespace"
	p := testPipeline(PipelineConfig{
		Loader:     &mockLoader{data: map[string][]byte{"t.txt": []byte(raw)}},
		Embeddings: &mockFactory{svc: &mockEmbedder{dims: 4}},
	})

	job := domain.NewJobEnvelope("t.txt", "text/plain")
	result := p.ProcessDocument(context.Background(), job)

	want := "clean text with\tkept\nwhitespace"
	if result.Document.ExtractedText != want {
		t.Errorf("sanitized text = %q, want %q", result.Document.ExtractedText, want)
	}
}

func TestProcessDocument_ProviderKeyFromPlan(t *testing.T) {
	factory := &mockFactory{svc: &mockEmbedder{dims: 4}}
	p := testPipeline(PipelineConfig{
		Loader:     &mockLoader{data: map[string][]byte{"t.txt": []byte("some text here")}},
		Embeddings: factory,
	})

	job := domain.NewJobEnvelope("t.txt", "text/plain")
	result := p.ProcessDocument(context.Background(), job)

	if !result.Success {
		t.Fatalf("expected success, got %q", result.Error)
	}
	if factory.lastKey != result.Plan.EmbeddingProvider {
		t.Errorf("factory key = %q, plan pinned %q", factory.lastKey, result.Plan.EmbeddingProvider)
	}
}

func TestSanitizeText(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"plain", "plain"},
		{"a\x00b", "a b"},
		{"keep\ttab\nand\rreturns", "keep\ttab\nand\rreturns"},
		{fmt.Sprintf("bell%cchar", 0x07), "bell char"},
	}
	for _, tt := range tests {
		if got := sanitizeText(tt.in); got != tt.want {
			t.Errorf("sanitizeText(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
