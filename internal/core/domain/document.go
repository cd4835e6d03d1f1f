package domain

import "time"

// SchemaVersion is stamped on every canonical document so persisted
// projections can be migrated if the shape changes.
const SchemaVersion = 2

// Entity is a named entity found in extracted text.
type Entity struct {
	Text       string  `json:"text"`
	Type       string  `json:"type"`
	Start      int     `json:"start"`
	End        int     `json:"end"`
	Confidence float64 `json:"confidence,omitempty"`
}

// TextAnalysis is the best-effort NLP enrichment of a document.
type TextAnalysis struct {
	Entities      []Entity           `json:"entities,omitempty"`
	Sentiment     map[string]float64 `json:"sentiment,omitempty"`
	WordCount     int                `json:"word_count,omitempty"`
	SentenceCount int                `json:"sentence_count,omitempty"`
}

// DocumentParseResult is the typed outcome of a parser call. Parsers never
// return Go errors across the component boundary; failures are carried here.
type DocumentParseResult struct {
	Text         string            `json:"text"`
	Structured   map[string]any    `json:"structured,omitempty"`
	Tables       [][]string        `json:"tables,omitempty"`
	Sections     []string          `json:"sections,omitempty"`
	ParserName   string            `json:"parser_name"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	Success      bool              `json:"success"`
	ErrorMessage string            `json:"error_message,omitempty"`
}

// TextChunk is a bounded, offset-addressed slice of extracted text.
// Offsets are a half-open [Start,End) interval into the source text with
// 0 <= Start < End <= len(text); indices are contiguous from zero.
type TextChunk struct {
	Index    int              `json:"index"`
	Content  string           `json:"content"`
	Start    int              `json:"start"`
	End      int              `json:"end"`
	Strategy ChunkingStrategy `json:"strategy"`

	// TokenCount is the 4-chars-per-token approximation used system wide
	TokenCount int `json:"token_count"`
}

// ChunkEmbedding pairs a chunk with its vector. All chunk embeddings of one
// document share the same provider and dimensionality.
type ChunkEmbedding struct {
	Index     int               `json:"index"`
	Content   string            `json:"content"`
	Start     int               `json:"start"`
	End       int               `json:"end"`
	Embedding []float32         `json:"embedding"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// ProcessingStatus marks whether a canonical document came out clean.
type ProcessingStatus string

const (
	StatusProcessed ProcessingStatus = "processed"
	StatusFailed    ProcessingStatus = "failed"
)

// CanonicalDocument is the terminal artifact of the pipeline. It is created
// once per job and never mutated after persistence; reprocessing the same
// bytes happens under a new job id.
type CanonicalDocument struct {
	JobID        string         `json:"job_id"`
	SourceURI    string         `json:"source_uri"`
	IngestedAt   time.Time      `json:"ingested_at"`
	MimeType     string         `json:"mime_type"`
	IsStructured bool           `json:"is_structured"`
	Structured   map[string]any `json:"structured,omitempty"`

	ExtractedText string       `json:"extracted_text"`
	Analysis      TextAnalysis `json:"analysis"`
	Tables        [][]string   `json:"tables,omitempty"`
	Sections      []string     `json:"sections,omitempty"`

	// Embedding is the document-level vector: the single embedding for short
	// documents, or the dimension-wise mean of all chunk embeddings
	Embedding    []float32 `json:"embedding,omitempty"`
	EmbeddingDim int       `json:"embedding_dim"`

	Status         ProcessingStatus `json:"status"`
	ParseError     string           `json:"parse_error,omitempty"`
	EmbeddingError string           `json:"embedding_error,omitempty"`

	ContentHash   string `json:"content_hash"`
	SchemaVersion int    `json:"schema_version"`
}

// NotificationResult records the best-effort completion callback outcome.
type NotificationResult struct {
	Attempted bool   `json:"attempted"`
	Sent      bool   `json:"sent"`
	Error     string `json:"error,omitempty"`
}

// PipelineResult is what ProcessDocument hands back to the worker.
// The pipeline never lets an error escape as a Go error; Success and Error
// describe the outcome.
type PipelineResult struct {
	Success         bool                `json:"success"`
	Document        *CanonicalDocument  `json:"document,omitempty"`
	ChunkEmbeddings []ChunkEmbedding    `json:"chunk_embeddings,omitempty"`
	Plan            *ProcessingPlan     `json:"plan,omitempty"`
	Notification    *NotificationResult `json:"notification,omitempty"`
	Error           string              `json:"error,omitempty"`

	// Retryable distinguishes transient failures (worth redelivering)
	// from unrecoverable input such as a missing source
	Retryable bool `json:"retryable"`
}

// Document is the persisted, queryable projection of a CanonicalDocument.
// ContentHash is unique per stored document.
type Document struct {
	ID            string           `json:"id"`
	JobID         string           `json:"job_id"`
	SourceURI     string           `json:"source_uri"`
	MimeType      string           `json:"mime_type"`
	ContentHash   string           `json:"content_hash"`
	ExtractedText string           `json:"extracted_text"`
	Analysis      TextAnalysis     `json:"analysis"`
	Embedding     []float32        `json:"embedding,omitempty"`
	EmbeddingDim  int              `json:"embedding_dim"`
	Status        ProcessingStatus `json:"status"`
	SchemaVersion int              `json:"schema_version"`
	IngestedAt    time.Time        `json:"ingested_at"`
}

// DocumentChunk is the persisted projection of a ChunkEmbedding,
// unique per (DocumentID, Index).
type DocumentChunk struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"document_id"`
	Index      int       `json:"index"`
	Content    string    `json:"content"`
	StartChar  int       `json:"start_char"`
	EndChar    int       `json:"end_char"`
	Embedding  []float32 `json:"embedding,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
