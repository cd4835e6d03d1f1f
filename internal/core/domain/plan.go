package domain

// ChunkingStrategy selects how extracted text is split into chunks.
type ChunkingStrategy string

const (
	ChunkingFixed         ChunkingStrategy = "fixed"
	ChunkingSlidingWindow ChunkingStrategy = "sliding_window"
	ChunkingSentence      ChunkingStrategy = "sentence"
	ChunkingParagraph     ChunkingStrategy = "paragraph"
	ChunkingMarkdown      ChunkingStrategy = "markdown"
	ChunkingSemantic      ChunkingStrategy = "semantic"
)

// Priority classifies how urgently a document should be processed.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// DocumentType is the coarse classification the decision engine assigns
// from file name and content heuristics.
type DocumentType string

const (
	DocTypeCode       DocumentType = "code"
	DocTypeMarkdown   DocumentType = "markdown"
	DocTypeStructured DocumentType = "structured"
	DocTypeTabular    DocumentType = "tabular"
	DocTypeLegal      DocumentType = "legal"
	DocTypeMedical    DocumentType = "medical"
	DocTypeTechnical  DocumentType = "technical"
	DocTypeGeneral    DocumentType = "general"
)

// ProcessingPlan is the decision engine's per-document strategy. It is not
// persisted as a first-class record; it is embedded in logs and in the
// canonical document's processing metadata.
type ProcessingPlan struct {
	DocumentType DocumentType     `json:"document_type"`
	Strategy     ChunkingStrategy `json:"chunking_strategy"`

	// ChunkSize and ChunkOverlap are token-approximate units
	// (4 characters per token across the whole system)
	ChunkSize    int `json:"chunk_size"`
	ChunkOverlap int `json:"chunk_overlap"`

	// EmbeddingProvider pins the provider key for the whole document,
	// so chunk and document embeddings always share one dimensionality
	EmbeddingProvider string `json:"embedding_provider"`

	RequiresOCR     bool     `json:"requires_ocr"`
	EnableNER       bool     `json:"enable_ner"`
	EnableReranking bool     `json:"enable_reranking"`
	Language        string   `json:"language"`
	Priority        Priority `json:"priority"`

	// EstimatedCost is a monotonic scalar for observability, never control flow
	EstimatedCost float64 `json:"estimated_cost"`

	// DecisionTrail records every rule that fired, in order
	DecisionTrail []string `json:"decision_trail"`
}

// AddReason appends an entry to the decision trail.
func (p *ProcessingPlan) AddReason(reason string) {
	p.DecisionTrail = append(p.DecisionTrail, reason)
}
