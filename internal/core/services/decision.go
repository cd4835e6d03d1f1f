package services

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/ferrule-labs/docstream-core/internal/core/domain"
	"github.com/ferrule-labs/docstream-core/internal/core/ports/driven"
)

// PlanInput is everything the decision engine looks at for one document.
type PlanInput struct {
	FileName       string
	FileSize       int64
	MimeType       string
	ContentPreview string
	Metadata       map[string]string
}

// DecisionConfig tunes the rule thresholds.
type DecisionConfig struct {
	// DefaultProvider is the embedding provider key pinned into every plan
	DefaultProvider string

	// NERSizeLimit disables entity extraction above this size for
	// general documents (legal/medical always run it)
	NERSizeLimit int64

	// SmallFileSize and LargeFileSize drive the priority rule
	SmallFileSize int64
	LargeFileSize int64

	// RerankSizeThreshold enables reranking for large high-priority files
	RerankSizeThreshold int64

	// LanguageMinConfidence is passed to the detection service
	LanguageMinConfidence float64
}

// DefaultDecisionConfig returns the rule thresholds used in production.
func DefaultDecisionConfig() DecisionConfig {
	return DecisionConfig{
		DefaultProvider:       "openai",
		NERSizeLimit:          1 << 20, // 1 MiB
		SmallFileSize:         64 << 10,
		LargeFileSize:         20 << 20,
		RerankSizeThreshold:   5 << 20,
		LanguageMinConfidence: 0.5,
	}
}

// chunkingProfile is one row of the strategy lookup table.
type chunkingProfile struct {
	strategy domain.ChunkingStrategy
	size     int
	overlap  int
}

// chunkingTable maps document type to chunking parameters. Code gets small
// chunks with little overlap, legal and medical text gets large chunks with
// heavy overlap so clauses survive chunk boundaries, structured and tabular
// data gets fixed windows with none.
var chunkingTable = map[domain.DocumentType]chunkingProfile{
	domain.DocTypeCode:       {domain.ChunkingSlidingWindow, 256, 20},
	domain.DocTypeMarkdown:   {domain.ChunkingMarkdown, 512, 50},
	domain.DocTypeStructured: {domain.ChunkingFixed, 256, 0},
	domain.DocTypeTabular:    {domain.ChunkingFixed, 256, 0},
	domain.DocTypeLegal:      {domain.ChunkingSentence, 1024, 200},
	domain.DocTypeMedical:    {domain.ChunkingSentence, 1024, 200},
	domain.DocTypeTechnical:  {domain.ChunkingParagraph, 768, 100},
	domain.DocTypeGeneral:    {domain.ChunkingSlidingWindow, 512, 100},
}

// extension classification tables
var (
	codeExtensions = map[string]bool{
		".go": true, ".py": true, ".js": true, ".ts": true, ".java": true,
		".c": true, ".cc": true, ".cpp": true, ".h": true, ".rs": true,
		".rb": true, ".cs": true, ".sh": true, ".sql": true,
	}
	structuredExtensions = map[string]bool{
		".json": true, ".xml": true, ".yaml": true, ".yml": true, ".toml": true,
	}
	tabularExtensions = map[string]bool{
		".csv": true, ".tsv": true, ".xls": true, ".xlsx": true,
	}
)

// content keyword heuristics, checked against the preview when the extension
// is not decisive
var (
	legalKeywords     = []string{"contract", "agreement", "hereby", "whereas", "pursuant", "clause", "statute", "plaintiff", "defendant", "jurisdiction"}
	medicalKeywords   = []string{"patient", "diagnosis", "clinical", "treatment", "symptom", "prescription", "dosage", "medical history"}
	technicalKeywords = []string{"specification", "architecture", "implementation", "protocol", "algorithm", "configuration", "deployment", "api reference"}
)

// providerUnitCost feeds the additive cost estimate per rule 7.
var providerUnitCost = map[string]float64{
	"openai": 1.0,
}

// DecisionEngine turns file metadata and a content preview into a processing
// plan. It is deterministic for identical inputs except for the language
// detection call, which degrades to a local heuristic on any failure.
type DecisionEngine struct {
	config   DecisionConfig
	language driven.LanguageDetector
	logger   *slog.Logger
}

// NewDecisionEngine creates a decision engine. The language detector may be
// nil, in which case only the heuristic runs.
func NewDecisionEngine(config DecisionConfig, language driven.LanguageDetector, logger *slog.Logger) *DecisionEngine {
	if logger == nil {
		logger = slog.Default()
	}
	if config.DefaultProvider == "" {
		config.DefaultProvider = DefaultDecisionConfig().DefaultProvider
	}
	return &DecisionEngine{
		config:   config,
		language: language,
		logger:   logger,
	}
}

// GeneratePlan applies the rules in fixed order, appending a reason for every
// rule that fires.
func (e *DecisionEngine) GeneratePlan(ctx context.Context, in PlanInput) *domain.ProcessingPlan {
	plan := &domain.ProcessingPlan{
		Language: "en",
		Priority: domain.PriorityNormal,
	}

	// Rule 1: OCR for image types. PDFs that need OCR are the parser's call.
	if strings.HasPrefix(in.MimeType, "image/") {
		plan.RequiresOCR = true
		plan.AddReason(fmt.Sprintf("ocr required: image mime type %s", in.MimeType))
	}

	// Rule 2: document type by extension, then content keywords.
	plan.DocumentType = e.classify(in, plan)

	// Rule 3: chunking parameters from the lookup table.
	profile := chunkingTable[plan.DocumentType]
	plan.Strategy = profile.strategy
	plan.ChunkSize = profile.size
	plan.ChunkOverlap = profile.overlap
	plan.AddReason(fmt.Sprintf("chunking for %s: %s", plan.DocumentType,
		describeChunking(profile.strategy, profile.size, profile.overlap)))

	// Rule 4: embedding provider by document type. Currently uniform; the
	// decision point exists so policy can change without touching the
	// pipeline, and the plan pins the provider for the whole document.
	plan.EmbeddingProvider = e.config.DefaultProvider
	plan.AddReason(fmt.Sprintf("embedding provider: %s", plan.EmbeddingProvider))

	// Rule 5: entity extraction policy.
	switch plan.DocumentType {
	case domain.DocTypeLegal, domain.DocTypeMedical:
		plan.EnableNER = true
		plan.AddReason("ner enabled: always on for legal/medical")
	case domain.DocTypeCode, domain.DocTypeStructured, domain.DocTypeTabular:
		plan.EnableNER = false
		plan.AddReason("ner disabled for " + string(plan.DocumentType))
	default:
		if in.FileSize <= e.config.NERSizeLimit {
			plan.EnableNER = true
			plan.AddReason("ner enabled: file within size limit")
		} else {
			plan.AddReason("ner disabled: file exceeds size limit")
		}
	}

	// Rule 6: priority.
	switch {
	case plan.DocumentType == domain.DocTypeLegal || plan.DocumentType == domain.DocTypeMedical:
		plan.Priority = domain.PriorityHigh
		plan.AddReason("priority high: sensitive document type")
	case in.FileSize > 0 && in.FileSize <= e.config.SmallFileSize:
		plan.Priority = domain.PriorityHigh
		plan.AddReason("priority high: small file")
	case in.FileSize >= e.config.LargeFileSize:
		plan.Priority = domain.PriorityLow
		plan.AddReason("priority low: very large file")
	default:
		plan.AddReason("priority normal")
	}

	// Rule 7: additive cost estimate, observability only.
	cost := providerUnitCost[plan.EmbeddingProvider]
	if cost == 0 {
		cost = 1.0
	}
	if plan.RequiresOCR {
		cost += 2.0
	}
	if plan.EnableNER {
		cost += 0.5
	}

	// Rule 8: language.
	plan.Language = e.detectLanguage(ctx, in.ContentPreview, plan)

	// Rule 9: reranking for large, urgent documents.
	if in.FileSize > e.config.RerankSizeThreshold && plan.Priority == domain.PriorityHigh {
		plan.EnableReranking = true
		cost += 1.0
		plan.AddReason("reranking enabled: large high-priority file")
	}

	plan.EstimatedCost = cost
	plan.AddReason(fmt.Sprintf("estimated cost: %.1f", cost))

	return plan
}

// classify applies rule 2: extension first, then content keywords, then
// general.
func (e *DecisionEngine) classify(in PlanInput, plan *domain.ProcessingPlan) domain.DocumentType {
	ext := strings.ToLower(filepath.Ext(in.FileName))

	switch {
	case codeExtensions[ext]:
		plan.AddReason("classified code by extension " + ext)
		return domain.DocTypeCode
	case ext == ".md" || ext == ".markdown":
		plan.AddReason("classified markdown by extension " + ext)
		return domain.DocTypeMarkdown
	case structuredExtensions[ext]:
		plan.AddReason("classified structured by extension " + ext)
		return domain.DocTypeStructured
	case tabularExtensions[ext]:
		plan.AddReason("classified tabular by extension " + ext)
		return domain.DocTypeTabular
	}

	preview := strings.ToLower(in.ContentPreview)
	if preview != "" {
		if kw := firstKeyword(preview, legalKeywords); kw != "" {
			plan.AddReason("classified legal by keyword " + kw)
			return domain.DocTypeLegal
		}
		if kw := firstKeyword(preview, medicalKeywords); kw != "" {
			plan.AddReason("classified medical by keyword " + kw)
			return domain.DocTypeMedical
		}
		if kw := firstKeyword(preview, technicalKeywords); kw != "" {
			plan.AddReason("classified technical by keyword " + kw)
			return domain.DocTypeTechnical
		}
	}

	plan.AddReason("classified general: no extension or keyword match")
	return domain.DocTypeGeneral
}

func firstKeyword(text string, keywords []string) string {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return kw
		}
	}
	return ""
}

// detectLanguage applies rule 8: service call first, local heuristic on any
// failure or low-confidence answer, English as the final default.
func (e *DecisionEngine) detectLanguage(ctx context.Context, preview string, plan *domain.ProcessingPlan) string {
	if strings.TrimSpace(preview) == "" {
		plan.AddReason("language en: no preview available")
		return "en"
	}

	if e.language != nil {
		detection, err := e.language.Detect(ctx, preview, e.config.LanguageMinConfidence)
		if err == nil && detection != nil && detection.Language != "" {
			plan.AddReason(fmt.Sprintf("language %s: detection service confidence %.2f",
				detection.Language, detection.Confidence))
			return detection.Language
		}
		if err != nil {
			e.logger.Warn("language detection unavailable, using heuristic", "error", err)
		}
	}

	lang := heuristicLanguage(preview)
	plan.AddReason("language " + lang + ": local heuristic")
	return lang
}

// heuristicLanguage guesses a language from Unicode script ranges and a small
// set of function words. English is the default.
func heuristicLanguage(text string) string {
	for _, r := range text {
		switch {
		case unicode.Is(unicode.Han, r):
			return "zh"
		case unicode.Is(unicode.Hiragana, r) || unicode.Is(unicode.Katakana, r):
			return "ja"
		case unicode.Is(unicode.Hangul, r):
			return "ko"
		case unicode.Is(unicode.Cyrillic, r):
			return "ru"
		case unicode.Is(unicode.Arabic, r):
			return "ar"
		}
	}

	words := strings.Fields(strings.ToLower(text))
	counts := map[string]int{}
	for _, w := range words {
		switch w {
		case "el", "la", "los", "las", "es", "una", "que", "para":
			counts["es"]++
		case "le", "les", "est", "une", "et", "dans", "avec":
			counts["fr"]++
		case "der", "die", "das", "und", "ist", "nicht", "mit":
			counts["de"]++
		}
	}

	best, bestCount := "en", 1
	for lang, n := range counts {
		if n > bestCount {
			best, bestCount = lang, n
		}
	}
	return best
}
