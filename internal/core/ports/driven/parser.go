package driven

import (
	"context"

	"github.com/ferrule-labs/docstream-core/internal/core/domain"
)

// SourceLoader reads document bytes from a job's source location
// (file path, file:// or cloud URL).
type SourceLoader interface {
	Load(ctx context.Context, sourceURI string) ([]byte, error)
}

// ContentDetector resolves the effective MIME type of a byte stream when the
// declared type is absent or too generic to dispatch on.
type ContentDetector interface {
	// Detect sniffs the MIME type. hint may carry a file name or the
	// declared type and can be empty.
	Detect(data []byte, hint string) string
}

// DocumentParser extracts text and structure from document bytes.
// Parse reports failure in the result, never as a Go error.
type DocumentParser interface {
	// CanHandle reports whether this parser accepts the MIME type.
	CanHandle(mimeType string) bool

	// Parse extracts text from the document.
	Parse(ctx context.Context, data []byte, mimeType string) *domain.DocumentParseResult
}

// OCRService extracts text from images. Same result contract as
// DocumentParser: failures are typed, not thrown.
type OCRService interface {
	Parse(ctx context.Context, data []byte, mimeType string) *domain.DocumentParseResult
}
