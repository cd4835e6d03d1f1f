package parsers

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"code.sajari.com/docconv"
	"github.com/ledongthuc/pdf"

	"github.com/ferrule-labs/docstream-core/internal/core/domain"
	"github.com/ferrule-labs/docstream-core/internal/core/ports/driven"
)

// Ensure AdvancedParser implements DocumentParser
var _ driven.DocumentParser = (*AdvancedParser)(nil)

// AdvancedParser extracts text from office-style documents. PDFs go through
// the native reader first and fall back to format conversion; everything else
// goes straight to conversion.
type AdvancedParser struct{}

// NewAdvancedParser creates a parser for PDF and office document formats.
func NewAdvancedParser() *AdvancedParser {
	return &AdvancedParser{}
}

// CanHandle reports whether the MIME type is a supported document format.
func (p *AdvancedParser) CanHandle(mimeType string) bool {
	switch normalizeMime(mimeType) {
	case "application/pdf",
		"application/msword",
		"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		"application/vnd.oasis.opendocument.text",
		"application/vnd.apple.pages",
		"application/rtf", "text/rtf",
		"text/html", "application/xhtml+xml":
		return true
	}
	return false
}

// Parse extracts text from the document. Failures are reported in the
// result, never as a Go error.
func (p *AdvancedParser) Parse(ctx context.Context, data []byte, mimeType string) *domain.DocumentParseResult {
	normalized := normalizeMime(mimeType)

	if normalized == "application/pdf" {
		if text, pages, err := extractPDFNative(data); err == nil && text != "" {
			return &domain.DocumentParseResult{
				Text:       text,
				ParserName: "pdf-native",
				Metadata:   map[string]string{"pages": fmt.Sprintf("%d", pages)},
				Success:    true,
			}
		}
	}

	res, err := docconv.Convert(bytes.NewReader(data), normalized, false)
	if err != nil {
		return &domain.DocumentParseResult{
			ParserName:   "docconv",
			Success:      false,
			ErrorMessage: fmt.Sprintf("conversion failed for %s: %v", normalized, err),
		}
	}
	if strings.TrimSpace(res.Body) == "" {
		return &domain.DocumentParseResult{
			ParserName:   "docconv",
			Success:      false,
			ErrorMessage: fmt.Sprintf("conversion produced no text for %s", normalized),
		}
	}

	return &domain.DocumentParseResult{
		Text:       res.Body,
		ParserName: "docconv",
		Metadata:   res.Meta,
		Success:    true,
	}
}

// extractPDFNative pulls plain text out of a PDF without external tooling.
func extractPDFNative(data []byte) (string, int, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", 0, err
	}

	plain, err := reader.GetPlainText()
	if err != nil {
		return "", 0, err
	}

	out, err := io.ReadAll(plain)
	if err != nil {
		return "", 0, err
	}
	return string(out), reader.NumPage(), nil
}
