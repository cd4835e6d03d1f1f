package parsers

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"code.sajari.com/docconv"

	"github.com/ferrule-labs/docstream-core/internal/core/domain"
	"github.com/ferrule-labs/docstream-core/internal/core/ports/driven"
)

// Ensure OCR implements OCRService
var _ driven.OCRService = (*OCR)(nil)

// OCR extracts text from images through the conversion library's tesseract
// binding. Builds without the binding report a typed failure, which the
// pipeline records as a parse error.
type OCR struct{}

// NewOCR creates an image text extractor.
func NewOCR() *OCR {
	return &OCR{}
}

// Parse runs OCR over image bytes. Failures are reported in the result,
// never as a Go error.
func (o *OCR) Parse(ctx context.Context, data []byte, mimeType string) *domain.DocumentParseResult {
	res, err := docconv.Convert(bytes.NewReader(data), normalizeMime(mimeType), false)
	if err != nil {
		return &domain.DocumentParseResult{
			ParserName:   "ocr",
			Success:      false,
			ErrorMessage: fmt.Sprintf("ocr failed for %s: %v", mimeType, err),
		}
	}
	if strings.TrimSpace(res.Body) == "" {
		return &domain.DocumentParseResult{
			ParserName:   "ocr",
			Success:      false,
			ErrorMessage: "ocr produced no text",
		}
	}

	return &domain.DocumentParseResult{
		Text:       res.Body,
		ParserName: "ocr",
		Metadata:   res.Meta,
		Success:    true,
	}
}
