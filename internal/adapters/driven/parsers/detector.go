package parsers

import (
	"net/http"
	"path"
	"strings"

	"code.sajari.com/docconv"

	"github.com/ferrule-labs/docstream-core/internal/core/ports/driven"
)

// Ensure Detector implements ContentDetector
var _ driven.ContentDetector = (*Detector)(nil)

const fallbackMimeType = "application/octet-stream"

// Detector resolves the effective MIME type of document bytes when the
// declared type is absent or too generic to dispatch on. The file-name hint
// wins when its extension maps to a known type, otherwise the content is
// sniffed.
type Detector struct{}

// NewDetector creates a content detector.
func NewDetector() *Detector {
	return &Detector{}
}

// Detect returns the effective MIME type for the given bytes. hint may be a
// file name, path, or source URI and can be empty.
func (d *Detector) Detect(data []byte, hint string) string {
	if byExt := detectByExtension(hint); byExt != "" {
		return byExt
	}

	if len(data) == 0 {
		return fallbackMimeType
	}

	sniffed := http.DetectContentType(data)
	// DetectContentType appends parameters like "; charset=utf-8"
	if idx := strings.Index(sniffed, ";"); idx >= 0 {
		sniffed = strings.TrimSpace(sniffed[:idx])
	}
	return sniffed
}

// detectByExtension maps a file-name hint to a MIME type, returning "" when
// the hint carries no usable extension.
func detectByExtension(hint string) string {
	hint = strings.TrimSpace(hint)
	if hint == "" || path.Ext(hint) == "" {
		return ""
	}

	// covered here because the conversion library's extension map stops at
	// office and image formats
	switch strings.ToLower(path.Ext(hint)) {
	case ".json":
		return "application/json"
	case ".csv":
		return "text/csv"
	case ".md", ".markdown":
		return "text/markdown"
	}

	mt := docconv.MimeTypeByExtension(hint)
	if mt == "" || mt == fallbackMimeType {
		return ""
	}
	return mt
}
