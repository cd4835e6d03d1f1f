package parsers

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/ferrule-labs/docstream-core/internal/core/domain"
	"github.com/ferrule-labs/docstream-core/internal/core/ports/driven"
)

// Ensure StructuredParser implements DocumentParser
var _ driven.DocumentParser = (*StructuredParser)(nil)

// StructuredParser decodes machine-readable formats (JSON, XML, CSV) into a
// structured payload plus a flat text rendering for chunking and search.
type StructuredParser struct{}

// NewStructuredParser creates a parser for structured document formats.
func NewStructuredParser() *StructuredParser {
	return &StructuredParser{}
}

// CanHandle reports whether the MIME type is a structured format.
func (p *StructuredParser) CanHandle(mimeType string) bool {
	switch normalizeMime(mimeType) {
	case "application/json", "text/json",
		"application/xml", "text/xml",
		"text/csv", "application/csv":
		return true
	}
	return false
}

// Parse decodes the document. Failures are reported in the result, never as
// a Go error.
func (p *StructuredParser) Parse(ctx context.Context, data []byte, mimeType string) *domain.DocumentParseResult {
	switch normalizeMime(mimeType) {
	case "application/json", "text/json":
		return parseJSON(data)
	case "application/xml", "text/xml":
		return parseXML(data)
	case "text/csv", "application/csv":
		return parseCSV(data)
	}
	return &domain.DocumentParseResult{
		ParserName:   "structured",
		Success:      false,
		ErrorMessage: fmt.Sprintf("unsupported structured format: %s", mimeType),
	}
}

func parseJSON(data []byte) *domain.DocumentParseResult {
	var decoded any
	if err := json.Unmarshal(data, &decoded); err != nil {
		return &domain.DocumentParseResult{
			ParserName:   "structured-json",
			Success:      false,
			ErrorMessage: fmt.Sprintf("invalid json: %v", err),
		}
	}

	structured, ok := decoded.(map[string]any)
	if !ok {
		// arrays and scalars get wrapped so the payload stays an object
		structured = map[string]any{"items": decoded}
	}

	var text strings.Builder
	renderJSONValue(&text, "", decoded)

	return &domain.DocumentParseResult{
		Text:       text.String(),
		Structured: structured,
		ParserName: "structured-json",
		Metadata:   map[string]string{"format": "json"},
		Success:    true,
	}
}

// renderJSONValue flattens a decoded JSON value into "path: value" lines so
// nested fields remain searchable as text.
func renderJSONValue(out *strings.Builder, prefix string, value any) {
	switch v := value.(type) {
	case map[string]any:
		for _, key := range sortedKeys(v) {
			renderJSONValue(out, joinPath(prefix, key), v[key])
		}
	case []any:
		for i, item := range v {
			renderJSONValue(out, fmt.Sprintf("%s[%d]", prefix, i), item)
		}
	case nil:
		// null carries no searchable text
	default:
		if prefix == "" {
			fmt.Fprintf(out, "%v\n", v)
			return
		}
		fmt.Fprintf(out, "%s: %v\n", prefix, v)
	}
}

func parseXML(data []byte) *domain.DocumentParseResult {
	decoder := xml.NewDecoder(bytes.NewReader(data))
	decoder.Strict = false

	var (
		text     strings.Builder
		root     string
		sections []string
		depth    int
	)
	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return &domain.DocumentParseResult{
				ParserName:   "structured-xml",
				Success:      false,
				ErrorMessage: fmt.Sprintf("invalid xml: %v", err),
			}
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if depth == 0 {
				root = t.Name.Local
			}
			if depth == 1 {
				sections = append(sections, t.Name.Local)
			}
			depth++
		case xml.EndElement:
			depth--
		case xml.CharData:
			if chunk := strings.TrimSpace(string(t)); chunk != "" {
				text.WriteString(chunk)
				text.WriteByte('\n')
			}
		}
	}

	if root == "" {
		return &domain.DocumentParseResult{
			ParserName:   "structured-xml",
			Success:      false,
			ErrorMessage: "invalid xml: no root element",
		}
	}

	return &domain.DocumentParseResult{
		Text:       text.String(),
		Structured: map[string]any{"root": root, "elements": sections},
		Sections:   sections,
		ParserName: "structured-xml",
		Metadata:   map[string]string{"format": "xml"},
		Success:    true,
	}
}

func parseCSV(data []byte) *domain.DocumentParseResult {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	rows, err := reader.ReadAll()
	if err != nil {
		return &domain.DocumentParseResult{
			ParserName:   "structured-csv",
			Success:      false,
			ErrorMessage: fmt.Sprintf("invalid csv: %v", err),
		}
	}
	if len(rows) == 0 {
		return &domain.DocumentParseResult{
			ParserName:   "structured-csv",
			Success:      false,
			ErrorMessage: "empty csv document",
		}
	}

	headers := rows[0]
	var text strings.Builder
	for _, row := range rows {
		text.WriteString(strings.Join(row, ", "))
		text.WriteByte('\n')
	}

	return &domain.DocumentParseResult{
		Text:       text.String(),
		Structured: map[string]any{"headers": headers, "row_count": len(rows) - 1},
		Tables:     rows,
		ParserName: "structured-csv",
		Metadata:   map[string]string{"format": "csv"},
		Success:    true,
	}
}

// normalizeMime lowercases and strips parameters like "; charset=utf-8".
func normalizeMime(mimeType string) string {
	if idx := strings.Index(mimeType, ";"); idx >= 0 {
		mimeType = mimeType[:idx]
	}
	return strings.ToLower(strings.TrimSpace(mimeType))
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func joinPath(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}
