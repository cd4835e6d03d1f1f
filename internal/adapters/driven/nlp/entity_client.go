package nlp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/ferrule-labs/docstream-core/internal/core/domain"
	"github.com/ferrule-labs/docstream-core/internal/core/ports/driven"
)

// Ensure EntityClient implements EntityExtractor
var _ driven.EntityExtractor = (*EntityClient)(nil)

// EntityClient calls the NLP processing service for named-entity recognition
// and sentiment analysis. Callers treat any error as "no enrichment".
type EntityClient struct {
	baseURL string
	client  *http.Client
}

// NewEntityClient creates a client for the NLP processing service.
func NewEntityClient(baseURL string) *EntityClient {
	if baseURL == "" {
		baseURL = "http://localhost:8081"
	}
	return &EntityClient{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// processRequest is the document submitted for analysis
type processRequest struct {
	ID       string         `json:"id"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata"`
}

// processResponse mirrors the service's ProcessedDocument shape; fields the
// pipeline never consumes are left undeclared
type processResponse struct {
	Analysis struct {
		Entities []struct {
			Text       string  `json:"text"`
			Type       string  `json:"type"`
			Start      int     `json:"start"`
			End        int     `json:"end"`
			Confidence float64 `json:"confidence"`
		} `json:"entities"`
		Sentiment     map[string]float64 `json:"sentiment"`
		WordCount     int                `json:"word_count"`
		SentenceCount int                `json:"sentence_count"`
	} `json:"analysis"`
}

// Extract submits text for analysis and maps the result into the domain
// analysis shape.
func (c *EntityClient) Extract(ctx context.Context, text string) (*domain.TextAnalysis, error) {
	if text == "" {
		return &domain.TextAnalysis{}, nil
	}

	body, err := json.Marshal(processRequest{
		ID:       uuid.NewString(),
		Content:  text,
		Metadata: map[string]any{},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/v1/process", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("nlp service returned status %d", resp.StatusCode)
	}

	var decoded processResponse
	if err := json.Unmarshal(respBody, &decoded); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	analysis := &domain.TextAnalysis{
		Sentiment:     decoded.Analysis.Sentiment,
		WordCount:     decoded.Analysis.WordCount,
		SentenceCount: decoded.Analysis.SentenceCount,
	}
	for _, e := range decoded.Analysis.Entities {
		analysis.Entities = append(analysis.Entities, domain.Entity{
			Text:       e.Text,
			Type:       e.Type,
			Start:      e.Start,
			End:        e.End,
			Confidence: e.Confidence,
		})
	}
	return analysis, nil
}
