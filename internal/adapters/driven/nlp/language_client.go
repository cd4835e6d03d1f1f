package nlp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ferrule-labs/docstream-core/internal/core/ports/driven"
)

// Ensure LanguageClient implements LanguageDetector
var _ driven.LanguageDetector = (*LanguageClient)(nil)

// LanguageClient calls the language detection service. The service rejects
// detections below the requested confidence with 422; that surfaces as an
// error here and the caller falls back to its local heuristic.
type LanguageClient struct {
	baseURL string
	client  *http.Client
}

// NewLanguageClient creates a client for the language detection service.
func NewLanguageClient(baseURL string) *LanguageClient {
	if baseURL == "" {
		baseURL = "http://localhost:8082"
	}
	return &LanguageClient{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// detectRequest is the detection request body
type detectRequest struct {
	Text          string  `json:"text"`
	MinConfidence float64 `json:"min_confidence"`
}

// languageResult is one candidate in the detection response
type languageResult struct {
	Language     string  `json:"language"`
	LanguageName string  `json:"language_name"`
	Confidence   float64 `json:"confidence"`
	ISOCode6391  string  `json:"iso_code_639_1"`
	ISOCode6393  string  `json:"iso_code_639_3"`
}

// detectResponse is the detection service response
type detectResponse struct {
	DetectedLanguage languageResult   `json:"detected_language"`
	AllCandidates    []languageResult `json:"all_candidates"`
	TextLength       int              `json:"text_length"`
}

// Detect returns the most confident language at or above minConfidence.
func (c *LanguageClient) Detect(ctx context.Context, text string, minConfidence float64) (*driven.LanguageDetection, error) {
	if text == "" {
		return nil, fmt.Errorf("text is empty")
	}

	body, err := json.Marshal(detectRequest{Text: text, MinConfidence: minConfidence})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/detect", bytes.NewReader(body))
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
		return nil, fmt.Errorf("language service returned status %d", resp.StatusCode)
	}

	var decoded detectResponse
	if err := json.Unmarshal(respBody, &decoded); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if decoded.DetectedLanguage.Language == "" {
		return nil, fmt.Errorf("language service returned no detection")
	}

	language := decoded.DetectedLanguage.ISOCode6391
	if language == "" {
		language = decoded.DetectedLanguage.Language
	}

	return &driven.LanguageDetection{
		Language:   strings.ToLower(language),
		Confidence: decoded.DetectedLanguage.Confidence,
	}, nil
}

// Health checks the detection service backend.
func (c *LanguageClient) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("language service returned status %d", resp.StatusCode)
	}
	return nil
}
