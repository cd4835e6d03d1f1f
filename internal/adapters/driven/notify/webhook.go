package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/ferrule-labs/docstream-core/internal/core/domain"
	"github.com/ferrule-labs/docstream-core/internal/core/ports/driven"
)

// Ensure Webhook implements NotificationService
var _ driven.NotificationService = (*Webhook)(nil)

// webhookPayload is the completion callback body
type webhookPayload struct {
	JobID      string                  `json:"job_id"`
	DocumentID string                  `json:"document_id,omitempty"`
	Status     domain.ProcessingStatus `json:"status"`
	Error      string                  `json:"error,omitempty"`
	Timestamp  time.Time               `json:"timestamp"`
}

// Webhook posts completion callbacks to the URL a job requested. Delivery is
// best effort: failures are logged and recorded, never propagated.
type Webhook struct {
	client *http.Client
	logger *slog.Logger
}

// NewWebhook creates a webhook notifier.
func NewWebhook(logger *slog.Logger) *Webhook {
	if logger == nil {
		logger = slog.Default()
	}
	return &Webhook{
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// Send delivers a completion callback and records the outcome.
func (w *Webhook) Send(ctx context.Context, req *driven.NotificationRequest) *domain.NotificationResult {
	result := &domain.NotificationResult{Attempted: true}

	if req == nil || req.URL == "" {
		result.Attempted = false
		return result
	}

	if err := w.post(ctx, req); err != nil {
		result.Error = err.Error()
		w.logger.Warn("notification delivery failed",
			"url", req.URL,
			"job_id", req.JobID,
			"error", err)
		return result
	}

	result.Sent = true
	w.logger.Debug("notification delivered", "url", req.URL, "job_id", req.JobID)
	return result
}

func (w *Webhook) post(ctx context.Context, req *driven.NotificationRequest) error {
	body, err := json.Marshal(webhookPayload{
		JobID:      req.JobID,
		DocumentID: req.DocumentID,
		Status:     req.Status,
		Error:      req.Error,
		Timestamp:  time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", req.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("callback returned status %d", resp.StatusCode)
	}
	return nil
}
