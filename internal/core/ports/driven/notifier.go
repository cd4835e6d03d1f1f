package driven

import (
	"context"

	"github.com/ferrule-labs/docstream-core/internal/core/domain"
)

// NotificationRequest describes a completion callback.
type NotificationRequest struct {
	URL        string                  `json:"url"`
	JobID      string                  `json:"job_id"`
	DocumentID string                  `json:"document_id,omitempty"`
	Status     domain.ProcessingStatus `json:"status"`
	Error      string                  `json:"error,omitempty"`
}

// NotificationService delivers completion callbacks. Delivery is fire and
// forget with logging: a failure is returned for the record but never fails
// the operation that requested it.
type NotificationService interface {
	Send(ctx context.Context, req *NotificationRequest) *domain.NotificationResult
}
