package notify

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ferrule-labs/docstream-core/internal/core/domain"
	"github.com/ferrule-labs/docstream-core/internal/core/ports/driven"
)

func quietWebhook() *Webhook {
	return NewWebhook(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestWebhook_Send(t *testing.T) {
	var payload webhookPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "POST", r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
	}))
	defer server.Close()

	result := quietWebhook().Send(context.Background(), &driven.NotificationRequest{
		URL:        server.URL,
		JobID:      "job-1",
		DocumentID: "doc-1",
		Status:     domain.StatusProcessed,
	})

	assert.True(t, result.Attempted)
	assert.True(t, result.Sent)
	assert.Empty(t, result.Error)
	assert.Equal(t, "job-1", payload.JobID)
	assert.Equal(t, "doc-1", payload.DocumentID)
	assert.Equal(t, domain.StatusProcessed, payload.Status)
	assert.False(t, payload.Timestamp.IsZero())
}

func TestWebhook_FailureStatusCarried(t *testing.T) {
	var payload webhookPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
	}))
	defer server.Close()

	result := quietWebhook().Send(context.Background(), &driven.NotificationRequest{
		URL:    server.URL,
		JobID:  "job-2",
		Status: domain.StatusFailed,
		Error:  "parse failed",
	})

	assert.True(t, result.Sent)
	assert.Equal(t, "parse failed", payload.Error)
}

func TestWebhook_NonSuccessStatusIsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	result := quietWebhook().Send(context.Background(), &driven.NotificationRequest{
		URL:   server.URL,
		JobID: "job-3",
	})

	assert.True(t, result.Attempted)
	assert.False(t, result.Sent)
	assert.Contains(t, result.Error, "status 502")
}

func TestWebhook_UnreachableTarget(t *testing.T) {
	result := quietWebhook().Send(context.Background(), &driven.NotificationRequest{
		URL:   "http://127.0.0.1:1/callback",
		JobID: "job-4",
	})

	assert.True(t, result.Attempted)
	assert.False(t, result.Sent)
	assert.NotEmpty(t, result.Error)
}

func TestWebhook_MissingURLNotAttempted(t *testing.T) {
	result := quietWebhook().Send(context.Background(), &driven.NotificationRequest{JobID: "job-5"})

	assert.False(t, result.Attempted)
	assert.False(t, result.Sent)
}
