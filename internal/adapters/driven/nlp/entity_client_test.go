package nlp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntityClient_Extract(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "POST", r.Method)
		assert.Equal(t, "/api/v1/process", r.URL.Path)

		var req processRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.NotEmpty(t, req.ID)
		assert.Equal(t, "Acme Corp hired Jane Doe.", req.Content)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"document": {"id": "ignored", "content": "ignored"},
			"analysis": {
				"entities": [
					{"text": "Acme Corp", "type": "ORG", "start": 0, "end": 9, "confidence": 0.98},
					{"text": "Jane Doe", "type": "PERSON", "start": 16, "end": 24, "confidence": 0.95}
				],
				"sentiment": {"positive": 0.7, "negative": 0.1},
				"word_count": 5,
				"sentence_count": 1
			}
		}`))
	}))
	defer server.Close()

	client := NewEntityClient(server.URL)
	analysis, err := client.Extract(context.Background(), "Acme Corp hired Jane Doe.")

	require.NoError(t, err)
	require.Len(t, analysis.Entities, 2)
	assert.Equal(t, "Acme Corp", analysis.Entities[0].Text)
	assert.Equal(t, "ORG", analysis.Entities[0].Type)
	assert.Equal(t, 0.98, analysis.Entities[0].Confidence)
	assert.Equal(t, "PERSON", analysis.Entities[1].Type)
	assert.Equal(t, 0.7, analysis.Sentiment["positive"])
	assert.Equal(t, 5, analysis.WordCount)
	assert.Equal(t, 1, analysis.SentenceCount)
}

func TestEntityClient_EmptyTextSkipsCall(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer server.Close()

	client := NewEntityClient(server.URL)
	analysis, err := client.Extract(context.Background(), "")

	require.NoError(t, err)
	assert.Empty(t, analysis.Entities)
	assert.False(t, called)
}

func TestEntityClient_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewEntityClient(server.URL)
	_, err := client.Extract(context.Background(), "text")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
}

func TestEntityClient_InvalidJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer server.Close()

	client := NewEntityClient(server.URL)
	_, err := client.Extract(context.Background(), "text")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse response")
}

func TestEntityClient_Unreachable(t *testing.T) {
	client := NewEntityClient("http://127.0.0.1:1")
	_, err := client.Extract(context.Background(), "text")

	require.Error(t, err)
}
