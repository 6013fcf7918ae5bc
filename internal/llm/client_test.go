package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/billfold-ai/invoice-engine/internal/domain"
	"github.com/billfold-ai/invoice-engine/internal/observability"
)

const candidateJSON = `{"vendor":{"name":"Acme"},"line_items":[]}`

func completionBody(content string) string {
	resp := Response{
		ID: "chatcmpl-test",
		Choices: []Choice{
			{Message: ChoiceMessage{Role: "assistant", Content: content}, FinishReason: "stop"},
		},
	}
	data, _ := json.Marshal(resp)
	return string(data)
}

func testImages(t *testing.T, count int) []string {
	t.Helper()

	tempDir := t.TempDir()
	paths := make([]string, 0, count)
	for i := 0; i < count; i++ {
		path := filepath.Join(tempDir, "page_"+strings.Repeat("0", i+1)+".jpg")
		require.NoError(t, os.WriteFile(path, []byte("jpegdata"), 0o644))
		paths = append(paths, path)
	}
	return paths
}

func newTestClient(baseURL string) *Client {
	return NewClient(Config{
		APIKey:  "test-key",
		BaseURL: baseURL,
	}, observability.Nop())
}

func TestCompleteSuccess(t *testing.T) {
	var gotReq Request
	var gotAuth string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		w.Write([]byte(completionBody(candidateJSON)))
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	raw, err := client.Complete(context.Background(), testImages(t, 2))
	require.NoError(t, err)
	assert.JSONEq(t, candidateJSON, string(raw))

	assert.Equal(t, "Bearer test-key", gotAuth)
	assert.Equal(t, defaultModel, gotReq.Model)
	assert.Equal(t, 4096, gotReq.MaxTokens)
	assert.Equal(t, "json_schema", gotReq.ResponseFormat.Type)
	assert.Equal(t, "invoice_extraction", gotReq.ResponseFormat.JSONSchema.Name)
	assert.True(t, gotReq.ResponseFormat.JSONSchema.Strict)

	require.Len(t, gotReq.Messages, 2)
	assert.Equal(t, "system", gotReq.Messages[0].Role)

	user := gotReq.Messages[1]
	assert.Equal(t, "user", user.Role)
	require.Len(t, user.Content, 3)
	assert.Equal(t, "text", user.Content[0].Type)
	for _, part := range user.Content[1:] {
		assert.Equal(t, "image_url", part.Type)
		require.NotNil(t, part.ImageURL)
		assert.True(t, strings.HasPrefix(part.ImageURL.URL, "data:image/jpeg;base64,"))
		assert.Equal(t, "high", part.ImageURL.Detail)
	}
}

func TestCompleteNonRetryableStatus(t *testing.T) {
	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error": {"message": "invalid schema"}}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	_, err := client.Complete(context.Background(), testImages(t, 1))
	require.Error(t, err)
	assert.Equal(t, domain.KindExtraction, domain.KindOf(err))
	assert.Contains(t, err.Error(), "status 400")
	assert.Equal(t, int32(1), calls.Load(), "4xx must not be retried")
}

func TestCompleteRetriesServerError(t *testing.T) {
	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(completionBody(candidateJSON)))
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	raw, err := client.Complete(context.Background(), testImages(t, 1))
	require.NoError(t, err)
	assert.JSONEq(t, candidateJSON, string(raw))
	assert.Equal(t, int32(2), calls.Load())
}

func TestCompleteEmptyResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(completionBody("")))
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	_, err := client.Complete(context.Background(), testImages(t, 1))
	require.Error(t, err)
	assert.Equal(t, domain.KindExtraction, domain.KindOf(err))
	assert.Contains(t, err.Error(), "no content")
}

func TestCompleteMissingImage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("request must not be sent when an image is missing")
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	_, err := client.Complete(context.Background(), []string{filepath.Join(t.TempDir(), "gone.jpg")})
	require.Error(t, err)
	assert.Equal(t, domain.KindMissingArtifact, domain.KindOf(err))
}

func TestCompleteBreakerOpens(t *testing.T) {
	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	client := NewClient(Config{
		APIKey:           "test-key",
		BaseURL:          server.URL,
		BreakerThreshold: 1,
		BreakerWindow:    time.Minute,
		BreakerCooldown:  time.Minute,
	}, observability.Nop())

	images := testImages(t, 1)

	_, err := client.Complete(context.Background(), images)
	require.Error(t, err)
	assert.Equal(t, domain.KindExtraction, domain.KindOf(err))

	_, err = client.Complete(context.Background(), images)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "circuit breaker open")
	assert.Equal(t, int32(1), calls.Load(), "open breaker must short-circuit the request")
}

func TestShouldRetry(t *testing.T) {
	assert.True(t, shouldRetry(http.StatusTooManyRequests))
	assert.True(t, shouldRetry(http.StatusInternalServerError))
	assert.True(t, shouldRetry(http.StatusServiceUnavailable))
	assert.False(t, shouldRetry(http.StatusOK))
	assert.False(t, shouldRetry(http.StatusBadRequest))
	assert.False(t, shouldRetry(http.StatusUnauthorized))
}
