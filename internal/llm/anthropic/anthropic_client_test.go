package anthropic_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"annotext/internal/domain"
	"annotext/internal/llm"
	"annotext/internal/llm/anthropic"
	"annotext/internal/port"
)

func newTestClient(serverURL string) *anthropic.Client {
	return anthropic.NewClientWithEndpoint(&llm.ProviderConfig{
		Provider:    domain.ProviderAnthropic,
		APIKey:      "test-api-key",
		Model:       "claude-sonnet-4-20250514",
		TimeoutSecs: 30,
	}, serverURL)
}

func TestClient_Complete_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-api-key", r.Header.Get("x-api-key"))
		assert.Equal(t, "2023-06-01", r.Header.Get("anthropic-version"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "claude-sonnet-4-20250514", body["model"])
		assert.Equal(t, float64(10), body["max_tokens"])
		assert.Equal(t, "Respond with 'OK'", body["system"])

		messages := body["messages"].([]interface{})
		require.Len(t, messages, 1)
		assert.Equal(t, "user", messages[0].(map[string]interface{})["role"])

		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"content":     []map[string]interface{}{{"type": "text", "text": "OK"}},
			"stop_reason": "end_turn",
			"usage":       map[string]interface{}{"input_tokens": 12, "output_tokens": 1},
		})
	}))
	defer server.Close()

	out, err := newTestClient(server.URL).Complete(context.Background(), port.CompletionRequest{
		SystemMessage: "Respond with 'OK'",
		Prompt:        "Test message",
		MaxTokens:     10,
	})

	require.NoError(t, err)
	assert.Equal(t, "OK", out.Text)
	assert.Equal(t, "anthropic", out.Provider)
	assert.Equal(t, "claude-sonnet-4-20250514", out.Model)
	assert.Equal(t, 13, out.TokensUsed())
}

func TestClient_Complete_MaxTokens(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"[{"}],"stop_reason":"max_tokens"}`))
	}))
	defer server.Close()

	out, err := newTestClient(server.URL).Complete(context.Background(), port.CompletionRequest{Prompt: "x", MaxTokens: 1})

	require.NoError(t, err)
	assert.True(t, out.Truncated)
}

func TestClient_Complete_RateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"rate_limit_error"}}`))
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).Complete(context.Background(), port.CompletionRequest{Prompt: "x"})

	var rlErr *llm.RateLimitError
	require.True(t, errors.As(err, &rlErr))
	assert.Equal(t, "anthropic", rlErr.Provider)
}

func TestClient_Complete_EmptyContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"content":[]}`))
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).Complete(context.Background(), port.CompletionRequest{Prompt: "x"})

	assert.Error(t, err)
}
