package openai

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	llmtesting "github.com/bpowers/ktme/llm/testing"
)

func TestOpenAI_HeaderConfiguration(t *testing.T) {
	t.Parallel()

	headers := map[string]string{
		"X-Custom-Header": "custom-value",
		"X-Request-ID":    "req-123",
	}

	client, err := NewClient(OpenAIURL, "test-key", WithModel("gpt-4o"), WithHeaders(headers))
	require.NoError(t, err)
	llmtesting.TestHeaderConfiguration(t, client, headers)

	client, err = NewClient(OpenAIURL, "test-key", WithModel("gpt-4o"))
	require.NoError(t, err)
	assert.Nil(t, client.Headers())
}

type chatRequest struct {
	Model               string   `json:"model"`
	Temperature         *float64 `json:"temperature"`
	MaxCompletionTokens int      `json:"max_completion_tokens"`
	Messages            []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func completionServer(t *testing.T, content string, got *chatRequest, gotAuth *string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		*gotAuth = r.Header.Get("Authorization")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(got))

		w.Header().Set("Content-Type", "application/json")
		resp := map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 1,
			"model":   got.Model,
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": content},
			}},
			"usage": map[string]any{"prompt_tokens": 3, "completion_tokens": 4, "total_tokens": 7},
		}
		assert.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOpenAI_Generate(t *testing.T) {
	t.Parallel()

	var got chatRequest
	var auth string
	srv := completionServer(t, "Generated docs", &got, &auth)

	client, err := NewClient(srv.URL+"/v1", "test-key",
		WithModel("gpt-4o"),
		WithSystemPrompt("You write docs."),
		WithTemperature(0.5),
		WithMaxTokens(256))
	require.NoError(t, err)

	text, err := client.Generate(t.Context(), "Document these changes")
	require.NoError(t, err)
	assert.Equal(t, "Generated docs", text)

	assert.Equal(t, "Bearer test-key", auth)
	assert.Equal(t, "gpt-4o", got.Model)
	require.NotNil(t, got.Temperature)
	assert.InDelta(t, 0.5, *got.Temperature, 1e-9)
	assert.Equal(t, 256, got.MaxCompletionTokens)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "user", got.Messages[1].Role)
	assert.Equal(t, "Document these changes", got.Messages[1].Content)
}

func TestOpenAI_GenerateOmitsTemperatureForReasoningModels(t *testing.T) {
	t.Parallel()

	var got chatRequest
	var auth string
	srv := completionServer(t, "ok", &got, &auth)

	client, err := NewClient(srv.URL+"/v1", "test-key", WithModel("o3-mini"), WithTemperature(0.9))
	require.NoError(t, err)

	_, err = client.Generate(t.Context(), "hi")
	require.NoError(t, err)
	assert.Nil(t, got.Temperature)
	require.Len(t, got.Messages, 1)
}

func TestOpenAI_GenerateEmptyContent(t *testing.T) {
	t.Parallel()

	var got chatRequest
	var auth string
	srv := completionServer(t, "", &got, &auth)

	client, err := NewClient(srv.URL+"/v1", "test-key", WithModel("gpt-4o"))
	require.NoError(t, err)

	_, err = client.Generate(t.Context(), "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty content")
}
