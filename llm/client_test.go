package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bpowers/ktme/llm/claude"
	"github.com/bpowers/ktme/llm/openai"
	llmtesting "github.com/bpowers/ktme/llm/testing"
)

func TestDetectProvider(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		model    string
		expected ModelProvider
	}{
		// OpenAI models
		{"GPT-5", "gpt-5", ProviderOpenAI},
		{"GPT-4o", "gpt-4o", ProviderOpenAI},
		{"GPT-4o-mini", "gpt-4o-mini", ProviderOpenAI},
		{"O1 Preview", "o1-preview", ProviderOpenAI},
		{"O3", "o3", ProviderOpenAI},

		// Claude models
		{"Claude 3.5 Sonnet", "claude-3-5-sonnet-20241022", ProviderClaude},
		{"Claude 3 Haiku", "claude-3-haiku-20240307", ProviderClaude},

		// Gemini models
		{"Gemini 1.5 Flash", "gemini-1.5-flash", ProviderGemini},
		{"Gemini 1.5 Pro", "gemini-1.5-pro", ProviderGemini},

		// Ollama models
		{"Llama 3", "llama3", ProviderOllama},
		{"Mistral", "mistral", ProviderOllama},
		{"Qwen", "qwen2.5-coder", ProviderOllama},
		{"DeepSeek", "deepseek-coder", ProviderOllama},

		// Unknown models
		{"Unknown Model", "unknown-model-xyz", ProviderUnknown},
		{"Empty", "", ProviderUnknown},

		// Case insensitive tests
		{"Claude Upper", "CLAUDE-3-OPUS", ProviderClaude},
		{"Gemini Mixed", "GeMiNi-PrO", ProviderGemini},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			result := detectProvider(tt.model)
			assert.Equal(t, tt.expected, result, "Provider detection failed for model: %s", tt.model)
		})
	}
}

func TestNewGenerator(t *testing.T) {
	tests := []struct {
		name      string
		config    *Config
		envVars   map[string]string
		shouldErr bool
		errMsg    string
	}{
		{
			name:   "OpenAI with API key",
			config: &Config{Model: "gpt-4o", APIKey: "test-openai-key"},
		},
		{
			name:    "OpenAI with env var",
			config:  &Config{Model: "gpt-4o"},
			envVars: map[string]string{"OPENAI_API_KEY": "env-openai-key"},
		},
		{
			name:      "OpenAI without API key",
			config:    &Config{Model: "gpt-4o"},
			shouldErr: true,
			errMsg:    "openAI API key required",
		},
		{
			name:    "Claude with env var",
			config:  &Config{Model: "claude-3-5-sonnet-20241022"},
			envVars: map[string]string{"ANTHROPIC_API_KEY": "env-claude-key"},
		},
		{
			name:      "Claude without API key",
			config:    &Config{Model: "claude-3-5-sonnet-20241022"},
			shouldErr: true,
			errMsg:    "anthropic API key required",
		},
		{
			name:    "Gemini with GOOGLE_API_KEY env var",
			config:  &Config{Model: "gemini-1.5-pro"},
			envVars: map[string]string{"GOOGLE_API_KEY": "env-google-key"},
		},
		{
			name:      "Gemini without API key",
			config:    &Config{Model: "gemini-1.5-pro"},
			shouldErr: true,
			errMsg:    "gemini API key required",
		},
		{
			name:   "Ollama model (no API key needed)",
			config: &Config{Model: "llama3"},
		},
		{
			name:      "Unknown model",
			config:    &Config{Model: "unknown-model"},
			shouldErr: true,
			errMsg:    "unknown model provider",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// t.Setenv rules out t.Parallel here.
			for _, key := range []string{"OPENAI_API_KEY", "ANTHROPIC_API_KEY", "GEMINI_API_KEY", "GOOGLE_API_KEY"} {
				t.Setenv(key, "")
			}
			for key, value := range tt.envVars {
				t.Setenv(key, value)
			}

			gen, err := NewGenerator(tt.config)

			if tt.shouldErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, gen)
			assert.Equal(t, tt.config.Model, gen.Model())
		})
	}
}

func TestNewGenerator_BaseURLConfiguration(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		config      *Config
		expectedURL string
	}{
		{
			name:        "OpenAI with default URL",
			config:      &Config{Model: "gpt-4o", APIKey: "test-key"},
			expectedURL: openai.OpenAIURL,
		},
		{
			name:        "Claude with custom URL",
			config:      &Config{Model: "claude-3-haiku", APIKey: "test-key", BaseURL: "https://custom.anthropic.com/v1"},
			expectedURL: "https://custom.anthropic.com/v1",
		},
		{
			name:        "Claude with default URL",
			config:      &Config{Model: "claude-3-haiku", APIKey: "test-key"},
			expectedURL: claude.AnthropicURL,
		},
		{
			name:        "Gemini with default URL",
			config:      &Config{Model: "gemini-1.5-pro", APIKey: "test-key"},
			expectedURL: "",
		},
		{
			name:        "Ollama with default URL",
			config:      &Config{Model: "llama3"},
			expectedURL: openai.OllamaURL,
		},
		{
			name:        "Ollama with custom URL",
			config:      &Config{Model: "llama3", BaseURL: "http://remote-ollama:11434/v1"},
			expectedURL: "http://remote-ollama:11434/v1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			gen, err := NewGenerator(tt.config)
			require.NoError(t, err, "Failed to create generator")
			require.NotNil(t, gen)

			llmtesting.TestBaseURLConfiguration(t, gen, tt.expectedURL)
		})
	}
}

func TestNewGenerator_HeadersPropagation(t *testing.T) {
	t.Parallel()

	headers := map[string]string{
		"X-Custom-Header": "custom-value",
		"X-Request-ID":    "req-123",
	}

	for _, model := range []string{"gpt-4o", "claude-3-haiku", "gemini-1.5-pro", "llama3"} {
		t.Run(model, func(t *testing.T) {
			t.Parallel()

			gen, err := NewGenerator(&Config{Model: model, APIKey: "test-key", Headers: headers})
			require.NoError(t, err)

			llmtesting.TestHeaderConfiguration(t, gen, headers)
		})
	}
}

type slowGenerator struct{}

func (slowGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func (slowGenerator) Model() string { return "slow" }

func TestTimeoutGenerator(t *testing.T) {
	t.Parallel()

	gen := &timeoutGenerator{Generator: slowGenerator{}, timeout: 10 * time.Millisecond}

	_, err := gen.Generate(t.Context(), "hello")
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Contains(t, err.Error(), "timed out")
	assert.Equal(t, "slow", gen.Model())
}

func TestTimeoutGenerator_PassesThrough(t *testing.T) {
	t.Parallel()

	fake := llmtesting.NewFakeGenerator("done")
	gen := &timeoutGenerator{Generator: fake, timeout: time.Second}

	text, err := gen.Generate(t.Context(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "done", text)
	assert.Equal(t, []string{"hello"}, fake.Prompts())
}
