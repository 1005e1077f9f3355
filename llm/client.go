package llm

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/bpowers/ktme/internal/logging"
	"github.com/bpowers/ktme/llm/claude"
	"github.com/bpowers/ktme/llm/gemini"
	"github.com/bpowers/ktme/llm/openai"
)

// Generator turns a prompt into generated text.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
	// Model names the model backing the generator.
	Model() string
}

// Config holds the LLM client configuration
type Config struct {
	Model        string
	APIKey       string
	BaseURL      string // Optional base URL override for the API endpoint
	Temperature  float64
	MaxTokens    int
	SystemPrompt string
	// Timeout bounds each Generate call. Zero means no limit beyond the caller's context.
	Timeout time.Duration
	Headers map[string]string
}

// ModelProvider represents the different LLM providers
type ModelProvider int

const (
	ProviderOpenAI ModelProvider = iota
	ProviderClaude
	ProviderGemini
	ProviderOllama
	ProviderUnknown
)

func (p ModelProvider) String() string {
	switch p {
	case ProviderOpenAI:
		return "openai"
	case ProviderClaude:
		return "claude"
	case ProviderGemini:
		return "gemini"
	case ProviderOllama:
		return "ollama"
	default:
		return "unknown"
	}
}

// NewGenerator creates a generator based on the configuration
func NewGenerator(config *Config) (Generator, error) {
	gen, err := newProviderGenerator(config)
	if err != nil {
		return nil, err
	}
	if config.Timeout > 0 {
		return &timeoutGenerator{Generator: gen, timeout: config.Timeout}, nil
	}
	return gen, nil
}

func newProviderGenerator(config *Config) (Generator, error) {
	provider := detectProvider(config.Model)
	apiKey := config.APIKey
	logger := logging.Logger()

	switch provider {
	case ProviderOpenAI:
		if apiKey == "" {
			apiKey = os.Getenv("OPENAI_API_KEY")
		}
		if apiKey == "" {
			return nil, fmt.Errorf("openAI API key required (set api_key or OPENAI_API_KEY)")
		}

		baseURL := config.BaseURL
		if baseURL == "" {
			baseURL = openai.OpenAIURL
		}
		logger.Info("using OpenAI generator", "model", config.Model)
		return openai.NewClient(baseURL, apiKey, openaiOptions(config)...)

	case ProviderClaude:
		if apiKey == "" {
			apiKey = os.Getenv("ANTHROPIC_API_KEY")
		}
		if apiKey == "" {
			return nil, fmt.Errorf("anthropic API key required (set api_key or ANTHROPIC_API_KEY)")
		}

		opts := []claude.Option{
			claude.WithModel(config.Model),
			claude.WithHeaders(config.Headers),
		}
		if config.MaxTokens > 0 {
			opts = append(opts, claude.WithMaxTokens(config.MaxTokens))
		}
		if config.Temperature > 0 {
			opts = append(opts, claude.WithTemperature(config.Temperature))
		}
		if config.SystemPrompt != "" {
			opts = append(opts, claude.WithSystemPrompt(config.SystemPrompt))
		}

		baseURL := config.BaseURL
		if baseURL == "" {
			baseURL = claude.AnthropicURL
		}
		logger.Info("using Claude generator", "model", config.Model)
		return claude.NewClient(baseURL, apiKey, opts...)

	case ProviderGemini:
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
			if apiKey == "" {
				apiKey = os.Getenv("GOOGLE_API_KEY")
			}
		}
		if apiKey == "" {
			return nil, fmt.Errorf("gemini API key required (set api_key, GEMINI_API_KEY, or GOOGLE_API_KEY)")
		}

		opts := []gemini.Option{
			gemini.WithModel(config.Model),
			gemini.WithHeaders(config.Headers),
		}
		if config.BaseURL != "" {
			opts = append(opts, gemini.WithBaseURL(config.BaseURL))
		}
		if config.MaxTokens > 0 {
			opts = append(opts, gemini.WithMaxTokens(config.MaxTokens))
		}
		if config.Temperature > 0 {
			opts = append(opts, gemini.WithTemperature(config.Temperature))
		}
		if config.SystemPrompt != "" {
			opts = append(opts, gemini.WithSystemPrompt(config.SystemPrompt))
		}

		logger.Info("using Gemini generator", "model", config.Model)
		return gemini.NewClient(apiKey, opts...)

	case ProviderOllama:
		// Ollama doesn't require an API key
		baseURL := config.BaseURL
		if baseURL == "" {
			baseURL = openai.OllamaURL
		}
		logger.Info("using local Ollama generator", "model", config.Model)
		return openai.NewClient(baseURL, "", openaiOptions(config)...)

	default:
		return nil, fmt.Errorf("unknown model provider for model: %s", config.Model)
	}
}

func openaiOptions(config *Config) []openai.Option {
	opts := []openai.Option{
		openai.WithModel(config.Model),
		openai.WithHeaders(config.Headers),
	}
	if config.MaxTokens > 0 {
		opts = append(opts, openai.WithMaxTokens(config.MaxTokens))
	}
	if config.Temperature > 0 {
		opts = append(opts, openai.WithTemperature(config.Temperature))
	}
	if config.SystemPrompt != "" {
		opts = append(opts, openai.WithSystemPrompt(config.SystemPrompt))
	}
	return opts
}

// detectProvider detects the provider from the model name
func detectProvider(model string) ModelProvider {
	modelLower := strings.ToLower(model)

	// OpenAI models
	if strings.HasPrefix(modelLower, "gpt-") ||
		strings.HasPrefix(modelLower, "o1-") ||
		strings.HasPrefix(modelLower, "o3") { // o3 doesn't have a dash
		return ProviderOpenAI
	}

	// Claude models
	if strings.HasPrefix(modelLower, "claude-") {
		return ProviderClaude
	}

	// Gemini models
	if strings.HasPrefix(modelLower, "gemini-") {
		return ProviderGemini
	}

	// Ollama models (common ones)
	if strings.HasPrefix(modelLower, "llama") ||
		strings.HasPrefix(modelLower, "mistral") ||
		strings.HasPrefix(modelLower, "mixtral") ||
		strings.HasPrefix(modelLower, "qwen") ||
		strings.HasPrefix(modelLower, "phi") ||
		strings.HasPrefix(modelLower, "deepseek") ||
		strings.HasPrefix(modelLower, "codellama") {
		return ProviderOllama
	}

	return ProviderUnknown
}

type timeoutGenerator struct {
	Generator
	timeout time.Duration
}

func (g *timeoutGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	text, err := g.Generator.Generate(ctx, prompt)
	if err != nil && ctx.Err() == context.DeadlineExceeded {
		return "", fmt.Errorf("generation timed out after %s: %w", g.timeout, err)
	}
	return text, err
}
