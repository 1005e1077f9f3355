package openai

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/bpowers/ktme/internal/logging"
)

var logger = logging.Logger().With("provider", "openai")

const (
	OpenAIURL = "https://api.openai.com/v1"
	OllamaURL = "http://localhost:11434/v1"
)

// Client generates text with the Chat Completions API. It also serves
// OpenAI-compatible endpoints such as Ollama.
type Client struct {
	openaiClient openai.Client
	modelName    string
	maxTokens    int
	temperature  *float64
	systemPrompt string
	baseURL      string            // Store base URL for testing
	headers      map[string]string // Custom HTTP headers
	logger       *slog.Logger
}

type Option func(*Client)

func WithModel(modelName string) Option {
	return func(c *Client) {
		c.modelName = strings.TrimSpace(modelName)
	}
}

func WithHeaders(headers map[string]string) Option {
	return func(c *Client) {
		c.headers = headers
	}
}

func WithMaxTokens(n int) Option {
	return func(c *Client) {
		c.maxTokens = n
	}
}

func WithTemperature(t float64) Option {
	return func(c *Client) {
		c.temperature = &t
	}
}

func WithSystemPrompt(prompt string) Option {
	return func(c *Client) {
		c.systemPrompt = prompt
	}
}

// NewClient returns a Chat Completions client rooted at apiBase. apiKey may
// be empty for local servers.
func NewClient(apiBase string, apiKey string, opts ...Option) (*Client, error) {
	c := &Client{
		baseURL: apiBase, // Store for testing
		logger:  logger,
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.modelName == "" {
		return nil, fmt.Errorf("WithModel is a required option")
	}

	// Build OpenAI client options
	clientOpts := []option.RequestOption{
		option.WithBaseURL(apiBase),
	}

	if apiKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(apiKey))
	}

	// Add custom headers if provided
	for key, value := range c.headers {
		clientOpts = append(clientOpts, option.WithHeader(key, value))
	}

	c.openaiClient = openai.NewClient(clientOpts...)

	return c, nil
}

// BaseURL returns the base URL for testing purposes.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Headers returns the custom headers for testing purposes.
func (c *Client) Headers() map[string]string {
	return c.headers
}

// Model returns the configured model name.
func (c *Client) Model() string {
	return c.modelName
}

// isNoTemperatureModel checks if a model doesn't support custom temperature
func isNoTemperatureModel(model string) bool {
	modelLower := strings.ToLower(model)
	// gpt-5, o1, and o3 models don't support custom temperature
	return strings.HasPrefix(modelLower, "gpt-5") ||
		strings.HasPrefix(modelLower, "o1-") ||
		strings.HasPrefix(modelLower, "o3")
}

// Generate sends prompt as a single user message and returns the reply.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	var messages []openai.ChatCompletionMessageParamUnion
	if c.systemPrompt != "" {
		messages = append(messages, openai.SystemMessage(c.systemPrompt))
	}
	messages = append(messages, openai.UserMessage(prompt))

	params := openai.ChatCompletionNewParams{
		Messages: messages,
		Model:    c.modelName,
	}

	// Only set temperature for models that support it
	if c.temperature != nil && !isNoTemperatureModel(c.modelName) {
		params.Temperature = openai.Float(*c.temperature)
	}

	if c.maxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(c.maxTokens))
	}

	c.logger.Debug("sending chat completion", "model", c.modelName)

	resp, err := c.openaiClient.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai chat completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai returned no choices")
	}

	choice := resp.Choices[0]
	if choice.Message.Content == "" {
		return "", fmt.Errorf("openai returned empty content (finish reason %q)", choice.FinishReason)
	}

	c.logger.Debug("chat completion done", "prompt_tokens", resp.Usage.PromptTokens, "completion_tokens", resp.Usage.CompletionTokens)

	return choice.Message.Content, nil
}
