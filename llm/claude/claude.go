package claude

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/bpowers/ktme/internal/logging"
)

const (
	AnthropicURL = "https://api.anthropic.com/v1"
)

var logger = logging.Logger().With("provider", "claude")

// Client generates text with Claude's Messages API.
type Client struct {
	anthropicClient anthropic.Client
	modelName       string
	maxTokens       int64
	temperature     *float64
	systemPrompt    string
	baseURL         string            // Store base URL for testing
	headers         map[string]string // Custom HTTP headers
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

// WithMaxTokens overrides the per-model output limit.
func WithMaxTokens(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxTokens = int64(n)
		}
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

// NewClient returns a client for Claude's Messages API.
func NewClient(apiBase string, apiKey string, opts ...Option) (*Client, error) {
	c := &Client{
		baseURL: apiBase, // Store for testing
	}

	// Use default if empty
	if c.baseURL == "" {
		c.baseURL = AnthropicURL
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.modelName == "" {
		return nil, fmt.Errorf("WithModel is a required option")
	}

	if apiKey == "" {
		return nil, fmt.Errorf("API key is required for Claude API")
	}

	if c.maxTokens == 0 {
		c.maxTokens = getMaxOutputTokens(c.modelName)
	}

	// Build Anthropic client options
	clientOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}

	if apiBase != "" && apiBase != AnthropicURL {
		clientOpts = append(clientOpts, option.WithBaseURL(apiBase))
	}

	// Add custom headers if provided
	for key, value := range c.headers {
		clientOpts = append(clientOpts, option.WithHeader(key, value))
	}

	c.anthropicClient = anthropic.NewClient(clientOpts...)

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

// Generate sends prompt as a single user turn and returns the text of the reply.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	params := anthropic.MessageNewParams{
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
		Model:     anthropic.Model(c.modelName),
		MaxTokens: c.maxTokens, // Claude requires this
	}

	if c.systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{
			{Text: c.systemPrompt},
		}
	}

	if c.temperature != nil {
		params.Temperature = anthropic.Float(*c.temperature)
	}

	logger.Debug("sending message", "model", c.modelName, "max_tokens", c.maxTokens)

	msg, err := c.anthropicClient.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("claude messages: %w", err)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}

	if sb.Len() == 0 {
		return "", fmt.Errorf("claude returned no text content (stop reason %q)", msg.StopReason)
	}

	logger.Debug("message complete", "input_tokens", msg.Usage.InputTokens, "output_tokens", msg.Usage.OutputTokens)

	return sb.String(), nil
}

var modelMaxOutputTokens = map[string]int64{
	"claude-opus-4-1":   32000,
	"claude-opus-4":     32000,
	"claude-sonnet-4-5": 64000,
	"claude-sonnet-4":   64000,
	"claude-3-7-sonnet": 64000,
	"claude-3-5-sonnet": 8192,
	"claude-3-5-haiku":  8192,
	"claude-3-haiku":    4096,
}

// getMaxOutputTokens matches the longest known model prefix.
func getMaxOutputTokens(modelName string) int64 {
	best := ""
	for prefix := range modelMaxOutputTokens {
		if strings.HasPrefix(modelName, prefix) && len(prefix) > len(best) {
			best = prefix
		}
	}
	if best == "" {
		logger.Warn("model not found in model library", "model", modelName)
		return 4096
	}
	return modelMaxOutputTokens[best]
}
