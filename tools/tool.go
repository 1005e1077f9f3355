// Package tools implements the documentation tools served over MCP.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/bpowers/ktme/schema"
)

// typedTool adapts a function over a typed request struct to the MCP tool
// interface. Required string arguments are checked before decoding so
// every tool reports a missing argument the same way.
type typedTool[Req any] struct {
	name        string
	description string
	input       *schema.JSON
	fn          func(ctx context.Context, req Req) (string, error)
}

func newTool[Req any](name, description string, input *schema.JSON, fn func(context.Context, Req) (string, error)) *typedTool[Req] {
	return &typedTool[Req]{
		name:        name,
		description: description,
		input:       input,
		fn:          fn,
	}
}

func (t *typedTool[Req]) Name() string {
	return t.name
}

func (t *typedTool[Req]) Description() string {
	return t.description
}

func (t *typedTool[Req]) MCPJsonSchema() string {
	def := struct {
		Name        string          `json:"name"`
		Description string          `json:"description"`
		InputSchema json.RawMessage `json:"inputSchema"`
	}{
		Name:        t.name,
		Description: t.description,
		InputSchema: schema.MustMarshal(t.input),
	}
	b, err := json.Marshal(def)
	if err != nil {
		panic(err)
	}
	return string(b)
}

func (t *typedTool[Req]) Call(ctx context.Context, input string) (string, error) {
	if strings.TrimSpace(input) == "" {
		input = "{}"
	}

	var raw map[string]any
	if err := json.Unmarshal([]byte(input), &raw); err != nil {
		return "", fmt.Errorf("invalid arguments: %w", err)
	}
	for _, name := range t.input.Required {
		if s, _ := raw[name].(string); s == "" {
			return "", fmt.Errorf("Missing '%s' parameter", name)
		}
	}

	var req Req
	if err := json.Unmarshal([]byte(input), &req); err != nil {
		return "", fmt.Errorf("invalid arguments: %w", err)
	}
	return t.fn(ctx, req)
}

type noArgs struct{}
