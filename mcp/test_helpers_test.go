package mcp

import (
	"context"
	"fmt"
)

type stubTool struct {
	name       string
	schema     string
	result     string
	err        error
	calledWith *string
}

func (s *stubTool) MCPJsonSchema() string {
	if s.schema != "" {
		return s.schema
	}
	return fmt.Sprintf(`{"name":%q,"description":"stub %s","inputSchema":{"type":"object","properties":{}}}`, s.name, s.name)
}

func (s *stubTool) Name() string {
	return s.name
}

func (s *stubTool) Call(ctx context.Context, input string) (string, error) {
	if s.calledWith != nil {
		*s.calledWith = input
	}
	return s.result, s.err
}

var _ Tool = (*stubTool)(nil)

// panicTool is a test tool that panics when called
type panicTool struct{}

func (panicTool) MCPJsonSchema() string {
	return `{"name":"PanicTool","description":"A tool that panics for testing","inputSchema":{"type":"object","properties":{}}}`
}

func (panicTool) Name() string {
	return "PanicTool"
}

func (panicTool) Call(_ context.Context, _ string) (string, error) {
	panic("intentional panic for testing")
}

var _ Tool = panicTool{}
