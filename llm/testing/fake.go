package testing

import (
	"context"
	"sync"
)

// FakeGenerator is an in-process text generator for tests. It returns
// Response (or Err) and records every prompt it receives.
type FakeGenerator struct {
	ModelName string
	Response  string
	Err       error

	mu      sync.Mutex
	prompts []string
}

// NewFakeGenerator returns a generator that always answers with response.
func NewFakeGenerator(response string) *FakeGenerator {
	return &FakeGenerator{ModelName: "fake-model", Response: response}
}

func (f *FakeGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()

	if f.Err != nil {
		return "", f.Err
	}
	return f.Response, nil
}

func (f *FakeGenerator) Model() string {
	return f.ModelName
}

// Prompts returns a copy of the prompts received so far.
func (f *FakeGenerator) Prompts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.prompts...)
}
