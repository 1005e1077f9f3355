// Package docs turns extracted change sets into documentation and writes
// it to disk.
package docs

import (
	"context"
	"log/slog"

	"github.com/bpowers/ktme/changes"
	"github.com/bpowers/ktme/internal/logging"
	"github.com/bpowers/ktme/llm"
)

// ProviderBasic is reported when documentation was rendered without a model.
const ProviderBasic = "basic"

// Generator writes documentation with a model when one is configured and
// falls back to deterministic rendering otherwise.
type Generator struct {
	model  llm.Generator
	kind   Kind
	logger *slog.Logger
}

type GeneratorOption func(*Generator)

// WithModel sets the text generator. A nil generator selects basic rendering.
func WithModel(g llm.Generator) GeneratorOption {
	return func(gen *Generator) {
		gen.model = g
	}
}

func WithKind(kind Kind) GeneratorOption {
	return func(gen *Generator) {
		gen.kind = kind
	}
}

func WithLogger(logger *slog.Logger) GeneratorOption {
	return func(gen *Generator) {
		gen.logger = logger
	}
}

func NewGenerator(opts ...GeneratorOption) *Generator {
	g := &Generator{
		kind:   KindGeneral,
		logger: logging.Logger(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Result is generated documentation and the provider that produced it.
type Result struct {
	Content  string
	Provider string
}

// Generate documents ex for service. Model failures are logged and the
// basic renderer is used instead, so a flaky backend never blocks a write.
func (g *Generator) Generate(ctx context.Context, service string, ex *changes.Extracted, format string) (Result, error) {
	if g.model != nil {
		prompt := BuildPrompt(g.kind, service, ex, format)
		text, err := g.model.Generate(ctx, prompt)
		if err == nil {
			return Result{Content: text, Provider: g.model.Model()}, nil
		}
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		g.logger.Warn("model generation failed, using basic documentation",
			"service", service, "model", g.model.Model(), "error", err)
	}

	content, err := Render(service, ex, format)
	if err != nil {
		return Result{}, err
	}
	return Result{Content: content, Provider: ProviderBasic}, nil
}

// Model returns the configured text generator, or nil.
func (g *Generator) Model() llm.Generator {
	return g.model
}
