package tools

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/bpowers/ktme/changes"
	"github.com/bpowers/ktme/docs"
	"github.com/bpowers/ktme/internal/logging"
	"github.com/bpowers/ktme/mcp"
	"github.com/bpowers/ktme/persistence"
)

// Deps are the collaborators the tools share.
type Deps struct {
	Store     persistence.Store
	Generator *docs.Generator
	Writer    *docs.Writer

	// WorkDir is the directory git sources, diff files and service
	// detection are resolved against. Empty means the process working
	// directory.
	WorkDir string
	// TempDir receives workflow output for services without a markdown mapping.
	TempDir       string
	DefaultFormat string
	GitOptions    []changes.Option

	Logger *slog.Logger
}

// Set holds the tool implementations bound to one set of dependencies.
type Set struct {
	deps   Deps
	logger *slog.Logger
}

// New validates deps and fills in defaults.
func New(deps Deps) (*Set, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("tools: store is required")
	}
	if deps.Writer == nil {
		return nil, fmt.Errorf("tools: writer is required")
	}
	if deps.Generator == nil {
		deps.Generator = docs.NewGenerator()
	}
	if deps.WorkDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("tools: get working directory: %w", err)
		}
		deps.WorkDir = wd
	}
	if deps.TempDir == "" {
		deps.TempDir = os.TempDir()
	}
	if deps.DefaultFormat == "" {
		deps.DefaultFormat = docs.FormatMarkdown
	}
	logger := deps.Logger
	if logger == nil {
		logger = logging.Logger()
	}

	return &Set{deps: deps, logger: logger.With("component", "tools")}, nil
}

// Tools returns the catalog in registration order.
func (s *Set) Tools() []mcp.Tool {
	return []mcp.Tool{
		s.readChangesTool(),
		s.getServiceMappingTool(),
		s.listServicesTool(),
		s.generateDocumentationTool(),
		s.updateDocumentationTool(),
		s.searchServicesTool(),
		s.searchByFeatureTool(),
		s.searchByKeywordTool(),
		s.workflowTool(),
		s.detectServiceNameTool(),
		s.repositoryInfoTool(),
	}
}

// Register adds every tool to registry.
func (s *Set) Register(registry *mcp.Registry) error {
	for _, tool := range s.Tools() {
		if err := registry.Register(tool); err != nil {
			return err
		}
	}
	return nil
}

// NewRegistry builds a registry holding the full catalog.
func NewRegistry(deps Deps) (*mcp.Registry, error) {
	set, err := New(deps)
	if err != nil {
		return nil, err
	}
	registry := mcp.NewRegistry()
	if err := set.Register(registry); err != nil {
		return nil, err
	}
	return registry, nil
}
