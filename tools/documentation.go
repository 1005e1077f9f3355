package tools

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/bpowers/ktme/changes"
	"github.com/bpowers/ktme/docs"
	"github.com/bpowers/ktme/persistence"
	"github.com/bpowers/ktme/schema"
)

const autoInitDescription = "Auto-initialized via MCP"

// ensureService creates service on first use.
func (s *Set) ensureService(service string) error {
	_, err := s.deps.Store.GetService(service)
	if err == nil {
		return nil
	}
	if !errors.Is(err, persistence.ErrNotFound) {
		return err
	}

	s.logger.Info("auto-initializing service", "service", service)
	_, err = s.deps.Store.CreateService(persistence.Service{Name: service, Description: autoInitDescription})
	if errors.Is(err, persistence.ErrExists) {
		return nil
	}
	return err
}

type generateRequest struct {
	Service string `json:"service"`
	Changes string `json:"changes"`
	Format  string `json:"format"`
}

func (s *Set) generateDocumentationTool() *typedTool[generateRequest] {
	return newTool("generate_documentation",
		"Generate documentation from code changes",
		schema.NewObject(
			schema.StringProp("service", "Service name", true),
			schema.StringProp("changes", "JSON string of extracted changes", true),
			schema.EnumProp("format", "Output format (markdown, json)", []string{docs.FormatMarkdown, docs.FormatJSON}, docs.FormatMarkdown),
		),
		func(ctx context.Context, req generateRequest) (string, error) {
			s.logger.Info("generate_documentation", "service", req.Service, "format", req.Format)

			res, _, err := s.generate(ctx, req.Service, req.Changes, req.Format)
			if err != nil {
				return "", err
			}
			return res.Content, nil
		})
}

// generate documents the serialized change set for service and records
// the generation.
func (s *Set) generate(ctx context.Context, service, text, format string) (docs.Result, *changes.Extracted, error) {
	if format == "" {
		format = s.deps.DefaultFormat
	}
	if err := s.ensureService(service); err != nil {
		return docs.Result{}, nil, err
	}

	ex, err := parseChanges(text)
	if err != nil {
		return docs.Result{}, nil, err
	}

	res, err := s.deps.Generator.Generate(ctx, service, ex, format)
	if err != nil {
		return docs.Result{}, nil, err
	}

	s.record(persistence.Generation{
		ServiceName: service,
		Source:      sourceLabel(ex),
		Format:      format,
		Provider:    res.Provider,
	})
	return res, ex, nil
}

func sourceLabel(ex *changes.Extracted) string {
	if ex.Identifier == "" || ex.Identifier == ex.Source {
		return ex.Source
	}
	return ex.Source + ":" + ex.Identifier
}

// record appends to the generation history. History is best effort and
// never fails the tool call.
func (s *Set) record(g persistence.Generation) {
	if _, err := s.deps.Store.RecordGeneration(g); err != nil {
		s.logger.Warn("failed to record generation", "service", g.ServiceName, "error", err)
	}
}

type updateRequest struct {
	Service string `json:"service"`
	DocPath string `json:"doc_path"`
	Content string `json:"content"`
}

func (s *Set) updateDocumentationTool() *typedTool[updateRequest] {
	return newTool("update_documentation",
		"Update existing documentation",
		schema.NewObject(
			schema.StringProp("service", "Service name", true),
			schema.StringProp("doc_path", "Path to documentation file", true),
			schema.StringProp("content", "Content to append/update", true),
		),
		func(ctx context.Context, req updateRequest) (string, error) {
			s.logger.Info("update_documentation", "service", req.Service, "doc_path", req.DocPath)

			if err := s.deps.Writer.Write(req.DocPath, req.Content); err != nil {
				return "", err
			}
			s.record(persistence.Generation{
				ServiceName: req.Service,
				Source:      "update",
				Format:      formatFromPath(req.DocPath),
				Provider:    "manual",
				Location:    req.DocPath,
			})
			return fmt.Sprintf("Documentation updated at %s", req.DocPath), nil
		})
}

func formatFromPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return docs.FormatJSON
	default:
		return docs.FormatMarkdown
	}
}

type workflowRequest struct {
	Service string `json:"service"`
	Source  string `json:"source"`
}

func (s *Set) workflowTool() *typedTool[workflowRequest] {
	return newTool("automated_documentation_workflow",
		"Automated workflow: extract changes → generate documentation → save to mapped location",
		schema.NewObject(
			schema.StringProp("service", "Service name", true),
			schema.StringProp("source", sourceDescription, true),
		),
		func(ctx context.Context, req workflowRequest) (string, error) {
			s.logger.Info("automated_documentation_workflow", "service", req.Service, "source", req.Source)

			text, err := s.readChanges(req.Source)
			if err != nil {
				return "", err
			}
			res, ex, err := s.generate(ctx, req.Service, text, docs.FormatMarkdown)
			if err != nil {
				return "", err
			}

			docsList, err := s.deps.Store.Documents(req.Service)
			if err != nil {
				return "", err
			}

			location, mapped := "", false
			for _, d := range docsList {
				if d.DocType == docs.FormatMarkdown {
					location, mapped = d.Location, true
					break
				}
			}
			if !mapped {
				location = filepath.Join(s.deps.TempDir, req.Service+"-documentation.md")
			}

			if err := s.deps.Writer.Write(location, res.Content); err != nil {
				return "", err
			}
			s.record(persistence.Generation{
				ServiceName: req.Service,
				Source:      sourceLabel(ex),
				Format:      docs.FormatMarkdown,
				Provider:    res.Provider,
				Location:    location,
			})

			var sb strings.Builder
			sb.WriteString("✓ Automated workflow completed!\n")
			fmt.Fprintf(&sb, "  ✓ Extracted changes from %s\n", req.Source)
			fmt.Fprintf(&sb, "  ✓ Generated documentation for %s\n", req.Service)
			if mapped {
				fmt.Fprintf(&sb, "  ✓ Saved to: %s\n", location)
			} else {
				fmt.Fprintf(&sb, "  ✓ Saved to: %s (no markdown mapping found)\n", location)
			}
			return sb.String(), nil
		})
}
