package docs

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/bpowers/ktme/changes"
)

const (
	FormatMarkdown = "markdown"
	FormatJSON     = "json"
)

// ValidFormat reports whether format is one the renderer understands.
func ValidFormat(format string) bool {
	return format == FormatMarkdown || format == FormatJSON
}

// Render produces documentation for ex without a model. Unknown formats
// render as markdown.
func Render(service string, ex *changes.Extracted, format string) (string, error) {
	if format == FormatJSON {
		return renderJSON(service, ex)
	}
	return renderMarkdown(service, ex), nil
}

type jsonDoc struct {
	Service string      `json:"service"`
	Changes jsonChanges `json:"changes"`
}

type jsonChanges struct {
	Source    string               `json:"source"`
	Author    string               `json:"author"`
	Timestamp string               `json:"timestamp"`
	Message   string               `json:"message"`
	Summary   changes.Summary      `json:"summary"`
	Files     []changes.FileChange `json:"files"`
}

func renderJSON(service string, ex *changes.Extracted) (string, error) {
	doc := jsonDoc{
		Service: service,
		Changes: jsonChanges{
			Source:    ex.Source,
			Author:    ex.Author,
			Timestamp: ex.Timestamp,
			Message:   ex.Message,
			Summary:   ex.Summary,
			Files:     ex.Files,
		},
	}
	if doc.Changes.Files == nil {
		doc.Changes.Files = []changes.FileChange{}
	}
	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal documentation: %w", err)
	}
	return string(out), nil
}

func renderMarkdown(service string, ex *changes.Extracted) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "# Documentation for %s\n\n", service)
	sb.WriteString("## Changes\n\n")
	fmt.Fprintf(&sb, "**Source:** %s\n", ex.Source)
	fmt.Fprintf(&sb, "**Author:** %s\n", ex.Author)
	fmt.Fprintf(&sb, "**Timestamp:** %s\n\n", ex.Timestamp)

	sb.WriteString("### Summary\n")
	fmt.Fprintf(&sb, "- %d files changed\n", ex.Summary.TotalFiles)
	fmt.Fprintf(&sb, "- %d additions\n", ex.Summary.TotalAdditions)
	fmt.Fprintf(&sb, "- %d deletions\n\n", ex.Summary.TotalDeletions)

	sb.WriteString("### Files Modified\n")
	for _, f := range ex.Files {
		fmt.Fprintf(&sb, "- **%s**: %s (+%d/-%d)\n", f.Path, f.Status, f.Additions, f.Deletions)
	}

	sb.WriteString("\n### Commit Message\n")
	sb.WriteString(strings.TrimSpace(ex.Message))
	sb.WriteString("\n\n### Technical Details\n\n")
	sb.WriteString("> **Note**: This is basic documentation. Configure an AI model (for example with ANTHROPIC_API_KEY or OPENAI_API_KEY) for generated documentation.\n")

	return sb.String()
}
