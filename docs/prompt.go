package docs

import (
	"fmt"
	"strings"

	"github.com/bpowers/ktme/changes"
)

// Kind selects the style of documentation a prompt asks for.
type Kind string

const (
	KindGeneral   Kind = "general"
	KindChangelog Kind = "changelog"
	KindAPI       Kind = "api-doc"
	KindReadme    Kind = "readme"
)

const generalInstructions = `You are a technical documentation specialist. Based on the provided Git diff, generate clear, comprehensive documentation that explains:

1. What changed in the code
2. Why these changes were made
3. How the changes affect users or other developers
4. Any important implementation details

Requirements:
- Be clear and concise
- Focus on the user/developer perspective
- Include relevant code examples
- Explain any breaking changes
- Use proper formatting with headers and code blocks`

const changelogInstructions = `You are a technical writer generating changelog entries. Based on the provided Git diff, create a clear, concise changelog entry with "Added", "Changed", "Fixed" and "Removed" sections.

Guidelines:
- Use present tense ("Adds support for..." not "Added support for...")
- Focus on user impact, not implementation details
- Group related changes together
- Use bullet points with hyphens`

const apiInstructions = `You are a technical writer documenting API changes. Based on the provided Git diff, update the API documentation: give an overview, describe what changed, and document every new or modified endpoint with its parameters, response shape and an example request. Note any breaking changes.`

const readmeInstructions = `You are a technical writer updating README documentation. Based on the provided Git diff, update the README to reflect the changes. Cover feature descriptions, new setup requirements, usage examples, new configuration settings and migration notes for breaking changes.`

func instructions(kind Kind) string {
	switch kind {
	case KindChangelog:
		return changelogInstructions
	case KindAPI:
		return apiInstructions
	case KindReadme:
		return readmeInstructions
	default:
		return generalInstructions
	}
}

// BuildPrompt assembles the model prompt for documenting ex on behalf of
// service, rendered in the given output format.
func BuildPrompt(kind Kind, service string, ex *changes.Extracted, format string) string {
	var sb strings.Builder

	sb.WriteString(instructions(kind))
	sb.WriteString("\n\n")
	fmt.Fprintf(&sb, "Service: %s\n", service)
	fmt.Fprintf(&sb, "Commit: %s\nAuthor: %s\nTimestamp: %s\nMessage: %s\n",
		ex.Identifier, ex.Author, ex.Timestamp, strings.TrimSpace(ex.Message))
	fmt.Fprintf(&sb, "Files changed: %d (+%d/-%d)\n",
		ex.Summary.TotalFiles, ex.Summary.TotalAdditions, ex.Summary.TotalDeletions)

	for _, f := range ex.Files {
		fmt.Fprintf(&sb, "  - %s: %s (+%d/-%d)\n", f.Path, f.Status, f.Additions, f.Deletions)
	}

	sb.WriteString("\nChanges:\n")
	for _, f := range ex.Files {
		fmt.Fprintf(&sb, "\n## File: %s (%s)\n```\n%s\n```\n", f.Path, f.Status, strings.TrimRight(f.Diff, "\n"))
	}

	fmt.Fprintf(&sb, "\nFormat the output as %s documentation.", formatName(format))
	return sb.String()
}

func formatName(format string) string {
	if format == FormatJSON {
		return "JSON"
	}
	return "Markdown"
}
