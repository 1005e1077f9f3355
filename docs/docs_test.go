package docs

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/psanford/memfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bpowers/ktme/changes"
	llmtesting "github.com/bpowers/ktme/llm/testing"
)

func sampleChanges() *changes.Extracted {
	return &changes.Extracted{
		Source:     "commit",
		Identifier: "abc1234",
		Timestamp:  "2024-05-01T12:00:00Z",
		Author:     "Ada",
		Message:    "Add refunds\n",
		Files: []changes.FileChange{
			{Path: "billing/refund.go", Status: changes.StatusAdded, Additions: 12, Diff: "+package billing\n"},
			{Path: "billing/charge.go", Status: changes.StatusModified, Additions: 2, Deletions: 1, Diff: "-a\n+b\n+c\n"},
		},
		Summary: changes.Summary{TotalFiles: 2, TotalAdditions: 14, TotalDeletions: 1},
	}
}

func TestRenderMarkdown(t *testing.T) {
	t.Parallel()

	out, err := Render("billing", sampleChanges(), FormatMarkdown)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(out, "# Documentation for billing\n"))
	assert.Contains(t, out, "**Author:** Ada\n")
	assert.Contains(t, out, "- 2 files changed\n- 14 additions\n- 1 deletions\n")
	assert.Contains(t, out, "- **billing/refund.go**: added (+12/-0)\n")
	assert.Contains(t, out, "### Commit Message\nAdd refunds\n")
}

func TestRenderJSON(t *testing.T) {
	t.Parallel()

	out, err := Render("billing", sampleChanges(), FormatJSON)
	require.NoError(t, err)

	var doc struct {
		Service string `json:"service"`
		Changes struct {
			Source  string               `json:"source"`
			Summary changes.Summary      `json:"summary"`
			Files   []changes.FileChange `json:"files"`
		} `json:"changes"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	assert.Equal(t, "billing", doc.Service)
	assert.Equal(t, "commit", doc.Changes.Source)
	assert.Equal(t, 14, doc.Changes.Summary.TotalAdditions)
	assert.Len(t, doc.Changes.Files, 2)
}

func TestRenderUnknownFormatIsMarkdown(t *testing.T) {
	t.Parallel()

	out, err := Render("billing", sampleChanges(), "rst")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "# Documentation for billing"))
	assert.False(t, ValidFormat("rst"))
	assert.True(t, ValidFormat(FormatJSON))
}

func TestBuildPrompt(t *testing.T) {
	t.Parallel()

	prompt := BuildPrompt(KindChangelog, "billing", sampleChanges(), FormatMarkdown)

	assert.Contains(t, prompt, "changelog")
	assert.Contains(t, prompt, "Service: billing\n")
	assert.Contains(t, prompt, "Commit: abc1234\n")
	assert.Contains(t, prompt, "Message: Add refunds\n")
	assert.Contains(t, prompt, "Files changed: 2 (+14/-1)\n")
	assert.Contains(t, prompt, "## File: billing/charge.go (modified)\n```\n-a\n+b\n+c\n```\n")
	assert.True(t, strings.HasSuffix(prompt, "Format the output as Markdown documentation."))
}

func TestGeneratorUsesModel(t *testing.T) {
	t.Parallel()

	fake := llmtesting.NewFakeGenerator("# Billing\nRefunds are here.")
	gen := NewGenerator(WithModel(fake))

	res, err := gen.Generate(t.Context(), "billing", sampleChanges(), FormatMarkdown)
	require.NoError(t, err)
	assert.Equal(t, "# Billing\nRefunds are here.", res.Content)
	assert.Equal(t, "fake-model", res.Provider)

	prompts := fake.Prompts()
	require.Len(t, prompts, 1)
	assert.Contains(t, prompts[0], "Service: billing")
}

func TestGeneratorFallsBackToBasic(t *testing.T) {
	t.Parallel()

	t.Run("no model", func(t *testing.T) {
		t.Parallel()
		res, err := NewGenerator().Generate(t.Context(), "billing", sampleChanges(), FormatMarkdown)
		require.NoError(t, err)
		assert.Equal(t, ProviderBasic, res.Provider)
		assert.Contains(t, res.Content, "# Documentation for billing")
	})

	t.Run("model error", func(t *testing.T) {
		t.Parallel()
		fake := llmtesting.NewFakeGenerator("")
		fake.Err = errors.New("rate limited")

		res, err := NewGenerator(WithModel(fake)).Generate(t.Context(), "billing", sampleChanges(), FormatJSON)
		require.NoError(t, err)
		assert.Equal(t, ProviderBasic, res.Provider)
		assert.True(t, json.Valid([]byte(res.Content)))
	})
}

func TestWriterMemFS(t *testing.T) {
	t.Parallel()

	fsys := memfs.New()
	w := NewWriter(fsys)

	require.NoError(t, w.Write("docs/services/billing.md", "# Billing\n"))
	got, err := w.Read("docs/services/billing.md")
	require.NoError(t, err)
	assert.Equal(t, "# Billing\n", got)

	require.NoError(t, w.Write("./docs/services/billing.md", "# Billing v2\n"))
	got, err = w.Read("docs/services/billing.md")
	require.NoError(t, err)
	assert.Equal(t, "# Billing v2\n", got)

	require.NoError(t, w.Write("top.md", "top"))
	got, err = w.Read("top.md")
	require.NoError(t, err)
	assert.Equal(t, "top", got)

	assert.Error(t, w.Write("", "x"))
}

func TestWriterOSFS(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	w := NewWriter(OSFS{Root: root})

	require.NoError(t, w.Write("nested/dir/api.md", "api"))
	data, err := os.ReadFile(filepath.Join(root, "nested", "dir", "api.md"))
	require.NoError(t, err)
	assert.Equal(t, "api", string(data))

	abs := filepath.Join(t.TempDir(), "abs.md")
	require.NoError(t, w.Write(abs, "absolute"))
	data, err = os.ReadFile(abs)
	require.NoError(t, err)
	assert.Equal(t, "absolute", string(data))
}
