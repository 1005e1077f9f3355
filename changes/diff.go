// Package changes extracts change sets from a git repository in the shape
// the documentation tools consume.
package changes

import (
	"bytes"
	"strings"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	fdiff "github.com/go-git/go-git/v5/plumbing/format/diff"
	"github.com/go-git/go-git/v5/utils/diff"
	"github.com/sergi/go-diff/diffmatchpatch"
)

// Extracted is one change set: a commit, or the staged index.
type Extracted struct {
	Source     string       `json:"source"`
	Identifier string       `json:"identifier"`
	Timestamp  string       `json:"timestamp"` // RFC 3339
	Author     string       `json:"author"`
	Message    string       `json:"message"`
	Files      []FileChange `json:"files"`
	Summary    Summary      `json:"summary"`
}

// FileChange describes the change to a single path.
type FileChange struct {
	Path      string `json:"path"`
	Status    string `json:"status"`
	Additions int    `json:"additions"`
	Deletions int    `json:"deletions"`
	Diff      string `json:"diff"`
}

type Summary struct {
	TotalFiles     int `json:"total_files"`
	TotalAdditions int `json:"total_additions"`
	TotalDeletions int `json:"total_deletions"`
}

const (
	StatusAdded    = "added"
	StatusModified = "modified"
	StatusDeleted  = "deleted"
	StatusRenamed  = "renamed"
)

// summarize fills in Summary from Files.
func (e *Extracted) summarize() {
	e.Summary = Summary{TotalFiles: len(e.Files)}
	for _, f := range e.Files {
		e.Summary.TotalAdditions += f.Additions
		e.Summary.TotalDeletions += f.Deletions
	}
}

// fileChanges converts file patches into FileChanges, rendering each one
// as a unified diff with the usual three lines of context.
func fileChanges(patches []fdiff.FilePatch) ([]FileChange, error) {
	out := make([]FileChange, 0, len(patches))
	for _, fp := range patches {
		from, to := fp.Files()

		fc := FileChange{}
		switch {
		case from == nil && to == nil:
			continue
		case from == nil:
			fc.Path, fc.Status = to.Path(), StatusAdded
		case to == nil:
			fc.Path, fc.Status = from.Path(), StatusDeleted
		case from.Path() != to.Path():
			fc.Path, fc.Status = to.Path(), StatusRenamed
		default:
			fc.Path, fc.Status = to.Path(), StatusModified
		}

		for _, c := range fp.Chunks() {
			switch c.Type() {
			case fdiff.Add:
				fc.Additions += countLines(c.Content())
			case fdiff.Delete:
				fc.Deletions += countLines(c.Content())
			}
		}

		var buf bytes.Buffer
		enc := fdiff.NewUnifiedEncoder(&buf, fdiff.DefaultContextLines)
		if err := enc.Encode(patch{fp}); err != nil {
			return nil, err
		}
		fc.Diff = buf.String()

		out = append(out, fc)
	}
	return out, nil
}

func countLines(s string) int {
	if s == "" {
		return 0
	}
	n := strings.Count(s, "\n")
	if !strings.HasSuffix(s, "\n") {
		n++
	}
	return n
}

// The types below implement the go-git diff interfaces for content that
// does not come from two trees, such as the staged index.

type patch []fdiff.FilePatch

func (p patch) FilePatches() []fdiff.FilePatch { return p }
func (p patch) Message() string { return "" }

type file struct {
	path string
	hash plumbing.Hash
	mode filemode.FileMode
}

func (f file) Hash() plumbing.Hash { return f.hash }
func (f file) Mode() filemode.FileMode { return f.mode }
func (f file) Path() string { return f.path }

type chunk struct {
	content string
	op      fdiff.Operation
}

func (c chunk) Content() string { return c.content }
func (c chunk) Type() fdiff.Operation { return c.op }

type filePatch struct {
	from, to fdiff.File
	binary   bool
	chunks   []fdiff.Chunk
}

func (p filePatch) IsBinary() bool { return p.binary }
func (p filePatch) Files() (fdiff.File, fdiff.File) { return p.from, p.to }
func (p filePatch) Chunks() []fdiff.Chunk { return p.chunks }

// newFilePatch line-diffs two blobs. A nil side means the file does not
// exist there.
func newFilePatch(from, to *file, src, dst string) fdiff.FilePatch {
	fp := filePatch{}
	if from != nil {
		fp.from = *from
	}
	if to != nil {
		fp.to = *to
	}
	if isBinary(src) || isBinary(dst) {
		fp.binary = true
		return fp
	}

	for _, d := range diff.Do(src, dst) {
		if d.Text == "" {
			continue
		}
		var op fdiff.Operation
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			op = fdiff.Add
		case diffmatchpatch.DiffDelete:
			op = fdiff.Delete
		default:
			op = fdiff.Equal
		}
		fp.chunks = append(fp.chunks, chunk{content: d.Text, op: op})
	}
	return fp
}

// isBinary mirrors git's heuristic: a NUL in the first 8000 bytes.
func isBinary(s string) bool {
	if len(s) > 8000 {
		s = s[:8000]
	}
	return strings.IndexByte(s, 0) >= 0
}

// Combine folds the change sets of a range into one, newest first, so a
// range can be documented as a single unit.
func Combine(identifier string, sets []*Extracted) *Extracted {
	out := &Extracted{
		Source:     "range",
		Identifier: identifier,
		Files:      []FileChange{},
	}
	var messages []string
	for _, s := range sets {
		if out.Timestamp == "" {
			out.Timestamp = s.Timestamp
			out.Author = s.Author
		}
		messages = append(messages, strings.TrimSpace(s.Message))
		out.Files = append(out.Files, s.Files...)
	}
	out.Message = strings.Join(messages, "\n\n")
	out.summarize()
	return out
}
