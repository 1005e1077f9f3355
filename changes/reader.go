package changes

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"

	"github.com/bpowers/ktme/internal/logging"
)

// DefaultMaxCommitRange caps how many commits a range read returns.
const DefaultMaxCommitRange = 100

// Reader reads change sets from one repository.
type Reader struct {
	repo          *git.Repository
	root          string
	maxRange      int
	includeMerges bool
	logger        *slog.Logger
}

type Option func(*Reader)

// WithMaxCommitRange bounds ReadRange. Non-positive values are ignored.
func WithMaxCommitRange(n int) Option {
	return func(r *Reader) {
		if n > 0 {
			r.maxRange = n
		}
	}
}

// WithMergeCommits includes merge commits in ReadRange results.
func WithMergeCommits(include bool) Option {
	return func(r *Reader) {
		r.includeMerges = include
	}
}

// Open opens the repository containing path, searching parent directories
// for the .git directory.
func Open(path string, opts ...Option) (*Reader, error) {
	repo, err := git.PlainOpenWithOptions(path, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, fmt.Errorf("open repository %s: %w", path, err)
	}

	r := &Reader{
		repo:     repo,
		maxRange: DefaultMaxCommitRange,
		logger:   logging.Logger().With("component", "changes"),
	}
	for _, opt := range opts {
		opt(r)
	}

	if wt, err := repo.Worktree(); err == nil {
		r.root = wt.Filesystem.Root()
	}

	return r, nil
}

// Root returns the repository's working tree root, or "" for a bare repository.
func (r *Reader) Root() string {
	return r.root
}

func (r *Reader) resolve(ref string) (*object.Commit, error) {
	hash, err := r.repo.ResolveRevision(plumbing.Revision(ref))
	if err != nil {
		return nil, fmt.Errorf("reference %q not found: %w", ref, err)
	}
	commit, err := r.repo.CommitObject(*hash)
	if err != nil {
		return nil, fmt.Errorf("load commit %s: %w", hash, err)
	}
	return commit, nil
}

// ReadCommit returns the changes a commit introduced relative to its first
// parent. A root commit is compared with the empty tree.
func (r *Reader) ReadCommit(ref string) (*Extracted, error) {
	r.logger.Info("reading commit", "ref", ref)

	commit, err := r.resolve(ref)
	if err != nil {
		return nil, err
	}
	return r.commitChanges(commit)
}

func (r *Reader) commitChanges(commit *object.Commit) (*Extracted, error) {
	tree, err := commit.Tree()
	if err != nil {
		return nil, fmt.Errorf("load tree for %s: %w", commit.Hash, err)
	}

	parentTree := &object.Tree{}
	if commit.NumParents() > 0 {
		parent, err := commit.Parent(0)
		if err != nil {
			return nil, fmt.Errorf("load parent of %s: %w", commit.Hash, err)
		}
		if parentTree, err = parent.Tree(); err != nil {
			return nil, fmt.Errorf("load tree for %s: %w", parent.Hash, err)
		}
	}

	p, err := parentTree.Patch(tree)
	if err != nil {
		return nil, fmt.Errorf("diff %s: %w", commit.Hash, err)
	}

	files, err := fileChanges(p.FilePatches())
	if err != nil {
		return nil, fmt.Errorf("render diff for %s: %w", commit.Hash, err)
	}

	e := &Extracted{
		Source:     "commit",
		Identifier: commit.Hash.String(),
		Timestamp:  commit.Author.When.UTC().Format(time.RFC3339),
		Author:     commit.Author.Name,
		Message:    commit.Message,
		Files:      files,
	}
	e.summarize()
	return e, nil
}

// ReadStaged returns the changes staged in the index relative to HEAD.
// In a repository without commits every staged file is an addition.
func (r *Reader) ReadStaged() (*Extracted, error) {
	r.logger.Info("reading staged changes")

	wt, err := r.repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("open worktree: %w", err)
	}
	status, err := wt.Status()
	if err != nil {
		return nil, fmt.Errorf("read status: %w", err)
	}

	var headTree *object.Tree
	if head, err := r.repo.Head(); err == nil {
		commit, err := r.repo.CommitObject(head.Hash())
		if err != nil {
			return nil, fmt.Errorf("load HEAD commit: %w", err)
		}
		if headTree, err = commit.Tree(); err != nil {
			return nil, fmt.Errorf("load HEAD tree: %w", err)
		}
	} else if !errors.Is(err, plumbing.ErrReferenceNotFound) {
		return nil, fmt.Errorf("resolve HEAD: %w", err)
	}

	idx, err := r.repo.Storer.Index()
	if err != nil {
		return nil, fmt.Errorf("read index: %w", err)
	}

	paths := make([]string, 0, len(status))
	for path, st := range status {
		if st.Staging == git.Unmodified || st.Staging == git.Untracked {
			continue
		}
		paths = append(paths, path)
	}
	sort.Strings(paths)

	var patches patch
	for _, path := range paths {
		var from, to *file
		var src, dst string

		if headTree != nil {
			if f, err := headTree.File(path); err == nil {
				from = &file{path: path, hash: f.Hash, mode: f.Mode}
				if src, err = f.Contents(); err != nil {
					return nil, fmt.Errorf("read %s at HEAD: %w", path, err)
				}
			} else if !errors.Is(err, object.ErrFileNotFound) {
				return nil, fmt.Errorf("lookup %s at HEAD: %w", path, err)
			}
		}

		if entry, err := idx.Entry(path); err == nil {
			to = &file{path: path, hash: entry.Hash, mode: entry.Mode}
			if dst, err = r.blobContents(entry.Hash); err != nil {
				return nil, fmt.Errorf("read staged %s: %w", path, err)
			}
		}

		if from == nil && to == nil {
			continue
		}
		patches = append(patches, newFilePatch(from, to, src, dst))
	}

	files, err := fileChanges(patches)
	if err != nil {
		return nil, fmt.Errorf("render staged diff: %w", err)
	}

	e := &Extracted{
		Source:     "staged",
		Identifier: "staged",
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		Author:     r.authorName(),
		Message:    "Staged changes",
		Files:      files,
	}
	e.summarize()
	return e, nil
}

func (r *Reader) blobContents(h plumbing.Hash) (string, error) {
	blob, err := r.repo.BlobObject(h)
	if err != nil {
		return "", err
	}
	rd, err := blob.Reader()
	if err != nil {
		return "", err
	}
	defer rd.Close()
	b, err := io.ReadAll(rd)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// authorName returns user.name from the local or global git config, or "Unknown".
func (r *Reader) authorName() string {
	cfg, err := r.repo.ConfigScoped(gitconfig.GlobalScope)
	if err != nil || cfg.User.Name == "" {
		return "Unknown"
	}
	return cfg.User.Name
}

// ReadRange reads every commit reachable from end back to, but excluding,
// start. rng has the form "start..end". Results are newest first.
func (r *Reader) ReadRange(rng string) ([]*Extracted, error) {
	r.logger.Info("reading commit range", "range", rng)

	start, end, ok := strings.Cut(rng, "..")
	if !ok || start == "" || end == "" || strings.Contains(end, "..") {
		return nil, fmt.Errorf("invalid range %q: use start..end", rng)
	}

	startCommit, err := r.resolve(start)
	if err != nil {
		return nil, err
	}
	endCommit, err := r.resolve(end)
	if err != nil {
		return nil, err
	}

	iter, err := r.repo.Log(&git.LogOptions{From: endCommit.Hash})
	if err != nil {
		return nil, fmt.Errorf("walk history from %s: %w", end, err)
	}
	defer iter.Close()

	var commits []*object.Commit
	found := false
	err = iter.ForEach(func(c *object.Commit) error {
		if c.Hash == startCommit.Hash {
			found = true
			return storer.ErrStop
		}
		if len(commits) >= r.maxRange {
			return fmt.Errorf("range %q exceeds %d commits", rng, r.maxRange)
		}
		if c.NumParents() > 1 && !r.includeMerges {
			return nil
		}
		commits = append(commits, c)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%s is not an ancestor of %s", start, end)
	}

	out := make([]*Extracted, 0, len(commits))
	for _, c := range commits {
		e, err := r.commitChanges(c)
		if err != nil {
			return nil, err
		}
		e.Source = "range"
		out = append(out, e)
	}
	return out, nil
}

// FileStatus is a path with its worktree status code.
type FileStatus struct {
	Path   string `json:"path"`
	Status string `json:"status"`
}

// Info summarizes the repository for display.
type Info struct {
	Root   string       `json:"path"`
	Branch string       `json:"branch"`
	Status []FileStatus `json:"status"`
}

// Info reports the worktree root, current branch and changed paths.
func (r *Reader) Info() (*Info, error) {
	info := &Info{Root: r.root, Branch: r.Branch()}

	wt, err := r.repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("open worktree: %w", err)
	}
	status, err := wt.Status()
	if err != nil {
		return nil, fmt.Errorf("read status: %w", err)
	}
	for path, st := range status {
		code := st.Staging
		if code == git.Unmodified {
			code = st.Worktree
		}
		if code == git.Unmodified {
			continue
		}
		info.Status = append(info.Status, FileStatus{Path: path, Status: string(code)})
	}
	sort.Slice(info.Status, func(i, j int) bool { return info.Status[i].Path < info.Status[j].Path })
	return info, nil
}

// Branch returns the current branch name, "HEAD" when detached, or "" when
// it cannot be determined.
func (r *Reader) Branch() string {
	ref, err := r.repo.Reference(plumbing.HEAD, false)
	if err != nil {
		return ""
	}
	if ref.Type() == plumbing.SymbolicReference {
		return ref.Target().Short()
	}
	return "HEAD"
}
