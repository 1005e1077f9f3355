package changes

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testRepo struct {
	t    *testing.T
	dir  string
	repo *git.Repository
	wt   *git.Worktree
}

func newTestRepo(t *testing.T) *testRepo {
	t.Helper()
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)
	wt, err := repo.Worktree()
	require.NoError(t, err)
	return &testRepo{t: t, dir: dir, repo: repo, wt: wt}
}

func (r *testRepo) write(name, content string) {
	r.t.Helper()
	path := filepath.Join(r.dir, name)
	require.NoError(r.t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(r.t, os.WriteFile(path, []byte(content), 0o644))
}

func (r *testRepo) stage(name, content string) {
	r.t.Helper()
	r.write(name, content)
	_, err := r.wt.Add(name)
	require.NoError(r.t, err)
}

func (r *testRepo) commit(msg string) plumbing.Hash {
	r.t.Helper()
	h, err := r.wt.Commit(msg, &git.CommitOptions{
		Author: &object.Signature{Name: "Ada", Email: "ada@example.com", When: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)},
	})
	require.NoError(r.t, err)
	return h
}

func (r *testRepo) reader(opts ...Option) *Reader {
	r.t.Helper()
	rd, err := Open(r.dir, opts...)
	require.NoError(r.t, err)
	return rd
}

func TestReadCommitRoot(t *testing.T) {
	repo := newTestRepo(t)
	repo.stage("a.txt", "one\ntwo\n")
	hash := repo.commit("initial")

	e, err := repo.reader().ReadCommit("HEAD")
	require.NoError(t, err)

	assert.Equal(t, "commit", e.Source)
	assert.Equal(t, hash.String(), e.Identifier)
	assert.Equal(t, "Ada", e.Author)
	assert.Equal(t, "initial", e.Message)
	assert.Equal(t, "2024-05-01T12:00:00Z", e.Timestamp)

	require.Len(t, e.Files, 1)
	assert.Equal(t, "a.txt", e.Files[0].Path)
	assert.Equal(t, StatusAdded, e.Files[0].Status)
	assert.Equal(t, 2, e.Files[0].Additions)
	assert.Equal(t, 0, e.Files[0].Deletions)
	assert.Contains(t, e.Files[0].Diff, "+one")
	assert.Equal(t, Summary{TotalFiles: 1, TotalAdditions: 2}, e.Summary)
}

func TestReadCommitModified(t *testing.T) {
	repo := newTestRepo(t)
	repo.stage("a.txt", "one\ntwo\n")
	repo.stage("gone.txt", "bye\n")
	root := repo.commit("initial")

	repo.stage("a.txt", "one\nTWO\nthree\n")
	_, err := repo.wt.Remove("gone.txt")
	require.NoError(t, err)
	repo.commit("second")

	rd := repo.reader()
	e, err := rd.ReadCommit("HEAD")
	require.NoError(t, err)

	require.Len(t, e.Files, 2)
	byPath := map[string]FileChange{}
	for _, f := range e.Files {
		byPath[f.Path] = f
	}

	mod := byPath["a.txt"]
	assert.Equal(t, StatusModified, mod.Status)
	assert.Equal(t, 2, mod.Additions)
	assert.Equal(t, 1, mod.Deletions)
	assert.Contains(t, mod.Diff, "-two")
	assert.Contains(t, mod.Diff, "+TWO")

	del := byPath["gone.txt"]
	assert.Equal(t, StatusDeleted, del.Status)
	assert.Equal(t, 1, del.Deletions)

	assert.Equal(t, Summary{TotalFiles: 2, TotalAdditions: 2, TotalDeletions: 2}, e.Summary)

	prev, err := rd.ReadCommit("HEAD~1")
	require.NoError(t, err)
	assert.Equal(t, root.String(), prev.Identifier)

	abbrev, err := rd.ReadCommit(root.String()[:7])
	require.NoError(t, err)
	assert.Equal(t, root.String(), abbrev.Identifier)

	_, err = rd.ReadCommit("no-such-branch")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `reference "no-such-branch" not found`)
}

func TestReadStaged(t *testing.T) {
	repo := newTestRepo(t)
	repo.stage("a.txt", "one\ntwo\n")
	repo.stage("old.txt", "x\n")
	repo.commit("initial")

	repo.stage("a.txt", "one\ntwo\nthree\n")
	repo.stage("b.txt", "new\n")
	_, err := repo.wt.Remove("old.txt")
	require.NoError(t, err)
	repo.write("untracked.txt", "ignored\n")
	repo.write("a.txt", "unstaged edit\n")

	e, err := repo.reader().ReadStaged()
	require.NoError(t, err)

	assert.Equal(t, "staged", e.Source)
	assert.Equal(t, "staged", e.Identifier)
	require.Len(t, e.Files, 3)

	assert.Equal(t, "a.txt", e.Files[0].Path)
	assert.Equal(t, StatusModified, e.Files[0].Status)
	assert.Equal(t, 1, e.Files[0].Additions)
	assert.Equal(t, 0, e.Files[0].Deletions)
	assert.Contains(t, e.Files[0].Diff, "+three")
	assert.NotContains(t, e.Files[0].Diff, "unstaged")

	assert.Equal(t, "b.txt", e.Files[1].Path)
	assert.Equal(t, StatusAdded, e.Files[1].Status)

	assert.Equal(t, "old.txt", e.Files[2].Path)
	assert.Equal(t, StatusDeleted, e.Files[2].Status)
	assert.Equal(t, 1, e.Files[2].Deletions)
}

func TestReadStagedWithoutCommits(t *testing.T) {
	repo := newTestRepo(t)
	repo.stage("a.txt", "hello\n")

	e, err := repo.reader().ReadStaged()
	require.NoError(t, err)
	require.Len(t, e.Files, 1)
	assert.Equal(t, StatusAdded, e.Files[0].Status)
	assert.Equal(t, 1, e.Summary.TotalAdditions)
}

func TestReadRange(t *testing.T) {
	repo := newTestRepo(t)
	repo.stage("a.txt", "1\n")
	c1 := repo.commit("one")
	repo.stage("a.txt", "1\n2\n")
	c2 := repo.commit("two")
	repo.stage("a.txt", "1\n2\n3\n")
	c3 := repo.commit("three")

	diffs, err := repo.reader().ReadRange(c1.String() + ".." + c3.String())
	require.NoError(t, err)
	require.Len(t, diffs, 2)
	assert.Equal(t, c3.String(), diffs[0].Identifier)
	assert.Equal(t, c2.String(), diffs[1].Identifier)
	assert.Equal(t, "range", diffs[0].Source)

	_, err = repo.reader(WithMaxCommitRange(1)).ReadRange(c1.String() + "..HEAD")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds 1 commits")

	_, err = repo.reader().ReadRange(c3.String() + ".." + c1.String())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "is not an ancestor")

	for _, bad := range []string{"HEAD..", "..HEAD", "a..b..c"} {
		_, err = repo.reader().ReadRange(bad)
		require.Error(t, err, bad)
		assert.Contains(t, err.Error(), "invalid range")
	}
}

func TestInfo(t *testing.T) {
	repo := newTestRepo(t)
	repo.stage("a.txt", "1\n")
	repo.commit("one")
	repo.write("sub/new.txt", "x\n")

	rd, err := Open(filepath.Join(repo.dir, "sub"))
	require.NoError(t, err)
	assert.Equal(t, repo.dir, rd.Root())

	head, err := repo.repo.Head()
	require.NoError(t, err)
	assert.Equal(t, head.Name().Short(), rd.Branch())

	info, err := rd.Info()
	require.NoError(t, err)
	assert.Equal(t, repo.dir, info.Root)
	assert.Equal(t, []FileStatus{{Path: "sub/new.txt", Status: "?"}}, info.Status)
}

func TestOpenNotARepository(t *testing.T) {
	_, err := Open(t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open repository")
}
