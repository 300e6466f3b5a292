package gitrt

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeExecutor is a stub GitExecutor recording invocations and returning
// scripted responses, in the style of the teacher's localGitExecutor tests.
type fakeExecutor struct {
	responses map[string][]byte
	errs      map[string]error
	calls     [][]string
}

func newFakeExecutor() *fakeExecutor {
	return &fakeExecutor{responses: map[string][]byte{}, errs: map[string]error{}}
}

func (f *fakeExecutor) Git(_ context.Context, dir string, args ...string) ([]byte, error) {
	key := strings.Join(args, " ")
	f.calls = append(f.calls, args)
	return f.responses[key], f.errs[key]
}

func TestDeriveWorktreePath(t *testing.T) {
	a := New(newFakeExecutor(), "/tmp/worktrees")
	path, err := a.DeriveWorktreePath("/repos/myrepo", "T-001")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/tmp/worktrees", "myrepo", "T-001"), path)

	_, err = a.DeriveWorktreePath("relative/path", "T-001")
	assert.Error(t, err, "non-absolute repo path must be rejected")
}

func TestCreateWorktreeIdempotentWhenPathExists(t *testing.T) {
	repo := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(repo, ".git"), 0o755))
	worktree := t.TempDir()

	exec := newFakeExecutor()
	exec.responses["rev-parse --verify main"] = nil
	a := New(exec, "")

	path, err := a.CreateWorktree(context.Background(), repo, worktree, "task/t-001", "main")
	require.NoError(t, err)
	assert.Equal(t, worktree, path)

	for _, call := range exec.calls {
		assert.NotEqual(t, []string{"worktree", "add", worktree, "task/t-001"}, call,
			"must not attempt to create a worktree that already exists on disk")
	}
}

func TestGetBranchFromWorktreeParsesPorcelain(t *testing.T) {
	repo := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(repo, ".git"), 0o755))
	worktree := "/repos/worktrees/myrepo/T-001"

	exec := newFakeExecutor()
	exec.responses["worktree list --porcelain"] = []byte(
		"worktree /repos/myrepo\nbranch refs/heads/main\n\n" +
			"worktree " + worktree + "\nbranch refs/heads/task/t-001\n\n" +
			"worktree /repos/worktrees/myrepo/detached-one\ndetached\n\n")
	a := New(exec, "")

	branch, err := a.GetBranchFromWorktree(context.Background(), repo, worktree)
	require.NoError(t, err)
	assert.Equal(t, "task/t-001", branch)

	branch, err = a.GetBranchFromWorktree(context.Background(), repo, "/repos/worktrees/myrepo/detached-one")
	require.NoError(t, err)
	assert.Empty(t, branch, "detached worktree must report no branch")
}

func TestRemoveWorktreeToleratesMissingPath(t *testing.T) {
	repo := t.TempDir()
	a := New(newFakeExecutor(), "")
	err := a.RemoveWorktree(context.Background(), repo, filepath.Join(repo, "does-not-exist"), false, false)
	assert.NoError(t, err)
}
