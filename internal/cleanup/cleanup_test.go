package cleanup

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nelsonpires5/sisifo/internal/containerrt"
	"github.com/nelsonpires5/sisifo/internal/core"
	"github.com/nelsonpires5/sisifo/internal/gitrt"
	"github.com/nelsonpires5/sisifo/internal/paths"
	"github.com/nelsonpires5/sisifo/internal/store"
)

type fakeGitExecutor struct{ removed []string }

func (f *fakeGitExecutor) Git(_ context.Context, _ string, args ...string) ([]byte, error) {
	joined := strings.Join(args, " ")
	if strings.HasPrefix(joined, "worktree remove") {
		f.removed = append(f.removed, joined)
	}
	return nil, nil
}

type fakeDockerExecutor struct{ removed []string }

func (f *fakeDockerExecutor) Docker(_ context.Context, args ...string) ([]byte, error) {
	joined := strings.Join(args, " ")
	switch {
	case strings.HasPrefix(joined, "ps -a"):
		return []byte("task-done1-20260101000000\n"), nil
	case strings.HasPrefix(joined, "rm"):
		f.removed = append(f.removed, joined)
		return nil, nil
	}
	return nil, nil
}

func TestOneRemovesContainersWorktreeErrorFileAndSandboxThenClearsRecord(t *testing.T) {
	root := t.TempDir()
	layout := paths.New(filepath.Join(root, "queue"))
	require.NoError(t, layout.EnsureQueueDirs())

	st := store.New(layout.TasksFile())

	worktree := t.TempDir()
	errFile := filepath.Join(root, "queue", "errors", "done1-1.md")
	require.NoError(t, os.WriteFile(errFile, []byte("report"), 0o644))

	sandboxDir := layout.AttemptConfigDir("done1", 0)
	require.NoError(t, os.MkdirAll(sandboxDir, 0o755))

	record := &core.TaskRecord{
		ID: "done1", Repo: "/repo", Base: "main", Status: core.StatusDone,
		Branch: "sisifo/done1", WorktreePath: worktree, Container: "containerid123",
		Port: 30001, ErrorFile: errFile, OpencodeConfigDir: sandboxDir,
		CreatedAt: "2026-01-01T00:00:00Z", UpdatedAt: "2026-01-01T00:00:00Z",
	}
	require.NoError(t, st.Add(record))

	dockerFake := &fakeDockerExecutor{}
	gitFake := &fakeGitExecutor{}
	containers := containerrt.New(dockerFake)
	git := gitrt.New(gitFake, "")
	runner := New(st, layout, git, containers)

	warnings := runner.One(context.Background(), record, false)
	assert.Empty(t, warnings)

	assert.Len(t, gitFake.removed, 1)
	assert.Len(t, dockerFake.removed, 1)
	assert.NoFileExists(t, errFile)
	assert.NoDirExists(t, layout.TaskOpencodeDir("done1"))

	final, err := st.Get("done1")
	require.NoError(t, err)
	assert.Empty(t, final.Container)
	assert.Zero(t, final.Port)
	assert.Empty(t, final.ErrorFile)
	assert.Empty(t, final.OpencodeConfigDir)
	assert.Empty(t, final.WorktreePath)
}

func TestOneKeepWorktreeSkipsRemoval(t *testing.T) {
	root := t.TempDir()
	layout := paths.New(filepath.Join(root, "queue"))
	require.NoError(t, layout.EnsureQueueDirs())
	st := store.New(layout.TasksFile())

	worktree := t.TempDir()
	record := &core.TaskRecord{
		ID: "done2", Repo: "/repo", Base: "main", Status: core.StatusDone,
		WorktreePath: worktree, CreatedAt: "2026-01-01T00:00:00Z", UpdatedAt: "2026-01-01T00:00:00Z",
	}
	require.NoError(t, st.Add(record))

	dockerFake := &fakeDockerExecutor{}
	gitFake := &fakeGitExecutor{}
	containers := containerrt.New(dockerFake)
	git := gitrt.New(gitFake, "")
	runner := New(st, layout, git, containers)

	warnings := runner.One(context.Background(), record, true)
	assert.Empty(t, warnings)
	assert.Empty(t, gitFake.removed)
}

func TestSweepOnlyTouchesMatchingStatuses(t *testing.T) {
	root := t.TempDir()
	layout := paths.New(filepath.Join(root, "queue"))
	require.NoError(t, layout.EnsureQueueDirs())
	st := store.New(layout.TasksFile())

	done := &core.TaskRecord{ID: "d1", Repo: "/repo", Base: "main", Status: core.StatusDone, CreatedAt: "2026-01-01T00:00:00Z", UpdatedAt: "2026-01-01T00:00:00Z"}
	todo := &core.TaskRecord{ID: "t1", Repo: "/repo", Base: "main", Status: core.StatusTodo, CreatedAt: "2026-01-01T00:00:00Z", UpdatedAt: "2026-01-01T00:00:00Z"}
	require.NoError(t, st.Add(done))
	require.NoError(t, st.Add(todo))

	containers := containerrt.New(&fakeDockerExecutor{})
	git := gitrt.New(&fakeGitExecutor{}, "")
	runner := New(st, layout, git, containers)

	_, err := runner.Sweep(context.Background(), []core.Status{core.StatusDone}, true)
	require.NoError(t, err)

	untouchedTodo, err := st.Get("t1")
	require.NoError(t, err)
	assert.Equal(t, core.StatusTodo, untouchedTodo.Status)
}
