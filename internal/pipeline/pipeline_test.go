package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nelsonpires5/sisifo/internal/agent"
	"github.com/nelsonpires5/sisifo/internal/containerrt"
	"github.com/nelsonpires5/sisifo/internal/core"
	"github.com/nelsonpires5/sisifo/internal/gitrt"
	"github.com/nelsonpires5/sisifo/internal/paths"
	"github.com/nelsonpires5/sisifo/internal/store"
)

type fakeGitExecutor struct{}

func (fakeGitExecutor) Git(_ context.Context, dir string, args ...string) ([]byte, error) {
	if len(args) > 0 && args[0] == "rev-parse" {
		return nil, nil // every branch "exists"
	}
	return nil, nil
}

type fakeDockerExecutor struct{ planStderr string }

func (f fakeDockerExecutor) Docker(_ context.Context, args ...string) ([]byte, error) {
	joined := strings.Join(args, " ")
	switch {
	case strings.HasPrefix(joined, "run"):
		return []byte("containerid123\n"), nil
	case strings.HasPrefix(joined, "inspect"):
		return []byte("containerid123\t/task-x\trunning\t0\t111\ttrue\n"), nil
	case strings.HasPrefix(joined, "ps --filter publish"):
		return []byte("containerid123\n"), nil
	case strings.HasPrefix(joined, "ps -a"):
		return []byte(""), nil
	}
	return nil, nil
}

type fakeAgentExecer struct{ planStderr string }

func (f fakeAgentExecer) Exec(_ context.Context, _ string, args []string) (string, string, int, error) {
	for _, a := range args {
		if a == "make-plan-sisifo" {
			return "planned", f.planStderr, 0, nil
		}
	}
	return "built", "", 0, nil
}

func setupTestProcessor(t *testing.T, planStderr string) (*Processor, *store.Store, *paths.Layout, string, string) {
	t.Helper()
	root := t.TempDir()
	layout := paths.New(filepath.Join(root, "queue"))
	require.NoError(t, layout.EnsureQueueDirs())

	st := store.New(layout.TasksFile())

	repo := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(repo, ".git"), 0o755))
	worktree := t.TempDir() // pretend it's already checked out

	taskFilePath := layout.TaskFilePath("T-001")
	require.NoError(t, os.WriteFile(taskFilePath, []byte("---\nid: T-001\nrepo: "+repo+"\nbase: main\n---\ndo the thing\n"), 0o644))

	dockerExec := fakeDockerExecutor{planStderr: planStderr}
	containers := containerrt.New(dockerExec)
	git := gitrt.New(fakeGitExecutor{}, "")
	ag := agent.New(fakeAgentExecer{planStderr: planStderr}, containers)

	proc := New(Config{DockerImage: "sisifo/opencode:latest", DirtyRun: true, SessionID: "sess-1"}, st, layout, git, containers, ag)
	return proc, st, layout, repo, worktree
}

func TestProcessHappyPathReachesReview(t *testing.T) {
	proc, st, _, repo, worktree := setupTestProcessor(t, "")

	record := &core.TaskRecord{
		ID: "T-001", Repo: repo, Base: "main", TaskFile: filepath.Join(proc.layout.TasksDir(), "T-001.md"),
		Status: core.StatusTodo, WorktreePath: worktree,
		CreatedAt: "2026-01-01T00:00:00Z", UpdatedAt: "2026-01-01T00:00:00Z",
	}
	require.NoError(t, st.Add(record))

	claimed, err := st.ClaimFirstTodo()
	require.NoError(t, err)
	require.NotNil(t, claimed)

	err = proc.Process(context.Background(), claimed)
	require.NoError(t, err)

	final, err := st.Get("T-001")
	require.NoError(t, err)
	assert.Equal(t, core.StatusReview, final.Status)
	assert.Equal(t, "containerid123", final.Container)
	assert.Greater(t, final.Port, 0)
	assert.NotEmpty(t, final.OpencodeConfigDir)
	assert.NotEmpty(t, final.OpencodeDataDir)
}

func TestProcessPlanFailureEndsInFailedWithReport(t *testing.T) {
	proc, st, layout, repo, worktree := setupTestProcessor(t, "error: cannot plan")

	record := &core.TaskRecord{
		ID: "T-002", Repo: repo, Base: "main", TaskFile: filepath.Join(layout.TasksDir(), "T-002.md"),
		Status: core.StatusTodo, WorktreePath: worktree,
		CreatedAt: "2026-01-01T00:00:00Z", UpdatedAt: "2026-01-01T00:00:00Z",
	}
	require.NoError(t, os.WriteFile(record.TaskFile, []byte("---\nid: T-002\nrepo: "+repo+"\nbase: main\n---\ndo the thing\n"), 0o644))
	require.NoError(t, st.Add(record))

	claimed, err := st.ClaimFirstTodo()
	require.NoError(t, err)

	_ = proc.Process(context.Background(), claimed)

	final, err := st.Get("T-002")
	require.NoError(t, err)
	assert.Equal(t, core.StatusFailed, final.Status)
	assert.Contains(t, final.ErrorFile, "T-002-")

	data, err := os.ReadFile(final.ErrorFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "planning")

	// By default (cleanup-on-fail not set), worktree and container are preserved.
	assert.DirExists(t, worktree)
}
