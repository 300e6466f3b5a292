package taskfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFrontmatterLenientNoHeader(t *testing.T) {
	data, body, err := ParseFrontmatterLenient("just a body, no header\n")
	require.NoError(t, err)
	assert.Empty(t, data)
	assert.Equal(t, "just a body, no header\n", body)
}

func TestParseFrontmatterStrictRequiresHeader(t *testing.T) {
	_, _, err := ParseFrontmatter("no header here")
	require.Error(t, err)
}

func TestCreateCanonicalTaskFileKeyOrder(t *testing.T) {
	repoDir := t.TempDir()
	content, err := CreateCanonicalTaskFile("T-001", repoDir, "do the thing", "main", "task/t-001", "/tmp/wt")
	require.NoError(t, err)

	idIdx := indexOf(t, content, "id:")
	repoIdx := indexOf(t, content, "repo:")
	baseIdx := indexOf(t, content, "base:")
	branchIdx := indexOf(t, content, "branch:")
	wtIdx := indexOf(t, content, "worktree_path:")
	assert.True(t, idIdx < repoIdx)
	assert.True(t, repoIdx < baseIdx)
	assert.True(t, baseIdx < branchIdx)
	assert.True(t, branchIdx < wtIdx)
	assert.Contains(t, content, "do the thing")
}

func TestWriteTaskFileRejectsIDMismatch(t *testing.T) {
	repoDir := t.TempDir()
	tasksDir := t.TempDir()
	content, err := CreateCanonicalTaskFile("T-001", repoDir, "body", "main", "", "")
	require.NoError(t, err)

	_, err = WriteTaskFile("T-002", content, tasksDir)
	require.Error(t, err)
}

func TestNormalizeFromFileDerivesIDFromFilename(t *testing.T) {
	repoDir := t.TempDir()
	tasksDir := t.TempDir()
	src := filepath.Join(t.TempDir(), "hello world task.md")
	require.NoError(t, os.WriteFile(src, []byte("plain body, no frontmatter"), 0o644))

	path, err := NormalizeFromFile(src, "", repoDir, "", "", "", tasksDir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(tasksDir, "T-HELLO-WORLD-TASK.md"), path)

	fm, body, err := ReadTaskFile("T-HELLO-WORLD-TASK", tasksDir)
	require.NoError(t, err)
	assert.Equal(t, "T-HELLO-WORLD-TASK", fm.ID)
	assert.Contains(t, body, "plain body")
}

func indexOf(t *testing.T, s, sub string) int {
	t.Helper()
	i := -1
	for off := 0; off+len(sub) <= len(s); off++ {
		if s[off:off+len(sub)] == sub {
			i = off
			break
		}
	}
	require.NotEqual(t, -1, i, "expected %q to contain %q", s, sub)
	return i
}
