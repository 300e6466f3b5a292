// Package gitrt is the git adapter of spec.md §4.3: worktree and branch
// lifecycle management by shelling out to the git CLI. The GitExecutor
// abstraction mirrors the teacher's worktree.go so the adapter and the
// pipeline that depends on it are testable without a real git binary.
package gitrt

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/nelsonpires5/sisifo/internal/core"
)

// GitExecutor abstracts running a git command in a working directory.
type GitExecutor interface {
	Git(ctx context.Context, dir string, args ...string) ([]byte, error)
}

// localGitExecutor runs git commands on the host via os/exec.
type localGitExecutor struct{}

// NewLocalExecutor returns a GitExecutor that shells out to the real git
// binary on the host.
func NewLocalExecutor() GitExecutor { return &localGitExecutor{} }

func (e *localGitExecutor) Git(ctx context.Context, dir string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	return cmd.CombinedOutput()
}

// Adapter is the git adapter. It is stateless beyond its executor and a
// default worktrees root.
type Adapter struct {
	git            GitExecutor
	worktreesRoot  string
	shortTimeout   time.Duration
	mediumTimeout  time.Duration
}

// New returns an Adapter. worktreesRoot defaults to ~/documents/repos/worktrees
// when empty, matching original_source's derive_worktree_path default.
func New(git GitExecutor, worktreesRoot string) *Adapter {
	return &Adapter{
		git:           git,
		worktreesRoot: worktreesRoot,
		shortTimeout:  10 * time.Second,
		mediumTimeout: 30 * time.Second,
	}
}

func defaultWorktreesRoot() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "worktrees")
	}
	return filepath.Join(home, "documents", "repos", "worktrees")
}

// DeriveWorktreePath is a pure function: <root>/<repoName>/<id>.
func (a *Adapter) DeriveWorktreePath(repoPath, taskID string) (string, error) {
	if !filepath.IsAbs(repoPath) {
		return "", fmt.Errorf("gitrt: repoPath must be absolute, got %q", repoPath)
	}
	if taskID == "" {
		return "", fmt.Errorf("gitrt: taskID must not be empty")
	}
	root := a.worktreesRoot
	if root == "" {
		root = defaultWorktreesRoot()
	}
	resolved, err := filepath.Abs(repoPath)
	if err != nil {
		return "", err
	}
	repoName := filepath.Base(resolved)
	return filepath.Join(root, repoName, taskID), nil
}

// RepoExists checks for a .git subtree under repoPath.
func RepoExists(repoPath string) bool {
	fi, err := os.Stat(filepath.Join(repoPath, ".git"))
	return err == nil && (fi.IsDir() || fi.Mode().IsRegular())
}

func (a *Adapter) ensureRepoExists(repoPath string) error {
	if !RepoExists(repoPath) {
		return &core.Error{Kind: core.KindRepoNotFound, Message: fmt.Sprintf("no git repository at %s", repoPath)}
	}
	return nil
}

// BranchExists runs `git rev-parse --verify <branch>`.
func (a *Adapter) BranchExists(ctx context.Context, repoPath, branch string) (bool, error) {
	if err := a.ensureRepoExists(repoPath); err != nil {
		return false, err
	}
	ctx, cancel := context.WithTimeout(ctx, a.shortTimeout)
	defer cancel()
	_, err := a.git.Git(ctx, repoPath, "rev-parse", "--verify", branch)
	return err == nil, nil
}

func (a *Adapter) ensureBranchExists(ctx context.Context, repoPath, branch string) error {
	ok, err := a.BranchExists(ctx, repoPath, branch)
	if err != nil {
		return err
	}
	if !ok {
		return &core.Error{Kind: core.KindBranchNotFound, Message: fmt.Sprintf("branch %q does not exist in %s", branch, repoPath)}
	}
	return nil
}

// CreateBranch creates newBranch from base if it doesn't already exist
// (idempotent). Fails if base does not exist.
func (a *Adapter) CreateBranch(ctx context.Context, repoPath, newBranch, base string) error {
	if err := a.ensureRepoExists(repoPath); err != nil {
		return err
	}
	if err := a.ensureBranchExists(ctx, repoPath, base); err != nil {
		return err
	}
	exists, err := a.BranchExists(ctx, repoPath, newBranch)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	cctx, cancel := context.WithTimeout(ctx, a.mediumTimeout)
	defer cancel()
	out, err := a.git.Git(cctx, repoPath, "branch", newBranch, base)
	if err != nil {
		return &core.Error{Kind: core.KindGitRuntimeError, Message: fmt.Sprintf("git branch %s %s failed: %s", newBranch, base, strings.TrimSpace(string(out))), Err: err}
	}
	return nil
}

// CreateWorktree creates branch (if missing) off base, then adds a worktree
// at worktreePath. If worktreePath already exists it is returned unchanged
// (idempotent), matching spec.md §4.3.
func (a *Adapter) CreateWorktree(ctx context.Context, repoPath, worktreePath, branch, base string) (string, error) {
	if err := a.ensureRepoExists(repoPath); err != nil {
		return "", err
	}
	if err := a.ensureBranchExists(ctx, repoPath, base); err != nil {
		return "", err
	}
	if fi, err := os.Stat(worktreePath); err == nil && fi.IsDir() {
		return worktreePath, nil
	}
	if err := os.MkdirAll(filepath.Dir(worktreePath), 0o755); err != nil {
		return "", fmt.Errorf("gitrt: creating parent of %s: %w", worktreePath, err)
	}
	if err := a.CreateBranch(ctx, repoPath, branch, base); err != nil {
		return "", err
	}

	cctx, cancel := context.WithTimeout(ctx, a.mediumTimeout)
	defer cancel()
	out, err := a.git.Git(cctx, repoPath, "worktree", "add", worktreePath, branch)
	if err != nil {
		if fi, statErr := os.Stat(worktreePath); statErr == nil && fi.IsDir() {
			return worktreePath, nil
		}
		return "", &core.Error{Kind: core.KindWorktreeError, Message: fmt.Sprintf("git worktree add %s %s failed: %s", worktreePath, branch, strings.TrimSpace(string(out))), Err: err}
	}
	return worktreePath, nil
}

// RemoveWorktree removes worktreePath, tolerating its absence. Branch
// deletion is a documented no-op when removeBranch is set: the original
// implementation never actually deletes the branch either (see
// SPEC_FULL.md §3), so this adapter only runs `git branch -a`, discards its
// output, and performs no destructive branch operation.
func (a *Adapter) RemoveWorktree(ctx context.Context, repoPath, worktreePath string, force, removeBranch bool) error {
	if _, err := os.Stat(worktreePath); os.IsNotExist(err) {
		return nil
	}
	args := []string{"worktree", "remove"}
	if force {
		args = append(args, "--force")
	}
	args = append(args, worktreePath)

	cctx, cancel := context.WithTimeout(ctx, a.mediumTimeout)
	defer cancel()
	out, err := a.git.Git(cctx, repoPath, args...)
	if err != nil {
		return &core.Error{Kind: core.KindWorktreeError, Message: fmt.Sprintf("git worktree remove %s failed: %s", worktreePath, strings.TrimSpace(string(out))), Err: err}
	}
	if removeBranch {
		// Best-effort only; branch cleanup can fail silently and is
		// intentionally not wired to an actual deletion.
		cctx2, cancel2 := context.WithTimeout(ctx, a.shortTimeout)
		defer cancel2()
		_, _ = a.git.Git(cctx2, repoPath, "branch", "-a")
	}
	return nil
}

// GetBranchFromWorktree parses `git worktree list --porcelain` and returns
// the branch for worktreePath, or "" if the worktree is detached or unknown.
func (a *Adapter) GetBranchFromWorktree(ctx context.Context, repoPath, worktreePath string) (string, error) {
	cctx, cancel := context.WithTimeout(ctx, a.shortTimeout)
	defer cancel()
	out, err := a.git.Git(cctx, repoPath, "worktree", "list", "--porcelain")
	if err != nil {
		return "", &core.Error{Kind: core.KindGitRuntimeError, Message: "git worktree list --porcelain failed", Err: err}
	}

	target, err := filepath.Abs(worktreePath)
	if err != nil {
		return "", err
	}

	var currentWorktree, currentBranch string
	currentDetached := false
	flush := func() (string, bool) {
		if currentWorktree == "" {
			return "", false
		}
		abs, err := filepath.Abs(currentWorktree)
		if err == nil && abs == target && !currentDetached {
			return currentBranch, true
		}
		return "", false
	}

	for _, line := range strings.Split(string(out), "\n") {
		if line == "" {
			if branch, ok := flush(); ok {
				return branch, nil
			}
			currentWorktree, currentBranch, currentDetached = "", "", false
			continue
		}
		switch {
		case strings.HasPrefix(line, "worktree "):
			currentWorktree = strings.TrimPrefix(line, "worktree ")
		case strings.HasPrefix(line, "branch "):
			currentBranch = strings.TrimPrefix(strings.TrimPrefix(line, "branch "), "refs/heads/")
		case line == "detached":
			currentDetached = true
		}
	}
	if branch, ok := flush(); ok {
		return branch, nil
	}
	return "", nil
}
