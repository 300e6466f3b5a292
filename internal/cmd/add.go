package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nelsonpires5/sisifo/internal/core"
	"github.com/nelsonpires5/sisifo/internal/taskfile"
)

const defaultBaseBranch = "main"

func newAddCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a task to the queue",
		RunE:  runAdd,
	}

	cmd.Flags().String("id", "", "Task id (required with --task; derived from filename with --task-file if omitted)")
	cmd.Flags().String("repo", "", "Repository path (required with --task; read from task-file frontmatter otherwise)")
	cmd.Flags().String("base", "", "Base branch (default: main, or the task-file's own base)")
	cmd.Flags().String("branch", "", "Override the derived branch name")
	cmd.Flags().String("worktree-path", "", "Override the derived worktree path")
	cmd.Flags().String("task", "", "Inline task body")
	cmd.Flags().String("task-file", "", "Path to a task markdown document")

	return cmd
}

func runAdd(cmd *cobra.Command, args []string) error {
	id, _ := cmd.Flags().GetString("id")
	repo, _ := cmd.Flags().GetString("repo")
	base, _ := cmd.Flags().GetString("base")
	branch, _ := cmd.Flags().GetString("branch")
	worktreePath, _ := cmd.Flags().GetString("worktree-path")
	task, _ := cmd.Flags().GetString("task")
	taskFile, _ := cmd.Flags().GetString("task-file")

	if (task == "") == (taskFile == "") {
		return exitf(1, &core.Error{Kind: core.KindConflictingFlags, Message: "exactly one of --task or --task-file is required"})
	}

	a, err := newApp(cmd)
	if err != nil {
		return exitf(1, err)
	}

	var record *core.TaskRecord
	if taskFile != "" {
		record, err = addFromTaskFile(cmd, a, taskFile, id, repo, base, branch, worktreePath)
	} else {
		record, err = addFromInlineTask(cmd, a, id, repo, base, branch, worktreePath, task)
	}
	if err != nil {
		return exitf(1, err)
	}

	if err := a.store.Add(record); err != nil {
		return exitf(1, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Task added to queue: %s\n", record.ID)
	return nil
}

func addFromInlineTask(cmd *cobra.Command, a *app, id, repo, base, branch, worktreePath, body string) (*core.TaskRecord, error) {
	if id == "" {
		return nil, &core.Error{Kind: core.KindConflictingFlags, Message: "--id is required when using --task"}
	}
	if repo == "" {
		return nil, &core.Error{Kind: core.KindConflictingFlags, Message: "--repo is required when using --task"}
	}
	if base == "" {
		base = defaultBaseBranch
	}

	content, err := taskfile.CreateCanonicalTaskFile(id, repo, body, base, branch, worktreePath)
	if err != nil {
		return nil, err
	}
	canonicalPath, err := taskfile.WriteTaskFile(id, content, a.layout.TasksDir())
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Task file created: %s\n", canonicalPath)

	fm, _, err := taskfile.ReadTaskFile(id, a.layout.TasksDir())
	if err != nil {
		return nil, err
	}
	return buildRecord(a, fm, id, canonicalPath)
}

func addFromTaskFile(cmd *cobra.Command, a *app, sourcePath, id, repo, base, branch, worktreePath string) (*core.TaskRecord, error) {
	resolved := sourcePath
	if !filepath.IsAbs(resolved) {
		abs, err := filepath.Abs(resolved)
		if err != nil {
			return nil, err
		}
		resolved = abs
	}
	if _, err := os.Stat(resolved); err != nil {
		return nil, fmt.Errorf("source file not found: %s", resolved)
	}

	canonicalPath, err := taskfile.NormalizeFromFile(resolved, id, repo, base, branch, worktreePath, a.layout.TasksDir())
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Task file registered: %s\n", canonicalPath)

	finalID := id
	if finalID == "" {
		finalID = strings.TrimSuffix(filepath.Base(canonicalPath), filepath.Ext(canonicalPath))
	}
	fm, _, err := taskfile.ReadTaskFile(finalID, a.layout.TasksDir())
	if err != nil {
		return nil, err
	}
	return buildRecord(a, fm, finalID, canonicalPath)
}

func buildRecord(a *app, fm *taskfile.Frontmatter, id, canonicalPath string) (*core.TaskRecord, error) {
	branch := fm.Branch
	if branch == "" {
		branch = core.DeriveBranch(id)
	}
	worktreePath := fm.WorktreePath
	if worktreePath == "" {
		derived, err := a.git.DeriveWorktreePath(fm.Repo, id)
		if err != nil {
			return nil, err
		}
		worktreePath = derived
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	return &core.TaskRecord{
		ID:           id,
		Repo:         fm.Repo,
		Base:         fm.Base,
		TaskFile:     canonicalPath,
		Status:       core.StatusTodo,
		Branch:       branch,
		WorktreePath: worktreePath,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}
