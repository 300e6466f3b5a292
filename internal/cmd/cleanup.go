package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nelsonpires5/sisifo/internal/cleanup"
	"github.com/nelsonpires5/sisifo/internal/core"
)

func newCleanupCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Remove containers, worktrees, and sandboxes for finished tasks",
		RunE:  runCleanup,
	}
	cmd.Flags().String("id", "", "Clean up only this task id")
	cmd.Flags().Bool("done-only", false, "Limit to done records")
	cmd.Flags().Bool("cancelled-only", false, "Limit to cancelled records")
	cmd.Flags().Bool("keep-worktree", false, "Do not remove the worktree")
	return cmd
}

func runCleanup(cmd *cobra.Command, args []string) error {
	id, _ := cmd.Flags().GetString("id")
	doneOnly, _ := cmd.Flags().GetBool("done-only")
	cancelledOnly, _ := cmd.Flags().GetBool("cancelled-only")
	keepWorktree, _ := cmd.Flags().GetBool("keep-worktree")

	if doneOnly && cancelledOnly {
		return exitf(1, &core.Error{Kind: core.KindConflictingFlags, Message: "--done-only and --cancelled-only are mutually exclusive"})
	}

	a, err := newApp(cmd)
	if err != nil {
		return exitf(1, err)
	}
	runner := cleanup.New(a.store, a.layout, a.git, a.containers)

	if id != "" {
		record, err := a.store.Get(id)
		if err != nil {
			return exitf(1, err)
		}
		if record == nil {
			return exitf(1, core.New(core.KindUnknownTaskID, fmt.Sprintf("no task with id %q", id)))
		}
		for _, w := range runner.One(cmd.Context(), record, keepWorktree) {
			fmt.Fprintf(cmd.OutOrStdout(), "warning: %s: %s: %v\n", id, w.Step, w.Err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Task cleaned up: %s\n", id)
		return nil
	}

	statuses := []core.Status{core.StatusDone, core.StatusCancelled}
	switch {
	case doneOnly:
		statuses = []core.Status{core.StatusDone}
	case cancelledOnly:
		statuses = []core.Status{core.StatusCancelled}
	}

	swept, err := sweptCount(a, statuses)
	if err != nil {
		return exitf(1, err)
	}

	warnings, err := runner.Sweep(cmd.Context(), statuses, keepWorktree)
	if err != nil {
		return exitf(1, err)
	}
	for taskID, ws := range warnings {
		for _, w := range ws {
			fmt.Fprintf(cmd.OutOrStdout(), "warning: %s: %s: %v\n", taskID, w.Step, w.Err)
		}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Cleaned up %d task(s)\n", swept)
	return nil
}

func sweptCount(a *app, statuses []core.Status) (int, error) {
	all, err := a.store.List()
	if err != nil {
		return 0, err
	}
	wanted := map[core.Status]bool{}
	for _, s := range statuses {
		wanted[s] = true
	}
	count := 0
	for _, rec := range all {
		if wanted[rec.Status] {
			count++
		}
	}
	return count, nil
}
