package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nelsonpires5/sisifo/internal/core"
)

func newRetryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "retry",
		Short: "Retry a failed task",
		RunE:  runRetry,
	}
	cmd.Flags().String("id", "", "Task id")
	cmd.MarkFlagRequired("id")
	return cmd
}

// runRetry implements the failed -> todo transition of spec.md §5 "Retry":
// attempt increments, every runtime handle clears, branch and worktree_path
// are preserved so the next run may dirty-reuse them.
func runRetry(cmd *cobra.Command, args []string) error {
	id, _ := cmd.Flags().GetString("id")

	a, err := newApp(cmd)
	if err != nil {
		return exitf(1, err)
	}
	_, err = a.store.Update(id, func(r *core.TaskRecord) {
		r.ClearRuntimeHandles()
		r.Attempt++
		r.Status = core.StatusTodo
	})
	if err != nil {
		return exitf(1, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Task queued for retry: %s\n", id)
	return nil
}
