package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nelsonpires5/sisifo/internal/core"
)

func newCancelCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cancel",
		Short: "Cancel a task",
		RunE:  runCancel,
	}
	cmd.Flags().String("id", "", "Task id")
	cmd.MarkFlagRequired("id")
	return cmd
}

func runCancel(cmd *cobra.Command, args []string) error {
	id, _ := cmd.Flags().GetString("id")

	a, err := newApp(cmd)
	if err != nil {
		return exitf(1, err)
	}
	if _, err := a.store.Update(id, func(r *core.TaskRecord) { r.Status = core.StatusCancelled }); err != nil {
		return exitf(1, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Task cancelled: %s\n", id)
	return nil
}
