package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nelsonpires5/sisifo/internal/core"
)

func newApproveCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "approve",
		Short: "Approve a task in review, marking it done",
		RunE:  runApprove,
	}
	cmd.Flags().String("id", "", "Task id")
	cmd.MarkFlagRequired("id")
	return cmd
}

func runApprove(cmd *cobra.Command, args []string) error {
	id, _ := cmd.Flags().GetString("id")

	a, err := newApp(cmd)
	if err != nil {
		return exitf(1, err)
	}
	if _, err := a.store.Update(id, func(r *core.TaskRecord) { r.Status = core.StatusDone }); err != nil {
		return exitf(1, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Task approved: %s\n", id)
	return nil
}
