package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRemoveCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remove",
		Short: "Remove a task from the queue",
		RunE:  runRemove,
	}
	cmd.Flags().String("id", "", "Task id")
	cmd.MarkFlagRequired("id")
	return cmd
}

func runRemove(cmd *cobra.Command, args []string) error {
	id, _ := cmd.Flags().GetString("id")

	a, err := newApp(cmd)
	if err != nil {
		return exitf(1, err)
	}
	if err := a.store.Remove(id); err != nil {
		return exitf(1, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Task removed: %s\n", id)
	return nil
}
