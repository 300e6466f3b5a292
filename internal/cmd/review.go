package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nelsonpires5/sisifo/internal/core"
	"github.com/nelsonpires5/sisifo/internal/review"
)

const reviewTUICmd = "opencode"

func newReviewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "review",
		Short: "Launch the interactive review TUI against a task's container",
		RunE:  runReview,
	}
	cmd.Flags().String("id", "", "Task id")
	cmd.MarkFlagRequired("id")
	return cmd
}

func runReview(cmd *cobra.Command, args []string) error {
	id, _ := cmd.Flags().GetString("id")

	a, err := newApp(cmd)
	if err != nil {
		return exitf(1, err)
	}
	record, err := a.store.Get(id)
	if err != nil {
		return exitf(1, err)
	}
	if record == nil {
		return exitf(1, core.New(core.KindUnknownTaskID, fmt.Sprintf("no task with id %q", id)))
	}

	if err := review.Validate(record.Port, record.OpencodeConfigDir, record.OpencodeDataDir); err != nil {
		return exitf(1, err)
	}

	env := review.BuildReviewEnv(record.Port, record.OpencodeConfigDir, record.OpencodeDataDir)
	code, err := review.Launch(cmd.Context(), reviewTUICmd, env, record.WorktreePath)
	if err != nil {
		return exitf(1, err)
	}
	if code != 0 {
		return exitf(code, fmt.Errorf("review TUI exited with code %d", code))
	}
	return nil
}
