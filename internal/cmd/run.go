package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/nelsonpires5/sisifo/internal/core"
	"github.com/nelsonpires5/sisifo/internal/pipeline"
	"github.com/nelsonpires5/sisifo/internal/queue"
)

func newRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Claim and process queued tasks",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			id, _ := cmd.Flags().GetString("id")
			if id != "" && cmd.Flags().Changed("poll") {
				return &core.Error{Kind: core.KindConflictingFlags, Message: "--id is mutually exclusive with --poll"}
			}
			return nil
		},
		RunE: runRun,
	}

	cmd.Flags().String("id", "", "Process exactly this task id (single-id mode)")
	cmd.Flags().Int("max-parallel", 1, "Maximum number of tasks processed concurrently")
	cmd.Flags().Int("poll", int(queue.DefaultPollInterval.Seconds()), "Enable polling mode, optionally overriding the interval in seconds")
	cmd.Flags().Lookup("poll").NoOptDefVal = fmt.Sprintf("%d", int(queue.DefaultPollInterval.Seconds()))
	cmd.Flags().Bool("cleanup-on-fail", false, "Remove containers and worktree on pipeline failure")
	cmd.Flags().Bool("dirty-run", false, "Reuse an existing worktree and pre-purge stale containers")
	cmd.Flags().Bool("follow", false, "Print each processed task's container logs")

	return cmd
}

func runRun(cmd *cobra.Command, args []string) error {
	id, _ := cmd.Flags().GetString("id")
	maxParallel, _ := cmd.Flags().GetInt("max-parallel")
	pollSeconds, _ := cmd.Flags().GetInt("poll")
	poll := cmd.Flags().Changed("poll")
	cleanupOnFail, _ := cmd.Flags().GetBool("cleanup-on-fail")
	dirtyRun, _ := cmd.Flags().GetBool("dirty-run")
	follow, _ := cmd.Flags().GetBool("follow")

	a, err := newApp(cmd)
	if err != nil {
		return exitf(1, err)
	}

	processor := a.newProcessor(pipeline.Config{
		CleanupOnFail: cleanupOnFail,
		DirtyRun:      dirtyRun,
	})

	runner := queue.New(queue.Config{
		MaxParallel:  maxParallel,
		PollInterval: time.Duration(pollSeconds) * time.Second,
		Poll:         poll,
	}, a.store, a.layout, processor)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	out := cmd.OutOrStdout()

	if id != "" {
		outcome, err := runner.RunOne(ctx, id)
		if err != nil {
			return exitf(1, err)
		}
		printOutcome(ctx, out, a, *outcome, follow)
		if outcome.Err != nil {
			return exitf(1, outcome.Err)
		}
		return nil
	}

	if poll {
		if err := runner.RunPolling(ctx); err != nil {
			return exitf(1, err)
		}
		return nil
	}

	outcomes, err := runner.RunPass(ctx)
	if err != nil {
		return exitf(1, err)
	}
	failures := 0
	for _, o := range outcomes {
		printOutcome(ctx, out, a, o, follow)
		if o.Err != nil {
			failures++
		}
	}
	if failures > 0 {
		return exitf(1, fmt.Errorf("%d of %d task(s) failed", failures, len(outcomes)))
	}
	return nil
}

func printOutcome(ctx context.Context, out io.Writer, a *app, o queue.Outcome, follow bool) {
	if o.Err != nil {
		fmt.Fprintf(out, "FAIL %s: %v\n", o.TaskID, o.Err)
	} else {
		fmt.Fprintf(out, "OK   %s\n", o.TaskID)
	}
	if !follow {
		return
	}
	record, err := a.store.Get(o.TaskID)
	if err != nil || record == nil || record.Container == "" {
		return
	}
	logs, err := a.containers.Logs(ctx, record.Container, 200)
	if err != nil {
		return
	}
	fmt.Fprintln(out, logs)
}
