// Package cmd implements the sisifo command-line surface of spec.md §6.1:
// one cobra command per queue operation, each constructing its own app
// (store, layout, adapters) from the root's persistent flags.
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/nelsonpires5/sisifo/internal/logging"
)

// Version is set at build time via -ldflags.
var Version = "dev"

// NewRootCommand builds the sisifo root command and all ten subcommands.
func NewRootCommand() *cobra.Command {
	cobra.EnableTraverseRunHooks = true

	rootCmd := &cobra.Command{
		Use:     "sisifo",
		Short:   "Single-host task queue for long-running code-generation jobs",
		Long:    "sisifo claims queued tasks and drives each through a git worktree, a sandboxed container, and a coding agent, parking the result in human review.",
		Version: Version,
		// Silence usage on RunE errors; commands already print a one-line message.
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := logging.LevelFromEnv()
			if flag, _ := cmd.Flags().GetString("log-level"); flag != "" {
				level = logging.Level(flag)
			}
			jsonLog, _ := cmd.Flags().GetBool("log-json")
			logging.Init(logging.Config{Level: level, JSONOutput: jsonLog})
			return nil
		},
	}

	rootCmd.PersistentFlags().String("queue-root", "", "Queue root directory (default: <install dir>/queue)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error (default: $SISIFO_LOG_LEVEL or info)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Emit structured JSON logs instead of console output")

	rootCmd.AddCommand(
		newAddCommand(),
		newStatusCommand(),
		newRemoveCommand(),
		newCancelCommand(),
		newRetryCommand(),
		newApproveCommand(),
		newRunCommand(),
		newReviewCommand(),
		newCleanupCommand(),
		newBuildImageCommand(),
	)

	return rootCmd
}
