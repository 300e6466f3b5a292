package cmd

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/spf13/cobra"

	"github.com/nelsonpires5/sisifo/internal/core"
)

func newBuildImageCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build-image",
		Short: "Build the agent runtime image",
		RunE:  runBuildImage,
	}
	cmd.Flags().Bool("rebuild", false, "Build with --no-cache")
	cmd.Flags().Bool("no-pull", false, "Skip pulling a fresh base image")
	cmd.Flags().String("dockerfile", "Dockerfile", "Path to the Dockerfile")
	cmd.Flags().String("context", ".", "Build context directory")
	cmd.Flags().String("tag", "latest", "Image tag; must be a valid semver unless it is \"latest\"")
	return cmd
}

func runBuildImage(cmd *cobra.Command, args []string) error {
	rebuild, _ := cmd.Flags().GetBool("rebuild")
	noPull, _ := cmd.Flags().GetBool("no-pull")
	dockerfile, _ := cmd.Flags().GetString("dockerfile")
	buildContext, _ := cmd.Flags().GetString("context")
	tag, _ := cmd.Flags().GetString("tag")

	if tag != "latest" {
		if _, err := semver.NewVersion(strings.TrimPrefix(tag, "v")); err != nil {
			return exitf(1, &core.Error{Kind: core.KindConflictingFlags, Message: fmt.Sprintf("--tag %q is neither \"latest\" nor a valid semver: %v", tag, err)})
		}
	}

	a, err := newApp(cmd)
	if err != nil {
		return exitf(1, err)
	}

	absDockerfile, err := filepath.Abs(dockerfile)
	if err != nil {
		return exitf(1, err)
	}
	absContext, err := filepath.Abs(buildContext)
	if err != nil {
		return exitf(1, err)
	}

	image := imageRepo + ":" + tag
	if err := a.containers.BuildImage(cmd.Context(), image, absDockerfile, absContext, rebuild, noPull); err != nil {
		return exitf(1, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Image built: %s\n", image)
	return nil
}
