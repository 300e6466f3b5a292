package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nelsonpires5/sisifo/internal/agent"
	"github.com/nelsonpires5/sisifo/internal/containerrt"
	"github.com/nelsonpires5/sisifo/internal/gitrt"
	"github.com/nelsonpires5/sisifo/internal/paths"
	"github.com/nelsonpires5/sisifo/internal/pipeline"
	"github.com/nelsonpires5/sisifo/internal/store"
)

// imageRepo is the repository name `build-image` tags; defaultDockerImage is
// the image `run` launches (newProcessor fills it in when
// pipeline.Config.DockerImage is empty).
const imageRepo = "sisifo-agent"
const defaultDockerImage = imageRepo + ":latest"

// app bundles every dependency a subcommand needs. It is constructed fresh
// per invocation from the root command's persistent flags — there is
// deliberately no package-level singleton (spec.md §9: "Global mutable
// state → record store abstraction").
type app struct {
	layout     *paths.Layout
	store      *store.Store
	git        *gitrt.Adapter
	containers *containerrt.Adapter
	agent      *agent.Adapter
}

func newApp(cmd *cobra.Command) (*app, error) {
	root, _ := cmd.Flags().GetString("queue-root")
	if root == "" {
		exe, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("sisifo: resolving install directory: %w", err)
		}
		root = paths.DefaultQueueRoot(filepath.Dir(exe))
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("sisifo: resolving queue root %q: %w", root, err)
	}

	layout := paths.New(abs)
	if err := layout.EnsureQueueDirs(); err != nil {
		return nil, err
	}

	containers := containerrt.New(containerrt.NewLocalExecutor())
	git := gitrt.New(gitrt.NewLocalExecutor(), "")
	ag := agent.New(agent.NewDockerExecer(), containers)

	return &app{
		layout:     layout,
		store:      store.New(layout.TasksFile()),
		git:        git,
		containers: containers,
		agent:      ag,
	}, nil
}

// newProcessor builds a pipeline.Processor over this app's adapters, filling
// in the default runtime image when cfg.DockerImage is unset.
func (a *app) newProcessor(cfg pipeline.Config) *pipeline.Processor {
	if cfg.DockerImage == "" {
		cfg.DockerImage = defaultDockerImage
	}
	return pipeline.New(cfg, a.store, a.layout, a.git, a.containers, a.agent)
}
