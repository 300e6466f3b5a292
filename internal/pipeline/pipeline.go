// Package pipeline is the per-task execution pipeline of spec.md §4.6: it
// composes the git, container, and agent adapters into setup, execute,
// success, and failure stages, owning the attempt sandbox bootstrap and the
// failure-report generator.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/nelsonpires5/sisifo/internal/agent"
	"github.com/nelsonpires5/sisifo/internal/containerrt"
	"github.com/nelsonpires5/sisifo/internal/core"
	"github.com/nelsonpires5/sisifo/internal/gitrt"
	"github.com/nelsonpires5/sisifo/internal/logging"
	"github.com/nelsonpires5/sisifo/internal/metrics"
	"github.com/nelsonpires5/sisifo/internal/paths"
	"github.com/nelsonpires5/sisifo/internal/store"
	"github.com/nelsonpires5/sisifo/internal/taskfile"
	"github.com/nelsonpires5/sisifo/internal/telemetry"
)

const (
	defaultAgentServerPort  = containerrt.AgentPort
	containerConfigPath     = "/root/.config/opencode"
	containerDataPath       = "/root/.local/share/opencode"
	defaultReadyWait        = 2 * time.Second
)

// Config configures one Processor instance.
type Config struct {
	DockerImage   string
	ContainerCmd  []string // defaults to the agent server startup command when empty
	ContainerHost string   // defaults to "127.0.0.1"
	CleanupOnFail bool
	DirtyRun      bool
	SessionID     string
}

// Processor runs the full pipeline for records already claimed into
// planning. Adapters are taken as constructor dependencies (spec.md §9:
// "The pipeline takes adapter callables as dependencies so tests can
// substitute stubs").
type Processor struct {
	cfg        Config
	store      *store.Store
	layout     *paths.Layout
	git        *gitrt.Adapter
	containers *containerrt.Adapter
	agent      *agent.Adapter
}

// New returns a Processor wired to the given store and adapters.
func New(cfg Config, st *store.Store, layout *paths.Layout, git *gitrt.Adapter, containers *containerrt.Adapter, ag *agent.Adapter) *Processor {
	if cfg.ContainerHost == "" {
		cfg.ContainerHost = "127.0.0.1"
	}
	return &Processor{cfg: cfg, store: st, layout: layout, git: git, containers: containers, agent: ag}
}

// WithSessionID returns a shallow copy of the Processor configured to stamp
// sessionID into every record it processes. The queue runner calls this once
// per invocation with its generated session tag (spec.md §4.7 "Session
// identifier"), since a Processor may otherwise be constructed once and
// reused across many runner invocations.
func (p *Processor) WithSessionID(sessionID string) *Processor {
	cp := *p
	cp.cfg.SessionID = sessionID
	return &cp
}

func defaultContainerCmd() []string {
	return []string{"serve", "--hostname", "0.0.0.0", "--port", fmt.Sprintf("%d", defaultAgentServerPort)}
}

// Process runs setup, execute, and success for record, or failure on any
// stage error. record must already be in planning (the caller claims it via
// the store before calling Process).
func (p *Processor) Process(ctx context.Context, record *core.TaskRecord) error {
	record, err := p.setup(ctx, record)
	if err != nil {
		return p.failure(ctx, record, err)
	}

	record, err = p.execute(ctx, record)
	if err != nil {
		return p.failure(ctx, record, err)
	}

	if err := p.success(ctx, record); err != nil {
		return p.failure(ctx, record, err)
	}
	return nil
}

// setup implements spec.md §4.6 "Setup".
func (p *Processor) setup(ctx context.Context, record *core.TaskRecord) (*core.TaskRecord, error) {
	ctx, span := telemetry.StartStage(ctx, "setup", record.ID)
	start := time.Now()
	defer func() {
		metrics.Current().RecordStageDuration(ctx, "setup", time.Since(start))
		span.End()
	}()

	body, err := taskfile.ReadBody(record.TaskFile)
	if err != nil {
		return record, &core.StageError{Stage: "setup", TaskID: record.ID, Message: err.Error(), Err: err}
	}
	if body == "" {
		return record, &core.StageError{Stage: "setup", TaskID: record.ID, Message: "task body is empty"}
	}

	branch := record.Branch
	if branch == "" {
		branch = core.DeriveBranch(record.ID)
	}

	worktreePath := record.WorktreePath
	if worktreePath == "" {
		return record, &core.StageError{Stage: "setup", TaskID: record.ID, Message: "worktree_path is required before setup"}
	}

	reuseWorktree := p.cfg.DirtyRun
	if reuseWorktree {
		if fi, statErr := os.Stat(worktreePath); statErr != nil || !fi.IsDir() {
			reuseWorktree = false
		}
	}
	if p.cfg.DirtyRun {
		prefix := core.TaskContainerPrefix(record.ID)
		if _, err := p.containers.CleanupTaskContainers(ctx, record.ID, prefix); err != nil {
			return record, &core.StageError{Stage: "setup", TaskID: record.ID, Message: "dirty-run container pre-purge failed", Err: err}
		}
	}
	if !reuseWorktree {
		if _, err := p.git.CreateWorktree(ctx, record.Repo, worktreePath, branch, record.Base); err != nil {
			return record, &core.StageError{Stage: "setup", TaskID: record.ID, Message: "worktree setup failed", Err: err}
		}
	}

	attemptDir := p.layout.AttemptDir(record.ID, record.Attempt)
	configDir := p.layout.AttemptConfigDir(record.ID, record.Attempt)
	dataDir := p.layout.AttemptDataDir(record.ID, record.Attempt)

	if err := bootstrapConfigSandbox(hostConfigDir(), configDir); err != nil {
		return record, &core.StageError{Stage: "setup", TaskID: record.ID, Message: "config sandbox bootstrap failed", Err: err}
	}
	if err := bootstrapDataSandbox(hostDataDir(), dataDir); err != nil {
		return record, &core.StageError{Stage: "setup", TaskID: record.ID, Message: "data sandbox bootstrap failed", Err: err}
	}

	port, err := containerrt.ReservePort(containerrt.DefaultPortRangeStart)
	if err != nil {
		return record, &core.StageError{Stage: "setup", TaskID: record.ID, Message: "port reservation failed", Err: err}
	}

	containerName := core.DeriveContainerName(record.ID, record.CreatedAt)
	containerCmd := p.cfg.ContainerCmd
	if len(containerCmd) == 0 {
		containerCmd = defaultContainerCmd()
	}

	launchCfg := containerrt.Config{
		Image:    p.cfg.DockerImage,
		Name:     containerName,
		HostPort: port,
		Mounts: []containerrt.Mount{
			{HostPath: worktreePath, ContainerPath: worktreePath, ReadOnly: false},
			{HostPath: configDir, ContainerPath: containerConfigPath, ReadOnly: true},
			{HostPath: dataDir, ContainerPath: containerDataPath, ReadOnly: false},
		},
		WorkDir: worktreePath,
		Command: containerCmd,
	}
	containerID, err := p.containers.LaunchAndWait(ctx, launchCfg, defaultReadyWait)
	if err != nil {
		return record, &core.StageError{Stage: "setup", TaskID: record.ID, Message: "container launch failed", Err: err}
	}

	updated, err := p.store.Update(record.ID, func(r *core.TaskRecord) {
		r.Status = core.StatusBuilding
		r.Branch = branch
		r.WorktreePath = worktreePath
		r.Container = containerID
		r.Port = port
		r.SessionID = p.cfg.SessionID
		r.OpencodeAttemptDir = attemptDir
		r.OpencodeConfigDir = configDir
		r.OpencodeDataDir = dataDir
	})
	if err != nil {
		return record, &core.StageError{Stage: "setup", TaskID: record.ID, Message: "persisting setup results failed", Err: err}
	}
	logging.Infof("task %s: setup complete — container %s on port %d, branch %s", record.ID, containerID, port, branch)
	return updated, nil
}

// execute implements spec.md §4.6 "Execute".
func (p *Processor) execute(ctx context.Context, record *core.TaskRecord) (*core.TaskRecord, error) {
	ctx, span := telemetry.StartStage(ctx, "execute", record.ID)
	start := time.Now()
	defer func() {
		metrics.Current().RecordStageDuration(ctx, "execute", time.Since(start))
		span.End()
	}()

	body, err := taskfile.ReadBody(record.TaskFile)
	if err != nil {
		return record, &core.StageError{Stage: "planning", TaskID: record.ID, Message: err.Error(), Err: err}
	}

	logging.Infof("task %s: planning started against container %s", record.ID, record.Container)
	endpoint := fmt.Sprintf("http://%s:%d", p.cfg.ContainerHost, record.Port)
	result, err := p.agent.RunPlanSequence(ctx, endpoint, body, agent.DefaultPlanTimeout, agent.DefaultBuildTimeout)
	if err != nil {
		return record, &core.StageError{Stage: "planning", TaskID: record.ID, Message: "failed to reach task endpoint", Err: err}
	}

	switch result.Status {
	case "plan_failed":
		return record, &core.StageError{
			Stage: "planning", TaskID: record.ID, Message: result.Err.Message,
			Command: result.Err.Command, ExitCode: result.Err.ExitCode,
			Stdout: result.Err.Stdout, Stderr: result.Err.Stderr, Err: result.Err,
		}
	case "build_failed":
		return record, &core.StageError{
			Stage: "building", TaskID: record.ID, Message: result.Err.Message,
			Command: result.Err.Command, ExitCode: result.Err.ExitCode,
			Stdout: result.Err.Stdout, Stderr: result.Err.Stderr, Err: result.Err,
		}
	}
	logging.Infof("task %s: plan and build finished, handing off to review", record.ID)
	return record, nil
}

// success implements spec.md §4.6 "Success".
func (p *Processor) success(ctx context.Context, record *core.TaskRecord) error {
	ctx, span := telemetry.StartStage(ctx, "success", record.ID)
	start := time.Now()
	defer func() {
		metrics.Current().RecordStageDuration(ctx, "success", time.Since(start))
		span.End()
	}()

	_, err := p.store.Update(record.ID, func(r *core.TaskRecord) {
		r.Status = core.StatusReview
		r.ErrorFile = ""
	})
	if err != nil {
		return &core.StageError{Stage: "success", TaskID: record.ID, Message: "persisting review transition failed", Err: err}
	}
	logging.Infof("task %s: building -> review", record.ID)
	return nil
}

// failure implements spec.md §4.6 "Failure". It never returns an error of
// its own beyond a log-worthy warning: the pipeline's top-level caller
// treats this task as handled either way.
func (p *Processor) failure(ctx context.Context, record *core.TaskRecord, cause error) error {
	ctx, span := telemetry.StartStage(ctx, "failure", record.ID)
	start := time.Now()
	defer func() {
		metrics.Current().RecordStageDuration(ctx, "failure", time.Since(start))
		span.End()
	}()

	stageErr, ok := cause.(*core.StageError)
	if !ok {
		stageErr = &core.StageError{Stage: "setup", TaskID: record.ID, Message: cause.Error(), Err: cause}
	}
	taskLog := logging.WithTaskID(record.ID)
	taskLog.Warn().Str("stage", stageErr.Stage).Err(stageErr).Msg("task failed")

	reportPath := p.layout.ErrorFilePath(record.ID, time.Now().Unix())
	report := generateErrorReport(record.ID, stageErr, time.Now())
	if err := writeErrorReport(reportPath, report); err != nil {
		// A failed write must not mask the original failure; record an
		// empty error_file per spec.md §3.1 invariant.
		taskLog.Warn().Err(err).Str("path", reportPath).Msg("writing failure report failed")
		reportPath = ""
	}

	if p.cfg.CleanupOnFail {
		prefix := core.TaskContainerPrefix(record.ID)
		if _, cleanupErr := p.containers.CleanupTaskContainers(ctx, record.ID, prefix); cleanupErr != nil {
			// Best-effort: warnings on sub-cleanup failure must not mask
			// the original failure (spec.md §4.6 "Failure").
			taskLog.Warn().Err(cleanupErr).Msg("cleanup-on-fail: container cleanup failed")
		}
		if record.WorktreePath != "" {
			if err := p.git.RemoveWorktree(ctx, record.Repo, record.WorktreePath, true, false); err != nil {
				taskLog.Warn().Err(err).Str("worktree", record.WorktreePath).Msg("cleanup-on-fail: worktree removal failed")
			}
		}
	}

	_, updateErr := p.store.Update(record.ID, func(r *core.TaskRecord) {
		r.Status = core.StatusFailed
		r.ErrorFile = reportPath
	})
	if updateErr != nil {
		return fmt.Errorf("pipeline: failed to persist failed status for %s: %w (original failure: %s)", record.ID, updateErr, stageErr.Message)
	}
	return stageErr
}
