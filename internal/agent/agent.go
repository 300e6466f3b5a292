// Package agent is the agent adapter of spec.md §4.5: it drives the coding
// agent CLI inside a task's running container via `docker exec`, running the
// planning and building phases and applying the stderr-failure heuristic.
package agent

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/nelsonpires5/sisifo/internal/containerrt"
	"github.com/nelsonpires5/sisifo/internal/core"
	"github.com/nelsonpires5/sisifo/internal/metrics"
)

// ParseEndpointPort extracts the port from an "http://host:port" endpoint
// string — the endpoint is used only as a key to look up which container to
// exec into (spec.md §4.5, glossary "Endpoint").
func ParseEndpointPort(endpoint string) (int, error) {
	u, err := url.Parse(endpoint)
	if err != nil || u.Port() == "" {
		return 0, &core.Error{Kind: core.KindInvalidEndpoint, Message: fmt.Sprintf("invalid endpoint %q", endpoint)}
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil {
		return 0, &core.Error{Kind: core.KindInvalidEndpoint, Message: fmt.Sprintf("invalid endpoint port in %q", endpoint)}
	}
	return port, nil
}

// Compile-time defaults, overridable per call (SPEC_FULL.md's supplemented
// constants, grounded on original_source/orchestration/constants.py).
const (
	DefaultPlanAgent    = "plan"
	DefaultBuildAgent   = "build"
	DefaultPlanModel    = "openai/gpt-5.3-codex"
	DefaultBuildModel   = "openai/gpt-5.3-codex"
	DefaultPlanVariant  = "xhigh"
	DefaultBuildVariant = "xhigh"

	DefaultPlanTimeout  = 300 * time.Second
	DefaultBuildTimeout = 600 * time.Second
)

var ansiEscape = regexp.MustCompile("\x1b\\[[0-?]*[ -/]*[@-~]")

var failureSignals = []string{
	"error:",
	"failed to change directory",
	"unknown command",
	"not found",
	"unrecognized",
}

// Execer abstracts running a command inside a container via docker exec.
type Execer interface {
	Exec(ctx context.Context, containerID string, args []string) (stdout, stderr string, exitCode int, err error)
}

type dockerExecer struct{}

// NewDockerExecer returns an Execer that shells out to `docker exec`.
func NewDockerExecer() Execer { return &dockerExecer{} }

func (dockerExecer) Exec(ctx context.Context, containerID string, args []string) (string, string, int, error) {
	full := append([]string{"exec", containerID}, args...)
	cmd := exec.CommandContext(ctx, "docker", full...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	exitCode := 0
	if err != nil {
		if ee, ok := err.(*exec.ExitError); ok {
			exitCode = ee.ExitCode()
		} else {
			return stdout.String(), stderr.String(), -1, err
		}
	}
	return stdout.String(), stderr.String(), exitCode, nil
}

// PhaseResult is the captured outcome of one agent phase invocation.
type PhaseResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Params parameterizes one phase invocation; zero-valued fields fall back to
// the compile-time defaults above.
type Params struct {
	Model   string
	Variant string
	Agent   string
}

func (p Params) withPhaseDefaults(model, variant, agentName string) Params {
	out := p
	if out.Model == "" {
		out.Model = model
	}
	if out.Variant == "" {
		out.Variant = variant
	}
	if out.Agent == "" {
		out.Agent = agentName
	}
	return out
}

// Adapter is the agent adapter.
type Adapter struct {
	exec       Execer
	containers *containerrt.Adapter
}

// New returns an Adapter. containers is used solely to resolve an endpoint
// string to a running container id.
func New(exec Execer, containers *containerrt.Adapter) *Adapter {
	return &Adapter{exec: exec, containers: containers}
}

// stripANSIAndLower prepares stderr for the failure heuristic of spec.md
// §4.5.
func stripANSIAndLower(s string) string {
	return strings.ToLower(ansiEscape.ReplaceAllString(s, ""))
}

// isFailureStderr reports whether stderr (after ANSI-stripping and
// lowercasing) contains any known failure signal, even on exit code 0.
func isFailureStderr(stderr string) bool {
	cleaned := stripANSIAndLower(stderr)
	for _, sig := range failureSignals {
		if strings.Contains(cleaned, sig) {
			return true
		}
	}
	return false
}

// runPhase execs `agent run --model M --variant V --agent A --command C
// [extraArgs...]` inside containerID and applies the failure heuristic.
func (a *Adapter) runPhase(ctx context.Context, containerID string, params Params, command string, extraArgs []string, timeout time.Duration) (*PhaseResult, *core.Error) {
	args := []string{"agent", "run",
		"--model", params.Model,
		"--variant", params.Variant,
		"--agent", params.Agent,
		"--command", command,
	}
	args = append(args, extraArgs...)

	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	phaseStart := time.Now()
	stdout, stderr, exitCode, err := a.exec.Exec(cctx, containerID, args)
	metrics.Current().RecordAgentPhaseDuration(ctx, command, time.Since(phaseStart))
	if err != nil {
		return nil, &core.Error{Kind: core.KindPlanError, Message: fmt.Sprintf("docker exec failed: %v", err), Command: strings.Join(args, " "), ExitCode: exitCode, Stdout: stdout, Stderr: stderr}
	}

	result := &PhaseResult{ExitCode: exitCode, Stdout: stdout, Stderr: stderr}
	if exitCode != 0 || isFailureStderr(stderr) {
		return result, &core.Error{Command: strings.Join(args, " "), ExitCode: exitCode, Stdout: stdout, Stderr: stderr}
	}
	return result, nil
}

// RunPlan runs the planning phase: the task body is passed on the command line.
func (a *Adapter) RunPlan(ctx context.Context, containerID, body string, params Params, timeout time.Duration) (*PhaseResult, error) {
	p := params.withPhaseDefaults(DefaultPlanModel, DefaultPlanVariant, DefaultPlanAgent)
	result, planErr := a.runPhase(ctx, containerID, p, "make-plan-sisifo", []string{body}, timeout)
	if planErr != nil {
		planErr.Kind = core.KindPlanError
		return result, planErr
	}
	return result, nil
}

// RunBuild runs the building phase: it reads state the planning phase left
// behind inside the container, so it takes no body argument.
func (a *Adapter) RunBuild(ctx context.Context, containerID string, params Params, timeout time.Duration) (*PhaseResult, error) {
	p := params.withPhaseDefaults(DefaultBuildModel, DefaultBuildVariant, DefaultBuildAgent)
	result, buildErr := a.runPhase(ctx, containerID, p, "execute-plan-sisifo", nil, timeout)
	if buildErr != nil {
		buildErr.Kind = core.KindBuildError
		return result, buildErr
	}
	return result, nil
}

// SequenceResult is the composed outcome of run_plan_sequence.
type SequenceResult struct {
	Status      string // "success" | "plan_failed" | "build_failed"
	PlanResult  *PhaseResult
	BuildResult *PhaseResult
	Err         *core.Error
}

// RunPlanSequence resolves endpoint to a container id, then runs planning
// followed (on success) by building.
func (a *Adapter) RunPlanSequence(ctx context.Context, endpoint string, body string, planTimeout, buildTimeout time.Duration) (*SequenceResult, error) {
	port, err := ParseEndpointPort(endpoint)
	if err != nil {
		return nil, err
	}
	containerID, err := a.containers.ResolveEndpointContainerID(ctx, port)
	if err != nil {
		return nil, err
	}

	planResult, planErr := a.RunPlan(ctx, containerID, body, Params{}, planTimeout)
	if planErr != nil {
		ce := planErr.(*core.Error)
		return &SequenceResult{Status: "plan_failed", PlanResult: planResult, Err: ce}, nil
	}

	buildResult, buildErr := a.RunBuild(ctx, containerID, Params{}, buildTimeout)
	if buildErr != nil {
		ce := buildErr.(*core.Error)
		return &SequenceResult{Status: "build_failed", PlanResult: planResult, BuildResult: buildResult, Err: ce}, nil
	}

	return &SequenceResult{Status: "success", PlanResult: planResult, BuildResult: buildResult}, nil
}
