// Package containerrt is the container adapter of spec.md §4.4: a shell-out
// wrapper over the docker CLI that reserves host ports, launches containers
// with explicit mount/env/port configuration, inspects and tears them down,
// and builds the runtime image.
package containerrt

import (
	"context"
	"fmt"
	"net"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/nelsonpires5/sisifo/internal/core"
)

// AgentPort is the fixed container-side port the agent server listens on.
const AgentPort = 8000

// DefaultPortRangeStart is the first candidate host port scanned during
// reservation.
const DefaultPortRangeStart = 30000

// Executor abstracts running a docker command, mirroring gitrt.GitExecutor.
type Executor interface {
	Docker(ctx context.Context, args ...string) ([]byte, error)
}

type localExecutor struct{}

// NewLocalExecutor returns an Executor that shells out to the real docker
// binary on the host.
func NewLocalExecutor() Executor { return &localExecutor{} }

func (localExecutor) Docker(ctx context.Context, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "docker", args...)
	return cmd.CombinedOutput()
}

// Mount describes one bind mount. ReadOnly controls whether ":ro" is
// appended to the docker -v argument.
type Mount struct {
	HostPath      string
	ContainerPath string
	ReadOnly      bool
}

// Config is the launch configuration for one task's container.
type Config struct {
	Image         string
	Name          string
	HostPort      int
	ContainerPort int // defaults to AgentPort when zero
	Mounts        []Mount
	Env           map[string]string
	WorkDir       string
	Entrypoint    string
	Command       []string
}

// Info is the result of inspect().
type Info struct {
	ID       string
	Name     string
	State    string
	ExitCode int
	PID      int
	Running  bool
}

// Adapter is the container adapter.
type Adapter struct {
	exec Executor
}

// New returns an Adapter.
func New(exec Executor) *Adapter {
	return &Adapter{exec: exec}
}

// ReservePort scans ascending from start for the first loopback TCP port
// that can be bound, binds and immediately releases it, and returns it. This
// is racy by construction (spec.md §4.4): another process may grab the port
// before the container binds it.
func ReservePort(start int) (int, error) {
	if start <= 0 {
		start = DefaultPortRangeStart
	}
	for port := start; port < 65536; port++ {
		addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(port))
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			continue
		}
		ln.Close()
		return port, nil
	}
	return 0, &core.Error{Kind: core.KindPortAllocationError, Message: fmt.Sprintf("no bindable port found starting from %d", start)}
}

func mountArg(m Mount) string {
	spec := fmt.Sprintf("%s:%s", m.HostPath, m.ContainerPath)
	if m.ReadOnly {
		spec += ":ro"
	}
	return spec
}

// Launch starts a container per cfg and returns the container id exactly as
// `docker run -d` prints it (the full id; it is not shortened).
func (a *Adapter) Launch(ctx context.Context, cfg Config) (string, error) {
	containerPort := cfg.ContainerPort
	if containerPort == 0 {
		containerPort = AgentPort
	}

	args := []string{"run", "-d", "--name", cfg.Name,
		"-p", fmt.Sprintf("127.0.0.1:%d:%d", cfg.HostPort, containerPort)}
	for _, m := range cfg.Mounts {
		args = append(args, "-v", mountArg(m))
	}
	for k, v := range cfg.Env {
		args = append(args, "-e", fmt.Sprintf("%s=%s", k, v))
	}
	if cfg.WorkDir != "" {
		args = append(args, "-w", cfg.WorkDir)
	}
	if cfg.Entrypoint != "" {
		args = append(args, "--entrypoint", cfg.Entrypoint)
	}
	args = append(args, cfg.Image)
	args = append(args, cfg.Command...)

	out, err := a.exec.Docker(ctx, args...)
	if err != nil {
		return "", &core.Error{Kind: core.KindContainerError, Message: fmt.Sprintf("docker run failed: %s", strings.TrimSpace(string(out))), Err: err}
	}
	id := strings.TrimSpace(string(out))
	if nl := strings.IndexByte(id, '\n'); nl != -1 {
		id = id[:nl]
	}
	return id, nil
}

// WaitReady polls Inspect until the container is running or budget expires.
func (a *Adapter) WaitReady(ctx context.Context, id string, budget, interval time.Duration) error {
	deadline := time.Now().Add(budget)
	for {
		info, err := a.Inspect(ctx, id)
		if err == nil && info.Running {
			return nil
		}
		if time.Now().After(deadline) {
			return &core.Error{Kind: core.KindContainerStartError, Message: fmt.Sprintf("container %s did not become ready within %s", id, budget), TaskID: id}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}

// LaunchAndWait launches the container and, when readyWait > 0, pauses and
// inspects it; a non-running container fails the launch with
// container-start-error carrying the container id (spec.md §4.4).
func (a *Adapter) LaunchAndWait(ctx context.Context, cfg Config, readyWait time.Duration) (string, error) {
	id, err := a.Launch(ctx, cfg)
	if err != nil {
		return "", err
	}
	if readyWait <= 0 {
		return id, nil
	}
	time.Sleep(readyWait)
	info, err := a.Inspect(ctx, id)
	if err != nil || !info.Running {
		return id, &core.Error{Kind: core.KindContainerStartError, Message: fmt.Sprintf("container %s is not running after launch", id), TaskID: id}
	}
	return id, nil
}

// Inspect returns container state via `docker inspect`.
func (a *Adapter) Inspect(ctx context.Context, id string) (*Info, error) {
	format := "{{.Id}}\t{{.Name}}\t{{.State.Status}}\t{{.State.ExitCode}}\t{{.State.Pid}}\t{{.State.Running}}"
	out, err := a.exec.Docker(ctx, "inspect", "--format", format, id)
	if err != nil {
		return nil, &core.Error{Kind: core.KindContainerNotFound, Message: fmt.Sprintf("container %s not found", id), TaskID: id, Err: err}
	}
	fields := strings.Split(strings.TrimSpace(string(out)), "\t")
	if len(fields) != 6 {
		return nil, &core.Error{Kind: core.KindContainerError, Message: fmt.Sprintf("unexpected docker inspect output: %q", out)}
	}
	exitCode, _ := strconv.Atoi(fields[3])
	pid, _ := strconv.Atoi(fields[4])
	return &Info{
		ID:       fields[0],
		Name:     strings.TrimPrefix(fields[1], "/"),
		State:    fields[2],
		ExitCode: exitCode,
		PID:      pid,
		Running:  fields[5] == "true",
	}, nil
}

// Stop stops id, tolerating an already-stopped or absent container. Returns
// whether it actually did something.
func (a *Adapter) Stop(ctx context.Context, id string, graceSeconds int) (bool, error) {
	info, err := a.Inspect(ctx, id)
	if err != nil {
		return false, nil
	}
	if !info.Running {
		return false, nil
	}
	_, err = a.exec.Docker(ctx, "stop", "-t", strconv.Itoa(graceSeconds), id)
	if err != nil {
		return false, &core.Error{Kind: core.KindContainerError, Message: fmt.Sprintf("docker stop %s failed", id), Err: err}
	}
	return true, nil
}

// Remove removes id, tolerating an already-absent container.
func (a *Adapter) Remove(ctx context.Context, id string, force bool) (bool, error) {
	args := []string{"rm"}
	if force {
		args = append(args, "-f")
	}
	args = append(args, id)
	out, err := a.exec.Docker(ctx, args...)
	if err != nil {
		if strings.Contains(strings.ToLower(string(out)), "no such container") {
			return false, nil
		}
		return false, &core.Error{Kind: core.KindContainerError, Message: fmt.Sprintf("docker rm %s failed: %s", id, strings.TrimSpace(string(out))), Err: err}
	}
	return true, nil
}

// Logs returns the combined stdout/stderr of id, optionally limited to the
// last tail lines (tail <= 0 means all).
func (a *Adapter) Logs(ctx context.Context, id string, tail int) (string, error) {
	args := []string{"logs"}
	if tail > 0 {
		args = append(args, "--tail", strconv.Itoa(tail))
	}
	args = append(args, id)
	out, err := a.exec.Docker(ctx, args...)
	if err != nil {
		return "", &core.Error{Kind: core.KindContainerError, Message: fmt.Sprintf("docker logs %s failed", id), Err: err}
	}
	return string(out), nil
}

// CleanupTaskContainers lists and force-removes every container whose name
// begins with the deterministic task prefix, returning the count removed.
func (a *Adapter) CleanupTaskContainers(ctx context.Context, taskID string, prefix string) (int, error) {
	out, err := a.exec.Docker(ctx, "ps", "-a", "--filter", fmt.Sprintf("name=^%s", prefix), "--format", "{{.Names}}")
	if err != nil {
		return 0, &core.Error{Kind: core.KindContainerError, Message: "docker ps failed", TaskID: taskID, Err: err}
	}
	names := strings.Fields(strings.TrimSpace(string(out)))
	count := 0
	for _, name := range names {
		if !strings.HasPrefix(name, prefix) {
			continue // anchor the match on the full prefix, never a bare substring (spec.md §9)
		}
		if _, err := a.Remove(ctx, name, true); err == nil {
			count++
		}
	}
	return count, nil
}

// BuildImage builds and tags image from dockerfile/context.
func (a *Adapter) BuildImage(ctx context.Context, image, dockerfile, buildContext string, rebuild, noPull bool) error {
	args := []string{"build", "-t", image, "-f", dockerfile}
	if rebuild {
		args = append(args, "--no-cache")
	}
	if noPull {
		args = append(args, "--pull=false")
	}
	args = append(args, buildContext)

	out, err := a.exec.Docker(ctx, args...)
	if err != nil {
		return &core.Error{Kind: core.KindImageBuildError, Message: fmt.Sprintf("docker build failed: %s", strings.TrimSpace(string(out))), Err: err}
	}
	return nil
}

// ResolveEndpointContainerID inspects containers publishing hostPort and
// returns exactly one container id; zero or multiple matches is an error.
func (a *Adapter) ResolveEndpointContainerID(ctx context.Context, hostPort int) (string, error) {
	out, err := a.exec.Docker(ctx, "ps", "--filter", fmt.Sprintf("publish=%d", hostPort), "--format", "{{.ID}}")
	if err != nil {
		return "", &core.Error{Kind: core.KindEndpointError, Message: "docker ps --filter publish failed", Err: err}
	}
	ids := strings.Fields(strings.TrimSpace(string(out)))
	if len(ids) != 1 {
		return "", &core.Error{Kind: core.KindEndpointError, Message: fmt.Sprintf("expected exactly one container publishing port %d, found %d", hostPort, len(ids))}
	}
	return ids[0], nil
}
