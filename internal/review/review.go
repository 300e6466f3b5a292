// Package review is the review launcher of spec.md §4.8: it assembles a
// strict-local environment and launches the interactive review TUI attached
// to the operator's terminal, bounded by a long timeout.
package review

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/nelsonpires5/sisifo/internal/core"
)

// MaxSessionDuration bounds the interactive review session (spec.md §4.8:
// "a long bound (≈1 hour) caps the interactive session").
const MaxSessionDuration = time.Hour

var safeEnvKeys = []string{
	"PATH", "HOME", "USER", "SHELL", "TERM", "LANG", "LC_ALL", "PWD", "TMPDIR",
	"DISPLAY", "XAUTHORITY",
}

// BuildReviewEnv assembles the environment passed to the review TUI: a
// safe baseline (including X11 keys, since the TUI may need a display) plus
// the four OPENCODE_* variables that point it at the task's running
// container and strict-local sandbox.
func BuildReviewEnv(hostPort int, configDir, dataDir string) []string {
	env := make([]string, 0, len(safeEnvKeys)+4)
	for _, k := range safeEnvKeys {
		if v, ok := os.LookupEnv(k); ok {
			env = append(env, k+"="+v)
		}
	}
	env = append(env, fmt.Sprintf("OPENCODE_HOST=http://127.0.0.1:%d", hostPort))
	env = append(env, "OPENCODE_SKIP_START=true")
	if configDir != "" {
		env = append(env, "OPENCODE_CONFIG_DIR="+configDir)
	}
	if dataDir != "" {
		env = append(env, "OPENCODE_DATA_DIR="+dataDir)
	}
	return env
}

// Validate checks the strict-local preconditions of spec.md §4.8/testable
// property 9: both sandbox paths must be set and resolve to existing
// directories, and the record must have a nonzero port.
func Validate(port int, configDir, dataDir string) error {
	if port == 0 || configDir == "" || dataDir == "" {
		return &core.Error{
			Kind:    core.KindStrictLocalValidation,
			Message: "task is missing port or sandbox directories; run `retry` then `run` to produce a fresh attempt before `review`",
		}
	}
	for _, dir := range []string{configDir, dataDir} {
		fi, err := os.Stat(dir)
		if err != nil || !fi.IsDir() {
			return &core.Error{
				Kind:    core.KindStrictLocalValidation,
				Message: fmt.Sprintf("sandbox directory %q does not exist; run `retry` then `run` to produce a fresh attempt before `review`", dir),
			}
		}
	}
	return nil
}

// Launch runs the interactive review binary (tuiCmd, with no arguments) with
// env and workDir, attached to the operator's stdio, and returns its exit
// code.
func Launch(ctx context.Context, tuiCmd string, env []string, workDir string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, MaxSessionDuration)
	defer cancel()

	cmd := exec.CommandContext(ctx, tuiCmd)
	cmd.Env = env
	if fi, err := os.Stat(workDir); err == nil && fi.IsDir() {
		cmd.Dir = workDir
	}
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	err := cmd.Run()
	if err == nil {
		return 0, nil
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		return exitErr.ExitCode(), nil
	}
	return -1, &core.Error{Kind: core.KindReviewLaunchError, Message: fmt.Sprintf("failed to launch review TUI %q: %v", tuiCmd, err), Err: err}
}
