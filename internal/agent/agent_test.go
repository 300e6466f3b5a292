package agent

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeExecer struct {
	stdout   string
	stderr   string
	exitCode int
}

func (f *fakeExecer) Exec(_ context.Context, _ string, _ []string) (string, string, int, error) {
	return f.stdout, f.stderr, f.exitCode, nil
}

func TestStderrFailureHeuristicDespiteZeroExit(t *testing.T) {
	fe := &fakeExecer{stdout: "", stderr: "ERROR: boom", exitCode: 0}
	a := New(fe, nil)

	_, err := a.RunPlan(context.Background(), "container-id", "do X", Params{}, time.Second)
	require.Error(t, err, "exit 0 with a failure-signaling stderr must still be reported as a phase failure")
}

func TestZeroExitEmptyStderrIsSuccess(t *testing.T) {
	fe := &fakeExecer{stdout: "ok", stderr: "", exitCode: 0}
	a := New(fe, nil)

	result, err := a.RunPlan(context.Background(), "container-id", "do X", Params{}, time.Second)
	require.NoError(t, err)
	assert.Equal(t, 0, result.ExitCode)
}

func TestNonZeroExitIsAlwaysFailure(t *testing.T) {
	fe := &fakeExecer{stdout: "", stderr: "", exitCode: 1}
	a := New(fe, nil)

	_, err := a.RunBuild(context.Background(), "container-id", Params{}, time.Second)
	require.Error(t, err)
}

func TestANSIStrippedBeforeHeuristic(t *testing.T) {
	// "\x1b[31mERROR:\x1b[0m boom" becomes "error: boom" after stripping.
	fe := &fakeExecer{stdout: "", stderr: "\x1b[31mERROR:\x1b[0m boom", exitCode: 0}
	a := New(fe, nil)

	_, err := a.RunPlan(context.Background(), "container-id", "do X", Params{}, time.Second)
	require.Error(t, err)
}

func TestParseEndpointPort(t *testing.T) {
	port, err := ParseEndpointPort("http://127.0.0.1:31000")
	require.NoError(t, err)
	assert.Equal(t, 31000, port)

	_, err = ParseEndpointPort("not-a-url")
	assert.Error(t, err)
}
