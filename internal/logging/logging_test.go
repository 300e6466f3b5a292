package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitJSONOutputWritesStructuredLines(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: InfoLevel, JSONOutput: true, Output: &buf})

	WithComponent("pipeline").Info().Str("task_id", "T-001").Msg("setup complete")

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "pipeline", decoded["component"])
	assert.Equal(t, "T-001", decoded["task_id"])
	assert.Equal(t, "setup complete", decoded["message"])
}

func TestInitRespectsLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: ErrorLevel, JSONOutput: true, Output: &buf})

	Info("should be dropped")
	assert.Empty(t, buf.Bytes())

	Error("should appear")
	assert.NotEmpty(t, buf.Bytes())
}

func TestLevelFromEnvDefaultsToInfo(t *testing.T) {
	t.Setenv("SISIFO_LOG_LEVEL", "")
	assert.Equal(t, InfoLevel, LevelFromEnv())

	t.Setenv("SISIFO_LOG_LEVEL", "debug")
	assert.Equal(t, DebugLevel, LevelFromEnv())
}
