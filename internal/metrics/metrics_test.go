package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCurrentReturnsUsableNoopInstruments(t *testing.T) {
	inst := Current()
	require.NotNil(t, inst)
	// Recording against the noop provider must not panic.
	inst.RecordStageDuration(context.Background(), "setup", 10*time.Millisecond)
	inst.RecordAgentPhaseDuration(context.Background(), "plan", 20*time.Millisecond)
	inst.RecordClaimLatency(context.Background(), 5*time.Millisecond)
	inst.RecordQueueDepth(context.Background(), 3)
}

func TestInitWithoutEndpointReturnsNoopShutdown(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	shutdown := Init("sisifo-test")
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))
}
