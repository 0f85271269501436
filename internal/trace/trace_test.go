package trace

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisabledSpansAreNoops(t *testing.T) {
	require.NoError(t, Setup(false))

	ctx, span := StartSpan(context.Background(), "noop")
	defer span.End()
	assert.False(t, span.SpanContext().IsValid())

	_, _, ok := GetTraceFields(ctx)
	assert.False(t, ok)
}

func TestSpansExportToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.json")
	t.Setenv("LOG_TRACE_FILE", path)

	require.NoError(t, Setup(true))
	assert.True(t, Enabled())

	ctx, span := StartSpan(context.Background(), "basket.Snapshot")
	traceID, spanID, ok := GetTraceFields(ctx)
	require.True(t, ok)
	assert.Len(t, traceID, 32)
	assert.Len(t, spanID, 16)
	span.End()

	require.NoError(t, Shutdown(context.Background()))
	assert.False(t, Enabled())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "basket.Snapshot")
	assert.Contains(t, string(data), InstanceID)
}
