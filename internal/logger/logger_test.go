package logger

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileSinkMirrorsRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "api_debug.log")
	require.NoError(t, InitWithConfig(LogConfig{Level: "INFO", Format: "json", File: path}))
	t.Cleanup(func() { _ = InitWithConfig(LogConfig{Level: "INFO", File: "none"}) })

	ctx := context.Background()
	Info(ctx, "Basket ready", "count", 3)
	Debug(ctx, "hidden at info level")
	ErrorWithErr(ctx, "Quote failed", errors.New("boom"), "symbol", "SBIN")
	require.NoError(t, Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(data)

	assert.Contains(t, out, `"msg":"Basket ready"`)
	assert.Contains(t, out, `"count":3`)
	assert.Contains(t, out, `"symbol":"SBIN"`)
	assert.Contains(t, out, "boom")
	assert.NotContains(t, out, "hidden at info level")
}

func TestFileSinkDisabled(t *testing.T) {
	require.NoError(t, InitWithConfig(LogConfig{Level: "DEBUG", File: "none"}))
	assert.Nil(t, fileLogger)
	assert.True(t, IsDebugEnabled())
	assert.NoError(t, Sync())
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, "DEBUG", parseLogLevel("debug").String())
	assert.Equal(t, "WARN", parseLogLevel("WARN").String())
	assert.Equal(t, "INFO", parseLogLevel("verbose").String())
}

func TestOperationTimerWithoutTracing(t *testing.T) {
	require.NoError(t, InitWithConfig(LogConfig{Level: "INFO", File: "none"}))

	timer := StartOperation(context.Background(), "scripmaster.Load", "path", "x.json")
	require.NotNil(t, timer)
	assert.NotNil(t, timer.GetContext())
	timer.End("records", 10)
	timer.EndWithError(errors.New("late failure"))
}
