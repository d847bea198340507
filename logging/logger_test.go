package logging

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"syscall"
	"testing"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testLogLevel int8 = 0

func TestGetReturnsSameInstanceOnSubsequentCalls(t *testing.T) {
	logger1 := Get(testLogLevel, "")
	logger2 := Get(-1, "/ignored/after/first/call.log")
	require.NotNil(t, logger1)
	assert.Same(t, logger1, logger2)
}

func TestGetReturnsNoopLoggerIfGlobalLoggerNil(t *testing.T) {
	Get(testLogLevel, "")
	orig := globalLogrLogger
	globalLogrLogger = nil
	defer func() { globalLogrLogger = orig }()

	assert.Same(t, &defaultNoopLogger, Get(testLogLevel, ""))
}

func TestWithLogger(t *testing.T) {
	ctx := context.Background()
	logger := Get(testLogLevel, "")

	ctx1 := WithLogger(ctx, logger)
	assert.Same(t, logger, FromContext(ctx1))

	ctx2 := WithLogger(ctx1, logger)
	assert.Equal(t, ctx1, ctx2, "same logger keeps the context")

	other := logr.Discard()
	ctx3 := WithLogger(ctx1, &other)
	assert.Same(t, &other, FromContext(ctx3))
}

func TestFromContextFallbacks(t *testing.T) {
	global := Get(testLogLevel, "")
	assert.Same(t, global, FromContext(context.Background()))

	orig := globalLogrLogger
	globalLogrLogger = nil
	defer func() { globalLogrLogger = orig }()
	assert.Same(t, &defaultNoopLogger, FromContext(context.Background()))
}

func TestSyncWithoutLogger(t *testing.T) {
	orig := globalZapLogger
	globalZapLogger = nil
	defer func() { globalZapLogger = orig }()

	assert.NotPanics(t, Sync)
}

func TestGetNoopLogger(t *testing.T) {
	assert.Same(t, &defaultNoopLogger, GetNoopLogger())
	assert.NotPanics(t, func() { GetNoopLogger().Info("nothing") })
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    int8
		wantErr bool
	}{
		{in: "", want: 0},
		{in: "debug", want: -1},
		{in: "INFO", want: 0},
		{in: "warn", want: 1},
		{in: "error", want: 2},
		{in: "chatty", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFileSinkCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "sqldash.log")
	ws := sink(path)

	_, err := ws.Write([]byte(`{"message":"hello"}` + "\n"))
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello")
}

func TestIsIgnorableSyncError(t *testing.T) {
	assert.True(t, isIgnorableSyncError(&os.PathError{Op: "sync", Path: "/dev/stderr", Err: syscall.EINVAL}))
	assert.True(t, isIgnorableSyncError(errors.New("sync: The handle is invalid.")))
	assert.False(t, isIgnorableSyncError(errors.New("disk full")))
}
