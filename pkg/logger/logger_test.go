package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestWithContext(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	restore := SetForTest(zap.New(core))
	defer restore()

	ctx := ContextWithJobID(context.Background(), "job-1")
	ctx = ContextWithOperator(ctx, "count_distinct")
	ctx = ContextWithPartition(ctx, 3)

	WithContext(ctx).Info("spilled partition")

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "job-1", fields["job_id"])
	assert.Equal(t, "count_distinct", fields["operator"])
	assert.Equal(t, int64(3), fields["partition"])
}

func TestNewLoggerRejectsBadLevel(t *testing.T) {
	_, err := newLogger(Config{Level: "loud", Encoding: "json"})
	assert.Error(t, err)

	l, err := newLogger(Config{Level: "debug", Encoding: "console", Development: true, OutputPaths: []string{"stderr"}})
	require.NoError(t, err)
	assert.True(t, l.Core().Enabled(zapcore.DebugLevel))
}

func TestSetLevel(t *testing.T) {
	l, err := newLogger(Config{Level: "info", Encoding: "json", OutputPaths: []string{"stderr"}})
	require.NoError(t, err)
	assert.False(t, l.Core().Enabled(zapcore.DebugLevel))

	require.NoError(t, SetLevel("debug"))
	assert.True(t, l.Core().Enabled(zapcore.DebugLevel))

	assert.Error(t, SetLevel("verbose"))
	assert.Error(t, Init(Config{Level: "info", Encoding: "xml"}))
}
