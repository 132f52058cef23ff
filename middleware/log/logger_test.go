package logger

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Gopher0727/StudyGroup/config"
)

func TestNewLogger(t *testing.T) {
	t.Run("json to stdout", func(t *testing.T) {
		l, err := NewLogger(&config.LoggingConfig{Level: "info", Format: "json", Output: "stdout"})
		require.NoError(t, err)
		require.NotNil(t, l)
		l.Info("json message")
	})

	t.Run("console to stdout", func(t *testing.T) {
		l, err := NewLogger(&config.LoggingConfig{Level: "debug", Format: "console", Output: "stdout"})
		require.NoError(t, err)
		l.Debug("console message")
	})

	t.Run("file output", func(t *testing.T) {
		logFile := filepath.Join(t.TempDir(), "studygroup.log")

		l, err := NewLogger(&config.LoggingConfig{Level: "info", Format: "json", Output: "file", FilePath: logFile})
		require.NoError(t, err)

		l.Info("group created", zap.String("group_uuid", "g-1"))
		require.NoError(t, l.Close())

		content, err := os.ReadFile(logFile)
		require.NoError(t, err)
		assert.Contains(t, string(content), "group created")
		assert.Contains(t, string(content), `"group_uuid":"g-1"`)
	})

	t.Run("file output without path", func(t *testing.T) {
		_, err := NewLogger(&config.LoggingConfig{Level: "info", Output: "file"})
		assert.Error(t, err)
	})

	t.Run("level parsing", func(t *testing.T) {
		assert.Equal(t, zapcore.DebugLevel, parseLogLevel("DEBUG"))
		assert.Equal(t, zapcore.WarnLevel, parseLogLevel("warn"))
		assert.Equal(t, zapcore.ErrorLevel, parseLogLevel("error"))
		assert.Equal(t, zapcore.InfoLevel, parseLogLevel("bogus"))
	})
}

func TestContextLogging(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := FromZap(zap.New(core))

	ctx := WithTraceID(context.Background(), "trace-abc")

	l.InfoContext(ctx, "approved", zap.Int64("request_id", 7))
	l.WarnContext(context.Background(), "no trace")

	entries := logs.All()
	require.Len(t, entries, 2)

	assert.Equal(t, "approved", entries[0].Message)
	assert.Equal(t, "trace-abc", entries[0].ContextMap()["trace_id"])
	assert.Equal(t, int64(7), entries[0].ContextMap()["request_id"])

	_, hasTrace := entries[1].ContextMap()["trace_id"]
	assert.False(t, hasTrace)
}

func TestContextLoggingWithUser(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	l := FromZap(zap.New(core))

	l.InfoContext(WithUserID(context.Background(), 3), "removed member")

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, uint64(3), entries[0].ContextMap()["user_id"])
	_, hasTrace := entries[0].ContextMap()["trace_id"]
	assert.False(t, hasTrace)
}

func TestWithFieldsAndNamed(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	l := FromZap(zap.New(core)).Named("enrollment").WithFields(zap.String("component", "ledger"))

	l.Info("submitted")

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "enrollment", entries[0].LoggerName)
	assert.Equal(t, "ledger", entries[0].ContextMap()["component"])
}

func TestNewNop(t *testing.T) {
	l := NewNop()
	l.InfoContext(context.Background(), "discarded")
	assert.NoError(t, l.Close())
}
