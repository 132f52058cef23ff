package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWithTraceIDContext(t *testing.T) {
	t.Run("keeps provided trace ID", func(t *testing.T) {
		ctx := WithTraceID(context.Background(), "trace-123")
		assert.Equal(t, "trace-123", GetTraceID(ctx))
	})

	t.Run("generates trace ID when empty", func(t *testing.T) {
		ctx := WithTraceID(context.Background(), "")
		assert.Len(t, GetTraceID(ctx), 36)
	})

	t.Run("child context overrides parent", func(t *testing.T) {
		parent := WithTraceID(context.Background(), "trace-1")
		child := WithTraceID(parent, "trace-2")

		assert.Equal(t, "trace-2", GetTraceID(child))
		assert.Equal(t, "trace-1", GetTraceID(parent))
	})
}

func TestGetTraceID(t *testing.T) {
	assert.Empty(t, GetTraceID(context.Background()))
	assert.Empty(t, GetTraceID(context.WithValue(context.Background(), TraceIDKey, 42)))
}

func TestNewTraceIDUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewTraceID()
		assert.False(t, seen[id], "duplicate trace id %s", id)
		seen[id] = true
	}
}

func TestUserIDContext(t *testing.T) {
	assert.Zero(t, GetUserID(context.Background()))

	ctx := WithUserID(WithTraceID(context.Background(), "trace-1"), 42)
	assert.Equal(t, uint(42), GetUserID(ctx))
	assert.Equal(t, "trace-1", GetTraceID(ctx))
}
