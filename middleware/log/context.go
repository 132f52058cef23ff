package logger

import (
	"context"

	"github.com/google/uuid"
)

// UserIDKey is the context key holding the authenticated user's ID
const UserIDKey contextKey = "user_id"

// WithTraceID stores traceID in ctx, generating a UUID when it is empty.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	if traceID == "" {
		traceID = NewTraceID()
	}
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// GetTraceID returns the trace ID in ctx or "".
func GetTraceID(ctx context.Context) string {
	return valueOf[string](ctx, TraceIDKey)
}

func NewTraceID() string {
	return uuid.New().String()
}

// WithUserID records the acting user so every log line of the request names it.
func WithUserID(ctx context.Context, userID uint) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// GetUserID returns the acting user in ctx, 0 when the request is anonymous.
func GetUserID(ctx context.Context) uint {
	return valueOf[uint](ctx, UserIDKey)
}

func valueOf[T any](ctx context.Context, key contextKey) T {
	var zero T
	if ctx == nil {
		return zero
	}
	if v, ok := ctx.Value(key).(T); ok {
		return v
	}
	return zero
}
