package logger

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RequestIDHeader carries the trace ID in and out of the service.
const RequestIDHeader = "X-Request-ID"

// GinMiddleware propagates (or creates) the request's trace ID and writes one
// access log line per request once the handler chain has finished.
func GinMiddleware(l *Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		traceID := c.GetHeader(RequestIDHeader)
		ctx := WithTraceID(c.Request.Context(), traceID)
		traceID = GetTraceID(ctx)
		c.Request = c.Request.WithContext(ctx)
		c.Header(RequestIDHeader, traceID)

		c.Next()

		// 认证中间件会把用户写进请求上下文
		ctx = c.Request.Context()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		switch status := c.Writer.Status(); {
		case status >= 500:
			l.ErrorContext(ctx, "request", fields...)
		case status >= 400:
			l.WarnContext(ctx, "request", fields...)
		default:
			l.InfoContext(ctx, "request", fields...)
		}
	}
}
