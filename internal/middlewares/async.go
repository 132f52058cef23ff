package middlewares

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	logger "github.com/Gopher0727/StudyGroup/middleware/log"
)

// Submitter 接收任务的协程池
type Submitter interface {
	Submit(ctx context.Context, job func()) error
}

// AsyncMiddleware 将后续处理链交给协程池执行，限制同时访问存储的请求数
// 当前 goroutine 阻塞等待任务结束，同一时刻只有一个 goroutine 操作 gin.Context
// 排队超时或协程池已停止时返回 503
// 处理链在协程池中 panic 时外层的 gin.Recovery 捕获不到，这里恢复并返回 500
func AsyncMiddleware(pool Submitter, log *logger.Logger) gin.HandlerFunc {
	if log == nil {
		log = logger.NewNop()
	}
	return func(c *gin.Context) {
		if pool == nil {
			c.Next()
			return
		}

		done := make(chan struct{})
		err := pool.Submit(c.Request.Context(), func() {
			defer close(done)
			defer func() {
				if r := recover(); r != nil {
					log.ErrorContext(c.Request.Context(), "处理请求时发生 panic",
						zap.Any("panic", r),
						zap.String("path", c.FullPath()),
						zap.Stack("stack"),
					)
					if c.Writer.Written() {
						c.Abort()
						return
					}
					c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
						"error": "服务器内部错误",
						"code":  "INTERNAL",
					})
				}
			}()
			c.Next()
		})
		if err != nil {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
				"error": "服务繁忙，请稍后重试",
				"code":  "SERVICE_UNAVAILABLE",
			})
			return
		}
		<-done
	}
}
