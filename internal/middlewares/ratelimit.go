package middlewares

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/Gopher0727/StudyGroup/utils/ratelimit"
)

// Limiter 按 key 计数的限流器
type Limiter interface {
	Allow(ctx context.Context, key string, rule ratelimit.Rule) (ratelimit.Result, error)
}

// RateLimitMiddleware 按当前用户限流，须放在 AuthMiddleware 之后
// name 区分不同接口，例如 join_request、decision
func RateLimitMiddleware(limiter Limiter, name string, rule ratelimit.Rule) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil {
			c.Next()
			return
		}

		key := fmt.Sprintf("%s:user:%d", name, c.GetUint(ContextUserID))
		res, err := limiter.Allow(c.Request.Context(), key, rule)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
				"error": "限流服务不可用",
				"code":  "SERVICE_UNAVAILABLE",
			})
			return
		}
		if res.Remaining >= 0 {
			c.Header("X-RateLimit-Limit", strconv.Itoa(rule.Limit))
			c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		}
		if !res.Allowed {
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(res.RetryAfter.Seconds()))))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "请求过于频繁",
				"code":  "RATE_LIMITED",
			})
			return
		}
		c.Next()
	}
}
