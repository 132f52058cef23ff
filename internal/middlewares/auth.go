package middlewares

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Gopher0727/StudyGroup/middleware/jwt"
	logger "github.com/Gopher0727/StudyGroup/middleware/log"
)

const (
	// ContextUserID gin.Context 中保存当前用户 ID 的键
	ContextUserID   = "user_id"
	ContextUserName = "user_name"
)

// AuthMiddleware 校验 Authorization: Bearer <token>
func AuthMiddleware(tm *jwt.TokenManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := ""
		parts := strings.SplitN(c.GetHeader("Authorization"), " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			token = strings.TrimSpace(parts[1])
		}
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "未提供认证 Token",
				"code":  "UNAUTHORIZED",
			})
			return
		}

		claims, err := tm.ParseToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Token 无效或已过期",
				"code":  "UNAUTHORIZED",
			})
			return
		}

		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextUserName, claims.UserName)
		c.Request = c.Request.WithContext(logger.WithUserID(c.Request.Context(), claims.UserID))
		c.Next()
	}
}
