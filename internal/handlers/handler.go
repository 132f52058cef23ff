package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/Gopher0727/StudyGroup/internal/middlewares"
)

func currentUser(c *gin.Context) uint {
	return c.GetUint(middlewares.ContextUserID)
}

func uintParam(c *gin.Context, name string) (uint, bool) {
	v, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || v == 0 {
		badRequest(c, name, "参数格式错误")
		return 0, false
	}
	return uint(v), true
}

func int64Param(c *gin.Context, name string) (int64, bool) {
	v, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || v <= 0 {
		badRequest(c, name, "参数格式错误")
		return 0, false
	}
	return v, true
}
