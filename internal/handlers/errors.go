package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Gopher0727/StudyGroup/internal/policy"
	"github.com/Gopher0727/StudyGroup/internal/services"
	logger "github.com/Gopher0727/StudyGroup/middleware/log"
)

// 对外的错误码，客户端按 code 判断，不依赖 error 文案
const (
	CodeValidation       = "VALIDATION"
	CodeInvalidDates     = "INVALID_DATES"
	CodeInvalidCapacity  = "INVALID_CAPACITY"
	CodeUnauthorized     = "UNAUTHORIZED"
	CodeForbidden        = "FORBIDDEN"
	CodeGroupNotFound    = "GROUP_NOT_FOUND"
	CodeRequestNotFound  = "REQUEST_NOT_FOUND"
	CodeMemberNotFound   = "MEMBER_NOT_FOUND"
	CodeGroupClosed      = "GROUP_CLOSED"
	CodeAlreadyMember    = "ALREADY_MEMBER"
	CodeDuplicatePending = "DUPLICATE_PENDING"
	CodeAlreadyProcessed = "ALREADY_PROCESSED"
	CodeLastLeader       = "LAST_LEADER"
	CodeInternal         = "INTERNAL"
)

var errorTable = []struct {
	err    error
	status int
	code   string
}{
	{policy.ErrDateOrder, http.StatusBadRequest, CodeInvalidDates},
	{policy.ErrCapacity, http.StatusBadRequest, CodeInvalidCapacity},
	{services.ErrValidation, http.StatusBadRequest, CodeValidation},
	{services.ErrForbidden, http.StatusForbidden, CodeForbidden},
	{services.ErrGroupNotFound, http.StatusNotFound, CodeGroupNotFound},
	{services.ErrRequestNotFound, http.StatusNotFound, CodeRequestNotFound},
	{services.ErrMemberNotFound, http.StatusNotFound, CodeMemberNotFound},
	{services.ErrGroupClosed, http.StatusConflict, CodeGroupClosed},
	{services.ErrAlreadyMember, http.StatusBadRequest, CodeAlreadyMember},
	{services.ErrDuplicatePending, http.StatusBadRequest, CodeDuplicatePending},
	{services.ErrAlreadyProcessed, http.StatusBadRequest, CodeAlreadyProcessed},
	{services.ErrLastLeader, http.StatusConflict, CodeLastLeader},
}

// ErrorResponse 统一的错误响应体
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
	Field string `json:"field,omitempty"`
}

// errorOption 按接口调整个别错误的状态码
type errorOption func(err error, status int) int

// closedAsBadRequest 提交申请时小组已关闭按 400 返回
func closedAsBadRequest(err error, status int) int {
	if errors.Is(err, services.ErrGroupClosed) {
		return http.StatusBadRequest
	}
	return status
}

func respondError(c *gin.Context, log *logger.Logger, err error, opts ...errorOption) {
	for _, e := range errorTable {
		if !errors.Is(err, e.err) {
			continue
		}
		status := e.status
		for _, opt := range opts {
			status = opt(err, status)
		}
		c.AbortWithStatusJSON(status, ErrorResponse{Error: err.Error(), Code: e.code, Field: fieldOf(err)})
		return
	}

	log.ErrorContext(c.Request.Context(), "request failed",
		zap.String("path", c.FullPath()),
		zap.Error(err),
	)
	c.AbortWithStatusJSON(http.StatusInternalServerError, ErrorResponse{Error: "服务器内部错误", Code: CodeInternal})
}

func fieldOf(err error) string {
	var fe *services.FieldError
	if errors.As(err, &fe) {
		return fe.Field
	}
	var de *policy.DateOrderError
	if errors.As(err, &de) {
		return de.Field
	}
	if errors.Is(err, policy.ErrCapacity) {
		return "member_limit"
	}
	return ""
}

func badRequest(c *gin.Context, field, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Error: msg, Code: CodeValidation, Field: field})
}

func success(c *gin.Context, status int, data any) {
	c.JSON(status, gin.H{
		"message": "success",
		"data":    data,
	})
}
