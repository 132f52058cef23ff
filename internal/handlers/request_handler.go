package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Gopher0727/StudyGroup/internal/services"
	logger "github.com/Gopher0727/StudyGroup/middleware/log"
)

// RequestHandler 入组申请
type RequestHandler struct {
	enrollment *services.EnrollmentService
	log        *logger.Logger
}

func NewRequestHandler(enrollment *services.EnrollmentService, log *logger.Logger) *RequestHandler {
	return &RequestHandler{enrollment: enrollment, log: log}
}

// SubmitRequest POST /studies/:uuid/requests
func (h *RequestHandler) SubmitRequest(c *gin.Context) {
	var req services.JoinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "", "请求格式错误")
		return
	}

	view, err := h.enrollment.RequestJoin(c.Request.Context(), currentUser(c), c.Param("uuid"), req.RequestMessage)
	if err != nil {
		respondError(c, h.log, err, closedAsBadRequest)
		return
	}
	success(c, http.StatusCreated, view)
}

// ListPending GET /studies/:uuid/requests
func (h *RequestHandler) ListPending(c *gin.Context) {
	views, err := h.enrollment.ListPending(c.Request.Context(), currentUser(c), c.Param("uuid"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	success(c, http.StatusOK, views)
}

// ApproveRequest POST /studies/:uuid/requests/:request_id
func (h *RequestHandler) ApproveRequest(c *gin.Context) {
	h.decide(c, services.Approve)
}

// RejectRequest DELETE /studies/:uuid/requests/:request_id
func (h *RequestHandler) RejectRequest(c *gin.Context) {
	h.decide(c, services.Reject)
}

func (h *RequestHandler) decide(c *gin.Context, d services.Decision) {
	requestID, ok := int64Param(c, "request_id")
	if !ok {
		return
	}
	view, err := h.enrollment.DecideRequest(c.Request.Context(), currentUser(c), c.Param("uuid"), requestID, d)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	success(c, http.StatusOK, view)
}
