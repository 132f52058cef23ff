package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Gopher0727/StudyGroup/internal/services"
	logger "github.com/Gopher0727/StudyGroup/middleware/log"
)

// MemberHandler 小组成员
type MemberHandler struct {
	enrollment *services.EnrollmentService
	query      *services.GroupQueryService
	log        *logger.Logger
}

func NewMemberHandler(enrollment *services.EnrollmentService, query *services.GroupQueryService, log *logger.Logger) *MemberHandler {
	return &MemberHandler{enrollment: enrollment, query: query, log: log}
}

// ListMembers GET /studies/:uuid/members
func (h *MemberHandler) ListMembers(c *gin.Context) {
	members, err := h.query.ListMembers(c.Request.Context(), currentUser(c), c.Param("uuid"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	success(c, http.StatusOK, members)
}

// RemoveMember DELETE /studies/:uuid/members/:member_id
func (h *MemberHandler) RemoveMember(c *gin.Context) {
	memberID, ok := uintParam(c, "member_id")
	if !ok {
		return
	}
	if err := h.enrollment.RemoveMember(c.Request.Context(), currentUser(c), c.Param("uuid"), memberID); err != nil {
		respondError(c, h.log, err)
		return
	}
	c.Status(http.StatusNoContent)
}
