package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Gopher0727/StudyGroup/internal/services"
	logger "github.com/Gopher0727/StudyGroup/middleware/log"
)

// StudyHandler 小组的创建、查询、修改、删除
type StudyHandler struct {
	enrollment *services.EnrollmentService
	query      *services.GroupQueryService
	log        *logger.Logger
}

func NewStudyHandler(enrollment *services.EnrollmentService, query *services.GroupQueryService, log *logger.Logger) *StudyHandler {
	return &StudyHandler{enrollment: enrollment, query: query, log: log}
}

// CreateStudy POST /studies
func (h *StudyHandler) CreateStudy(c *gin.Context) {
	var req services.CreateGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "", "请求格式错误")
		return
	}

	detail, err := h.enrollment.CreateGroup(c.Request.Context(), currentUser(c), &req)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	success(c, http.StatusCreated, detail)
}

// ListStudies GET /studies?search=&category=&tag=&limit=&offset=
func (h *StudyHandler) ListStudies(c *gin.Context) {
	var q services.ListGroupsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, "", "查询参数格式错误")
		return
	}

	groups, err := h.query.ListGroups(c.Request.Context(), q)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	success(c, http.StatusOK, groups)
}

// GetStudy GET /studies/:uuid
func (h *StudyHandler) GetStudy(c *gin.Context) {
	detail, err := h.query.GetGroup(c.Request.Context(), c.Param("uuid"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	success(c, http.StatusOK, detail)
}

// UpdateStudy PUT /studies/:uuid
func (h *StudyHandler) UpdateStudy(c *gin.Context) {
	var patch services.UpdateGroupRequest
	if err := c.ShouldBindJSON(&patch); err != nil {
		badRequest(c, "", "请求格式错误")
		return
	}

	detail, err := h.enrollment.UpdateGroup(c.Request.Context(), currentUser(c), c.Param("uuid"), &patch)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	success(c, http.StatusOK, detail)
}

// DeleteStudy DELETE /studies/:uuid
func (h *StudyHandler) DeleteStudy(c *gin.Context) {
	if err := h.enrollment.DeleteGroup(c.Request.Context(), currentUser(c), c.Param("uuid")); err != nil {
		respondError(c, h.log, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ListMyStudies GET /users/me/studies
func (h *StudyHandler) ListMyStudies(c *gin.Context) {
	groups, err := h.query.ListMyGroups(c.Request.Context(), currentUser(c))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	success(c, http.StatusOK, groups)
}
