package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Gopher0727/StudyGroup/internal/services"
	logger "github.com/Gopher0727/StudyGroup/middleware/log"
)

type CategoryHandler struct {
	query *services.GroupQueryService
	log   *logger.Logger
}

func NewCategoryHandler(query *services.GroupQueryService, log *logger.Logger) *CategoryHandler {
	return &CategoryHandler{query: query, log: log}
}

// ListCategories GET /categories
func (h *CategoryHandler) ListCategories(c *gin.Context) {
	names, err := h.query.ListCategories(c.Request.Context())
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	success(c, http.StatusOK, names)
}
