package handler

import (
	"net/http"

	"carepackage/internal/middleware"
	"carepackage/internal/model"
	"carepackage/internal/service"
	"carepackage/pkg/pagination"
	"carepackage/pkg/response"

	"github.com/gin-gonic/gin"
)

type AuditHandler struct {
	auditService service.AuditService
	auth         *middleware.Auth
}

func NewAuditHandler(auditService service.AuditService, auth *middleware.Auth) *AuditHandler {
	return &AuditHandler{auditService: auditService, auth: auth}
}

func (h *AuditHandler) RegisterRoutes(router *gin.RouterGroup) {
	group := router.Group("/audit-logs")
	group.Use(h.auth.RequirePermission(model.PermAuditRead))
	{
		group.GET("", h.GetAuditLogs)
	}
}

// GetAuditLogs lists the recorded care package events, newest first
// @Summary      Get audit logs
// @Description  Retrieves the lifecycle event history, optionally for one client or one event kind
// @Tags         audit
// @Security     BearerAuth
// @Produce      json
// @Param        social_care_id  query     string  false  "Client social care id"
// @Param        action          query     string  false  "Event kind, e.g. CarePackageApproved"
// @Param        page            query     int     false  "Page number (default 1)"
// @Param        limit           query     int     false  "Number of items per page (default 20)"
// @Success      200             {object}  response.Response{data=response.Page}
// @Router       /api/audit-logs [get]
func (h *AuditHandler) GetAuditLogs(c *gin.Context) {
	p := pagination.Parse(c)

	logs, total, err := h.auditService.GetAuditLogs(c.Request.Context(), service.AuditLogQuery{
		SocialCareID: c.Query("social_care_id"),
		Action:       c.Query("action"),
		Page:         p.Page,
		Limit:        p.Limit,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Paged(logs, total, p.Page, p.Limit))
}
