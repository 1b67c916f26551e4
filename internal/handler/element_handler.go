package handler

import (
	"context"
	"net/http"

	"carepackage/internal/lifecycle"
	"carepackage/internal/middleware"
	"carepackage/internal/model"
	"carepackage/internal/service"
	"carepackage/pkg/response"

	"github.com/gin-gonic/gin"
)

type ElementHandler struct {
	elementService service.ElementService
	auth           *middleware.Auth
}

func NewElementHandler(elementService service.ElementService, auth *middleware.Auth) *ElementHandler {
	return &ElementHandler{elementService: elementService, auth: auth}
}

func (h *ElementHandler) RegisterRoutes(router *gin.RouterGroup) {
	read := h.auth.RequirePermission(model.PermReferralsRead)
	router.GET("/element-types", read, h.ListElementTypes)
	router.GET("/providers", read, h.ListProviders)

	elements := router.Group("/referrals/:id/elements")
	elements.Use(h.auth.RequirePermission(model.PermReferralsBroker))
	{
		elements.POST("", h.Create)
		elements.POST("/link", h.Link)
		elements.PUT("/:elementId", h.Edit)
		elements.DELETE("/:elementId", h.Delete)
		elements.POST("/:elementId/end", h.End)
		elements.POST("/:elementId/cancel", h.Cancel)
		elements.POST("/:elementId/suspend", h.Suspend)
		elements.POST("/:elementId/reset", h.Reset)
		elements.POST("/:elementId/stage-end", h.StageEnd)
		elements.POST("/:elementId/stage-cancellation", h.StageCancellation)
	}
}

type elementOp func(ctx context.Context, a lifecycle.Actor, referralID, elementID uint) (*service.ReferralResponse, error)

func (h *ElementHandler) run(c *gin.Context, op elementOp) {
	a, ok := actor(c)
	if !ok {
		return
	}
	referralID, ok := uintParam(c, "id")
	if !ok {
		return
	}
	elementID, ok := uintParam(c, "elementId")
	if !ok {
		return
	}
	ref, err := op(c.Request.Context(), a, referralID, elementID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, ref))
}

// ListElementTypes godoc
// @Summary      List element types
// @Tags         elements
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  response.Response{data=[]model.ElementType}
// @Router       /api/element-types [get]
func (h *ElementHandler) ListElementTypes(c *gin.Context) {
	types, err := h.elementService.ListElementTypes(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, types))
}

// ListProviders godoc
// @Summary      List providers
// @Tags         elements
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  response.Response{data=[]model.Provider}
// @Router       /api/providers [get]
func (h *ElementHandler) ListProviders(c *gin.Context) {
	providers, err := h.elementService.ListProviders(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, providers))
}

// Create godoc
// @Summary      Add an element to a package
// @Tags         elements
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      int                     true  "Referral ID"
// @Param        payload  body      service.ElementRequest  true  "Element"
// @Success      201      {object}  response.Response{data=service.ReferralResponse}
// @Failure      400      {object}  response.Response
// @Failure      422      {object}  response.Response
// @Router       /api/referrals/{id}/elements [post]
func (h *ElementHandler) Create(c *gin.Context) {
	var req service.ElementRequest
	if !mustBindJSON(c, &req) {
		return
	}
	a, ok := actor(c)
	if !ok {
		return
	}
	referralID, ok := uintParam(c, "id")
	if !ok {
		return
	}
	ref, err := h.elementService.Create(c.Request.Context(), a, referralID, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, ref))
}

// Link godoc
// @Summary      Carry an existing element into the package
// @Tags         elements
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      int                         true  "Referral ID"
// @Param        payload  body      service.LinkElementRequest  true  "Element to link"
// @Success      200      {object}  response.Response{data=service.ReferralResponse}
// @Failure      422      {object}  response.Response
// @Router       /api/referrals/{id}/elements/link [post]
func (h *ElementHandler) Link(c *gin.Context) {
	var req service.LinkElementRequest
	if !mustBindJSON(c, &req) {
		return
	}
	a, ok := actor(c)
	if !ok {
		return
	}
	referralID, ok := uintParam(c, "id")
	if !ok {
		return
	}
	ref, err := h.elementService.Link(c.Request.Context(), a, referralID, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, ref))
}

// Edit godoc
// @Summary      Edit an element
// @Description  Unapproved elements are changed in place; approved ones are replaced by a new element that points back at them
// @Tags         elements
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id         path      int                     true  "Referral ID"
// @Param        elementId  path      int                     true  "Element ID"
// @Param        payload    body      service.ElementRequest  true  "Element"
// @Success      200        {object}  response.Response{data=service.ReferralResponse}
// @Router       /api/referrals/{id}/elements/{elementId} [put]
func (h *ElementHandler) Edit(c *gin.Context) {
	var req service.ElementRequest
	if !mustBindJSON(c, &req) {
		return
	}
	h.run(c, func(ctx context.Context, a lifecycle.Actor, referralID, elementID uint) (*service.ReferralResponse, error) {
		return h.elementService.Edit(ctx, a, referralID, elementID, req)
	})
}

// Delete godoc
// @Summary      Remove an element from a package
// @Tags         elements
// @Security     BearerAuth
// @Produce      json
// @Param        id         path      int  true  "Referral ID"
// @Param        elementId  path      int  true  "Element ID"
// @Success      200        {object}  response.Response{data=service.ReferralResponse}
// @Router       /api/referrals/{id}/elements/{elementId} [delete]
func (h *ElementHandler) Delete(c *gin.Context) {
	h.run(c, h.elementService.Delete)
}

// Reset godoc
// @Summary      Undo pending changes to an element
// @Tags         elements
// @Security     BearerAuth
// @Produce      json
// @Param        id         path      int  true  "Referral ID"
// @Param        elementId  path      int  true  "Element ID"
// @Success      200        {object}  response.Response{data=service.ReferralResponse}
// @Router       /api/referrals/{id}/elements/{elementId}/reset [post]
func (h *ElementHandler) Reset(c *gin.Context) {
	h.run(c, h.elementService.Reset)
}

// End godoc
// @Summary      End an approved element
// @Tags         elements
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id         path      int                 true  "Referral ID"
// @Param        elementId  path      int                 true  "Element ID"
// @Param        payload    body      service.EndRequest  true  "End date"
// @Success      200        {object}  response.Response{data=service.ReferralResponse}
// @Router       /api/referrals/{id}/elements/{elementId}/end [post]
func (h *ElementHandler) End(c *gin.Context) {
	var req service.EndRequest
	if !mustBindJSON(c, &req) {
		return
	}
	h.run(c, func(ctx context.Context, a lifecycle.Actor, referralID, elementID uint) (*service.ReferralResponse, error) {
		return h.elementService.End(ctx, a, referralID, elementID, req)
	})
}

// Cancel godoc
// @Summary      Cancel an approved element
// @Tags         elements
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id         path      int                    true   "Referral ID"
// @Param        elementId  path      int                    true   "Element ID"
// @Param        payload    body      service.CancelRequest  false  "Comment"
// @Success      200        {object}  response.Response{data=service.ReferralResponse}
// @Router       /api/referrals/{id}/elements/{elementId}/cancel [post]
func (h *ElementHandler) Cancel(c *gin.Context) {
	var req service.CancelRequest
	if !bindJSON(c, &req) {
		return
	}
	h.run(c, func(ctx context.Context, a lifecycle.Actor, referralID, elementID uint) (*service.ReferralResponse, error) {
		return h.elementService.Cancel(ctx, a, referralID, elementID, req)
	})
}

// Suspend godoc
// @Summary      Suspend an approved element
// @Tags         elements
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id         path      int                     true  "Referral ID"
// @Param        elementId  path      int                     true  "Element ID"
// @Param        payload    body      service.SuspendRequest  true  "Suspension window"
// @Success      200        {object}  response.Response{data=service.ReferralResponse}
// @Router       /api/referrals/{id}/elements/{elementId}/suspend [post]
func (h *ElementHandler) Suspend(c *gin.Context) {
	var req service.SuspendRequest
	if !mustBindJSON(c, &req) {
		return
	}
	h.run(c, func(ctx context.Context, a lifecycle.Actor, referralID, elementID uint) (*service.ReferralResponse, error) {
		return h.elementService.Suspend(ctx, a, referralID, elementID, req)
	})
}

// StageEnd godoc
// @Summary      Stage an end date for approval
// @Description  Records an end date that takes effect when the package is approved
// @Tags         elements
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id         path      int                 true  "Referral ID"
// @Param        elementId  path      int                 true  "Element ID"
// @Param        payload    body      service.EndRequest  true  "End date"
// @Success      200        {object}  response.Response{data=service.ReferralResponse}
// @Router       /api/referrals/{id}/elements/{elementId}/stage-end [post]
func (h *ElementHandler) StageEnd(c *gin.Context) {
	var req service.EndRequest
	if !mustBindJSON(c, &req) {
		return
	}
	h.run(c, func(ctx context.Context, a lifecycle.Actor, referralID, elementID uint) (*service.ReferralResponse, error) {
		return h.elementService.StageEnd(ctx, a, referralID, elementID, req)
	})
}

// StageCancellation godoc
// @Summary      Stage a cancellation for approval
// @Tags         elements
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id         path      int                    true   "Referral ID"
// @Param        elementId  path      int                    true   "Element ID"
// @Param        payload    body      service.CancelRequest  false  "Comment"
// @Success      200        {object}  response.Response{data=service.ReferralResponse}
// @Router       /api/referrals/{id}/elements/{elementId}/stage-cancellation [post]
func (h *ElementHandler) StageCancellation(c *gin.Context) {
	var req service.CancelRequest
	if !bindJSON(c, &req) {
		return
	}
	h.run(c, func(ctx context.Context, a lifecycle.Actor, referralID, elementID uint) (*service.ReferralResponse, error) {
		return h.elementService.StageCancellation(ctx, a, referralID, elementID, req)
	})
}
