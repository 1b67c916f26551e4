package handler

import (
	"context"
	"net/http"

	"carepackage/internal/lifecycle"
	"carepackage/internal/middleware"
	"carepackage/internal/model"
	"carepackage/internal/service"
	"carepackage/pkg/pagination"
	"carepackage/pkg/response"

	"github.com/gin-gonic/gin"
)

type ReferralHandler struct {
	referralService service.ReferralService
	auth            *middleware.Auth
}

func NewReferralHandler(referralService service.ReferralService, auth *middleware.Auth) *ReferralHandler {
	return &ReferralHandler{referralService: referralService, auth: auth}
}

func (h *ReferralHandler) RegisterRoutes(router *gin.RouterGroup) {
	read := h.auth.RequirePermission(model.PermReferralsRead)
	assign := h.auth.RequirePermission(model.PermReferralsAssign)
	broker := h.auth.RequirePermission(model.PermReferralsBroker)
	approve := h.auth.RequirePermission(model.PermReferralsApprove)
	charges := h.auth.RequirePermission(model.PermCareChargesManage)

	router.GET("/clients/:socialCareId/referrals", read, h.ListClientReferrals)

	refs := router.Group("/referrals")
	{
		refs.GET("", read, h.ListReferrals)
		refs.POST("", assign, h.CreateReferral)
		refs.GET("/:id", read, h.GetReferral)
		refs.GET("/:id/estimated-yearly-cost", read, h.EstimatedYearlyCost)

		refs.POST("/:id/assign-broker", assign, h.AssignBroker)
		refs.POST("/:id/reassign-broker", assign, h.ReassignBroker)

		refs.POST("/:id/start", broker, h.Start)
		refs.POST("/:id/assign-approver", broker, h.AssignApprover)
		refs.POST("/:id/amendments/:amendmentId/resolve", broker, h.ResolveAmendment)
		refs.POST("/:id/end", broker, h.End)
		refs.POST("/:id/cancel", broker, h.Cancel)
		refs.POST("/:id/suspend", broker, h.Suspend)
		refs.POST("/:id/archive", broker, h.Archive)

		refs.POST("/:id/approve", approve, h.Approve)
		refs.POST("/:id/request-amendment", approve, h.RequestAmendment)
		refs.POST("/:id/follow-ups", approve, h.RequestFollowUp)
		refs.POST("/:id/follow-ups/:followUpId/resolve", approve, h.ResolveFollowUp)

		refs.POST("/:id/confirm-care-charges", charges, h.ConfirmCareCharges)
	}
}

type referralOp func(ctx context.Context, a lifecycle.Actor, id uint) (*service.ReferralResponse, error)

// run resolves the caller and the :id parameter, then answers with the
// referral as it stands after op.
func (h *ReferralHandler) run(c *gin.Context, op referralOp) {
	a, ok := actor(c)
	if !ok {
		return
	}
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	ref, err := op(c.Request.Context(), a, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, ref))
}

// ListReferrals godoc
// @Summary      List referrals
// @Tags         referrals
// @Security     BearerAuth
// @Produce      json
// @Param        status        query     string  false  "Referral status"
// @Param        broker_email  query     string  false  "Assigned broker"
// @Param        page          query     int     false  "Page number (default 1)"
// @Param        limit         query     int     false  "Items per page (default 20)"
// @Success      200           {object}  response.Response{data=response.Page}
// @Router       /api/referrals [get]
func (h *ReferralHandler) ListReferrals(c *gin.Context) {
	p := pagination.Parse(c)
	refs, total, err := h.referralService.ListReferrals(c.Request.Context(), service.ReferralListRequest{
		Status:      c.Query("status"),
		BrokerEmail: c.Query("broker_email"),
		Page:        p.Page,
		Limit:       p.Limit,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Paged(refs, total, p.Page, p.Limit))
}

// ListClientReferrals godoc
// @Summary      List a client's referrals
// @Tags         referrals
// @Security     BearerAuth
// @Produce      json
// @Param        socialCareId  path      string  true  "Client social care id"
// @Success      200           {object}  response.Response{data=[]service.ReferralSummary}
// @Router       /api/clients/{socialCareId}/referrals [get]
func (h *ReferralHandler) ListClientReferrals(c *gin.Context) {
	refs, err := h.referralService.ListClientReferrals(c.Request.Context(), c.Param("socialCareId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, refs))
}

// CreateReferral godoc
// @Summary      Receive a referral
// @Description  Registers a new, unassigned care package for a client
// @Tags         referrals
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.CreateReferralRequest  true  "Referral"
// @Success      201      {object}  response.Response{data=service.ReferralResponse}
// @Failure      400      {object}  response.Response
// @Router       /api/referrals [post]
func (h *ReferralHandler) CreateReferral(c *gin.Context) {
	var req service.CreateReferralRequest
	if !mustBindJSON(c, &req) {
		return
	}
	ref, err := h.referralService.CreateReferral(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, ref))
}

// GetReferral godoc
// @Summary      Get a referral with its elements
// @Tags         referrals
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      int  true  "Referral ID"
// @Success      200  {object}  response.Response{data=service.ReferralResponse}
// @Failure      404  {object}  response.Response
// @Router       /api/referrals/{id} [get]
func (h *ReferralHandler) GetReferral(c *gin.Context) {
	h.run(c, func(ctx context.Context, _ lifecycle.Actor, id uint) (*service.ReferralResponse, error) {
		return h.referralService.GetReferral(ctx, id)
	})
}

// EstimatedYearlyCost godoc
// @Summary      Estimated yearly cost
// @Tags         referrals
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      int  true  "Referral ID"
// @Success      200  {object}  response.Response{data=service.CostResponse}
// @Failure      404  {object}  response.Response
// @Router       /api/referrals/{id}/estimated-yearly-cost [get]
func (h *ReferralHandler) EstimatedYearlyCost(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	cost, err := h.referralService.EstimatedYearlyCost(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, cost))
}

// AssignBroker godoc
// @Summary      Assign a broker
// @Tags         referrals
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      int                          true  "Referral ID"
// @Param        payload  body      service.AssignBrokerRequest  true  "Broker"
// @Success      200      {object}  response.Response{data=service.ReferralResponse}
// @Failure      404      {object}  response.Response
// @Failure      422      {object}  response.Response
// @Router       /api/referrals/{id}/assign-broker [post]
func (h *ReferralHandler) AssignBroker(c *gin.Context) {
	var req service.AssignBrokerRequest
	if !mustBindJSON(c, &req) {
		return
	}
	h.run(c, func(ctx context.Context, a lifecycle.Actor, id uint) (*service.ReferralResponse, error) {
		return h.referralService.AssignBroker(ctx, a, id, req)
	})
}

// ReassignBroker godoc
// @Summary      Reassign the broker
// @Tags         referrals
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      int                          true  "Referral ID"
// @Param        payload  body      service.AssignBrokerRequest  true  "Broker"
// @Success      200      {object}  response.Response{data=service.ReferralResponse}
// @Router       /api/referrals/{id}/reassign-broker [post]
func (h *ReferralHandler) ReassignBroker(c *gin.Context) {
	var req service.AssignBrokerRequest
	if !mustBindJSON(c, &req) {
		return
	}
	h.run(c, func(ctx context.Context, a lifecycle.Actor, id uint) (*service.ReferralResponse, error) {
		return h.referralService.ReassignBroker(ctx, a, id, req)
	})
}

// Start godoc
// @Summary      Start work on a package
// @Tags         referrals
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      int  true  "Referral ID"
// @Success      200  {object}  response.Response{data=service.ReferralResponse}
// @Failure      403  {object}  response.Response
// @Router       /api/referrals/{id}/start [post]
func (h *ReferralHandler) Start(c *gin.Context) {
	h.run(c, h.referralService.Start)
}

// AssignApprover godoc
// @Summary      Submit for approval
// @Description  Assigns a budget approver whose limit covers the estimated yearly cost
// @Tags         referrals
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      int                            true  "Referral ID"
// @Param        payload  body      service.AssignApproverRequest  true  "Approver"
// @Success      200      {object}  response.Response{data=service.ReferralResponse}
// @Failure      403      {object}  response.Response
// @Router       /api/referrals/{id}/assign-approver [post]
func (h *ReferralHandler) AssignApprover(c *gin.Context) {
	var req service.AssignApproverRequest
	if !mustBindJSON(c, &req) {
		return
	}
	h.run(c, func(ctx context.Context, a lifecycle.Actor, id uint) (*service.ReferralResponse, error) {
		return h.referralService.AssignApprover(ctx, a, id, req)
	})
}

// Approve godoc
// @Summary      Approve a package
// @Description  Approves the package as the calling approver and runs the approval cascade
// @Tags         referrals
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      int  true  "Referral ID"
// @Success      200  {object}  response.Response{data=service.ReferralResponse}
// @Failure      403  {object}  response.Response
// @Failure      422  {object}  response.Response
// @Router       /api/referrals/{id}/approve [post]
func (h *ReferralHandler) Approve(c *gin.Context) {
	h.run(c, h.referralService.Approve)
}

// RequestAmendment godoc
// @Summary      Send a package back for amendment
// @Tags         referrals
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      int                     true  "Referral ID"
// @Param        payload  body      service.CommentRequest  true  "Amendment"
// @Success      200      {object}  response.Response{data=service.ReferralResponse}
// @Router       /api/referrals/{id}/request-amendment [post]
func (h *ReferralHandler) RequestAmendment(c *gin.Context) {
	var req service.CommentRequest
	if !mustBindJSON(c, &req) {
		return
	}
	h.run(c, func(ctx context.Context, a lifecycle.Actor, id uint) (*service.ReferralResponse, error) {
		return h.referralService.RequestAmendment(ctx, a, id, req)
	})
}

// ResolveAmendment godoc
// @Summary      Resolve an amendment
// @Tags         referrals
// @Security     BearerAuth
// @Produce      json
// @Param        id           path      int  true  "Referral ID"
// @Param        amendmentId  path      int  true  "Amendment ID"
// @Success      200          {object}  response.Response{data=service.ReferralResponse}
// @Router       /api/referrals/{id}/amendments/{amendmentId}/resolve [post]
func (h *ReferralHandler) ResolveAmendment(c *gin.Context) {
	amendmentID, ok := uintParam(c, "amendmentId")
	if !ok {
		return
	}
	h.run(c, func(ctx context.Context, a lifecycle.Actor, id uint) (*service.ReferralResponse, error) {
		return h.referralService.ResolveAmendment(ctx, a, id, amendmentID)
	})
}

// RequestFollowUp godoc
// @Summary      Schedule a follow-up
// @Tags         referrals
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      int                      true  "Referral ID"
// @Param        payload  body      service.FollowUpRequest  true  "Follow-up"
// @Success      200      {object}  response.Response{data=service.ReferralResponse}
// @Router       /api/referrals/{id}/follow-ups [post]
func (h *ReferralHandler) RequestFollowUp(c *gin.Context) {
	var req service.FollowUpRequest
	if !mustBindJSON(c, &req) {
		return
	}
	h.run(c, func(ctx context.Context, a lifecycle.Actor, id uint) (*service.ReferralResponse, error) {
		return h.referralService.RequestFollowUp(ctx, a, id, req)
	})
}

// ResolveFollowUp godoc
// @Summary      Resolve a follow-up
// @Tags         referrals
// @Security     BearerAuth
// @Produce      json
// @Param        id          path      int  true  "Referral ID"
// @Param        followUpId  path      int  true  "Follow-up ID"
// @Success      200         {object}  response.Response{data=service.ReferralResponse}
// @Router       /api/referrals/{id}/follow-ups/{followUpId}/resolve [post]
func (h *ReferralHandler) ResolveFollowUp(c *gin.Context) {
	followUpID, ok := uintParam(c, "followUpId")
	if !ok {
		return
	}
	h.run(c, func(ctx context.Context, a lifecycle.Actor, id uint) (*service.ReferralResponse, error) {
		return h.referralService.ResolveFollowUp(ctx, a, id, followUpID)
	})
}

// End godoc
// @Summary      End an approved package
// @Tags         referrals
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      int                 true  "Referral ID"
// @Param        payload  body      service.EndRequest  true  "End date"
// @Success      200      {object}  response.Response{data=service.ReferralResponse}
// @Router       /api/referrals/{id}/end [post]
func (h *ReferralHandler) End(c *gin.Context) {
	var req service.EndRequest
	if !mustBindJSON(c, &req) {
		return
	}
	h.run(c, func(ctx context.Context, a lifecycle.Actor, id uint) (*service.ReferralResponse, error) {
		return h.referralService.End(ctx, a, id, req)
	})
}

// Cancel godoc
// @Summary      Cancel an approved package
// @Tags         referrals
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      int                    true   "Referral ID"
// @Param        payload  body      service.CancelRequest  false  "Comment"
// @Success      200      {object}  response.Response{data=service.ReferralResponse}
// @Router       /api/referrals/{id}/cancel [post]
func (h *ReferralHandler) Cancel(c *gin.Context) {
	var req service.CancelRequest
	if !bindJSON(c, &req) {
		return
	}
	h.run(c, func(ctx context.Context, a lifecycle.Actor, id uint) (*service.ReferralResponse, error) {
		return h.referralService.Cancel(ctx, a, id, req)
	})
}

// Suspend godoc
// @Summary      Suspend an approved package
// @Tags         referrals
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      int                     true  "Referral ID"
// @Param        payload  body      service.SuspendRequest  true  "Suspension window"
// @Success      200      {object}  response.Response{data=service.ReferralResponse}
// @Router       /api/referrals/{id}/suspend [post]
func (h *ReferralHandler) Suspend(c *gin.Context) {
	var req service.SuspendRequest
	if !mustBindJSON(c, &req) {
		return
	}
	h.run(c, func(ctx context.Context, a lifecycle.Actor, id uint) (*service.ReferralResponse, error) {
		return h.referralService.Suspend(ctx, a, id, req)
	})
}

// Archive godoc
// @Summary      Archive a package in progress
// @Tags         referrals
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      int                     true  "Referral ID"
// @Param        payload  body      service.CommentRequest  true  "Reason"
// @Success      200      {object}  response.Response{data=service.ReferralResponse}
// @Router       /api/referrals/{id}/archive [post]
func (h *ReferralHandler) Archive(c *gin.Context) {
	var req service.CommentRequest
	if !bindJSON(c, &req) {
		return
	}
	h.run(c, func(ctx context.Context, a lifecycle.Actor, id uint) (*service.ReferralResponse, error) {
		return h.referralService.Archive(ctx, a, id, req)
	})
}

// ConfirmCareCharges godoc
// @Summary      Confirm care charges
// @Tags         care-charges
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      int  true  "Referral ID"
// @Success      200  {object}  response.Response{data=service.ReferralResponse}
// @Router       /api/referrals/{id}/confirm-care-charges [post]
func (h *ReferralHandler) ConfirmCareCharges(c *gin.Context) {
	h.run(c, h.referralService.ConfirmCareCharges)
}
