package service

import (
	"context"
	"strings"
	"time"

	"carepackage/internal/lifecycle"
	"carepackage/internal/model"
	"carepackage/internal/repository"
	"carepackage/pkg/apperror"

	"github.com/shopspring/decimal"
)

// DTOs for request validation
type CreateReferralRequest struct {
	SocialCareID string `json:"social_care_id" binding:"required"`
	ResidentName string `json:"resident_name" binding:"required"`
	FormName     string `json:"form_name"`
}

type AssignBrokerRequest struct {
	BrokerEmail string `json:"broker_email" binding:"required,email"`
}

type AssignApproverRequest struct {
	ApproverEmail string `json:"approver_email" binding:"required,email"`
}

type CommentRequest struct {
	Comment string `json:"comment"`
}

type FollowUpRequest struct {
	Comment string `json:"comment"`
	Date    string `json:"date" binding:"required"`
}

type EndRequest struct {
	EndDate string  `json:"end_date" binding:"required"`
	Comment *string `json:"comment"`
}

type CancelRequest struct {
	Comment *string `json:"comment"`
}

type SuspendRequest struct {
	StartDate string  `json:"start_date" binding:"required"`
	EndDate   *string `json:"end_date"`
	Comment   *string `json:"comment"`
}

type ReferralListRequest struct {
	Status      string
	BrokerEmail string
	Page        int
	Limit       int
}

// ReferralSummary is the list view of a referral, without its elements.
type ReferralSummary struct {
	ID                    uint    `json:"id"`
	SocialCareID          string  `json:"social_care_id"`
	ResidentName          string  `json:"resident_name"`
	FormName              string  `json:"form_name"`
	Status                string  `json:"status"`
	AssignedBrokerEmail   *string `json:"assigned_broker_email"`
	AssignedApproverEmail *string `json:"assigned_approver_email"`
	CareChargeStatus      string  `json:"care_charge_status,omitempty"`
	UpdatedAt             string  `json:"updated_at"`
}

type AmendmentResponse struct {
	ID          uint   `json:"id"`
	Comment     string `json:"comment"`
	Status      string `json:"status"`
	RequestedAt string `json:"requested_at"`
}

type FollowUpResponse struct {
	ID               uint   `json:"id"`
	Comment          string `json:"comment"`
	Date             string `json:"date"`
	Status           string `json:"status"`
	RequestedAt      string `json:"requested_at"`
	RequestedByEmail string `json:"requested_by_email"`
}

// ReferralResponse is the full care package view.
type ReferralResponse struct {
	ReferralSummary
	IsResidential          bool                `json:"is_residential"`
	CareChargesConfirmedAt *string             `json:"care_charges_confirmed_at"`
	Comment                *string             `json:"comment"`
	StartedAt              *string             `json:"started_at"`
	EstimatedYearlyCost    decimal.Decimal     `json:"estimated_yearly_cost"`
	Elements               []ElementResponse   `json:"elements"`
	Amendments             []AmendmentResponse `json:"amendments"`
	FollowUps              []FollowUpResponse  `json:"follow_ups"`
}

type CostResponse struct {
	ReferralID          uint            `json:"referral_id"`
	EstimatedYearlyCost decimal.Decimal `json:"estimated_yearly_cost"`
}

// ReferralService drives the referral lifecycle: brokerage, approval and the
// post-approval end, cancel and suspend operations.
type ReferralService interface {
	CreateReferral(ctx context.Context, req CreateReferralRequest) (*ReferralResponse, error)
	GetReferral(ctx context.Context, id uint) (*ReferralResponse, error)
	ListReferrals(ctx context.Context, req ReferralListRequest) ([]ReferralSummary, int64, error)
	ListClientReferrals(ctx context.Context, socialCareID string) ([]ReferralSummary, error)
	EstimatedYearlyCost(ctx context.Context, id uint) (*CostResponse, error)

	AssignBroker(ctx context.Context, actor lifecycle.Actor, id uint, req AssignBrokerRequest) (*ReferralResponse, error)
	ReassignBroker(ctx context.Context, actor lifecycle.Actor, id uint, req AssignBrokerRequest) (*ReferralResponse, error)
	Start(ctx context.Context, actor lifecycle.Actor, id uint) (*ReferralResponse, error)
	AssignApprover(ctx context.Context, actor lifecycle.Actor, id uint, req AssignApproverRequest) (*ReferralResponse, error)
	Approve(ctx context.Context, actor lifecycle.Actor, id uint) (*ReferralResponse, error)
	RequestAmendment(ctx context.Context, actor lifecycle.Actor, id uint, req CommentRequest) (*ReferralResponse, error)
	ResolveAmendment(ctx context.Context, actor lifecycle.Actor, id, amendmentID uint) (*ReferralResponse, error)
	RequestFollowUp(ctx context.Context, actor lifecycle.Actor, id uint, req FollowUpRequest) (*ReferralResponse, error)
	ResolveFollowUp(ctx context.Context, actor lifecycle.Actor, id, followUpID uint) (*ReferralResponse, error)
	End(ctx context.Context, actor lifecycle.Actor, id uint, req EndRequest) (*ReferralResponse, error)
	Cancel(ctx context.Context, actor lifecycle.Actor, id uint, req CancelRequest) (*ReferralResponse, error)
	Suspend(ctx context.Context, actor lifecycle.Actor, id uint, req SuspendRequest) (*ReferralResponse, error)
	Archive(ctx context.Context, actor lifecycle.Actor, id uint, req CommentRequest) (*ReferralResponse, error)
	ConfirmCareCharges(ctx context.Context, actor lifecycle.Actor, id uint) (*ReferralResponse, error)
}

type referralService struct {
	Deps
}

// NewReferralService returns a new instance of ReferralService
func NewReferralService(deps Deps) ReferralService {
	return &referralService{Deps: deps.withDefaults()}
}

func (s *referralService) CreateReferral(ctx context.Context, req CreateReferralRequest) (*ReferralResponse, error) {
	now := s.Clock.Now()
	ref := &model.Referral{
		SocialCareID: strings.TrimSpace(req.SocialCareID),
		ResidentName: strings.TrimSpace(req.ResidentName),
		FormName:     req.FormName,
		Status:       model.ReferralUnassigned,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if ref.SocialCareID == "" {
		return nil, apperror.Validation("social_care_id is required")
	}
	if err := s.Referrals.Create(ctx, ref); err != nil {
		return nil, err
	}
	s.Log.Info("referral received", "referral_id", ref.ID)
	return s.view(ctx, ref)
}

func (s *referralService) GetReferral(ctx context.Context, id uint) (*ReferralResponse, error) {
	ref, err := s.Referrals.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.view(ctx, ref)
}

func (s *referralService) ListReferrals(ctx context.Context, req ReferralListRequest) ([]ReferralSummary, int64, error) {
	page, limit := normalizePage(req.Page, req.Limit)
	refs, total, err := s.Referrals.List(ctx, repository.ReferralFilter{
		Status:      req.Status,
		BrokerEmail: req.BrokerEmail,
		Page:        page,
		Limit:       limit,
	})
	if err != nil {
		return nil, 0, err
	}

	res := make([]ReferralSummary, 0, len(refs))
	for i := range refs {
		res = append(res, mapSummary(&refs[i]))
	}
	return res, total, nil
}

func (s *referralService) ListClientReferrals(ctx context.Context, socialCareID string) ([]ReferralSummary, error) {
	refs, err := s.Referrals.FindBySocialCareID(ctx, socialCareID)
	if err != nil {
		return nil, err
	}
	res := make([]ReferralSummary, 0, len(refs))
	for _, ref := range refs {
		res = append(res, mapSummary(ref))
	}
	return res, nil
}

func (s *referralService) EstimatedYearlyCost(ctx context.Context, id uint) (*CostResponse, error) {
	ref, err := s.Referrals.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return &CostResponse{ReferralID: ref.ID, EstimatedYearlyCost: ref.EstimatedYearlyCost(s.Clock.Today())}, nil
}

func (s *referralService) AssignBroker(ctx context.Context, actor lifecycle.Actor, id uint, req AssignBrokerRequest) (*ReferralResponse, error) {
	return s.assignBroker(ctx, actor, id, req, lifecycle.AssignBroker)
}

func (s *referralService) ReassignBroker(ctx context.Context, actor lifecycle.Actor, id uint, req AssignBrokerRequest) (*ReferralResponse, error) {
	return s.assignBroker(ctx, actor, id, req, lifecycle.ReassignBroker)
}

func (s *referralService) assignBroker(
	ctx context.Context,
	actor lifecycle.Actor,
	id uint,
	req AssignBrokerRequest,
	op func(*model.Referral, *model.User, time.Time) (lifecycle.Event, error),
) (*ReferralResponse, error) {
	ref, err := s.Referrals.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	broker, err := s.findUser(ctx, req.BrokerEmail)
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, actor, ref, func() (lifecycle.Event, error) {
		return op(ref, broker, s.Clock.Now())
	})
}

func (s *referralService) Start(ctx context.Context, actor lifecycle.Actor, id uint) (*ReferralResponse, error) {
	ref, err := s.Referrals.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, actor, ref, func() (lifecycle.Event, error) {
		return lifecycle.Start(ref, actor, s.Clock.Now())
	})
}

func (s *referralService) AssignApprover(ctx context.Context, actor lifecycle.Actor, id uint, req AssignApproverRequest) (*ReferralResponse, error) {
	ref, err := s.Referrals.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	approver, err := s.findUser(ctx, req.ApproverEmail)
	if err != nil {
		return nil, err
	}
	cost := ref.EstimatedYearlyCost(s.Clock.Today())
	return s.apply(ctx, actor, ref, func() (lifecycle.Event, error) {
		return lifecycle.AssignApprover(ref, actor, approver, cost, s.Clock.Now())
	})
}

// Approve runs the approval cascade. The referral, the client's superseded
// packages and the ended parent elements are committed together.
func (s *referralService) Approve(ctx context.Context, actor lifecycle.Actor, id uint) (*ReferralResponse, error) {
	ref, err := s.Referrals.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	approver, err := s.findUser(ctx, actor.Email)
	if err != nil {
		return nil, err
	}
	all, err := s.Referrals.FindBySocialCareID(ctx, ref.SocialCareID)
	if err != nil {
		return nil, err
	}
	siblings := make([]*model.Referral, 0, len(all))
	for _, sib := range all {
		if sib.ID != ref.ID {
			siblings = append(siblings, sib)
		}
	}
	graph, err := s.graphFor(ctx, ref, true)
	if err != nil {
		return nil, err
	}

	today := s.Clock.Today()
	result, err := lifecycle.Approve(ref, lifecycle.ApprovalInput{
		Approver: approver,
		Cost:     ref.EstimatedYearlyCost(today),
		Siblings: siblings,
		Graph:    graph,
		Now:      s.Clock.Now(),
		Today:    today,
	})
	if err != nil {
		return nil, err
	}

	err = s.commit(ctx, actor, ref, result.Events, func(txCtx context.Context) error {
		for _, sib := range result.Superseded {
			if err := s.Referrals.SaveStatus(txCtx, sib); err != nil {
				return err
			}
		}
		for _, parent := range result.Parents {
			if err := s.Elements.Save(txCtx, parent); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.view(ctx, ref)
}

func (s *referralService) RequestAmendment(ctx context.Context, actor lifecycle.Actor, id uint, req CommentRequest) (*ReferralResponse, error) {
	ref, err := s.Referrals.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	approver, err := s.findUser(ctx, actor.Email)
	if err != nil {
		return nil, err
	}
	cost := ref.EstimatedYearlyCost(s.Clock.Today())
	return s.apply(ctx, actor, ref, func() (lifecycle.Event, error) {
		return lifecycle.RequestAmendment(ref, approver, cost, req.Comment, s.Clock.Now())
	})
}

func (s *referralService) ResolveAmendment(ctx context.Context, actor lifecycle.Actor, id, amendmentID uint) (*ReferralResponse, error) {
	ref, err := s.Referrals.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, actor, ref, func() (lifecycle.Event, error) {
		return lifecycle.ResolveAmendment(ref, actor, amendmentID, s.Clock.Now())
	})
}

func (s *referralService) RequestFollowUp(ctx context.Context, actor lifecycle.Actor, id uint, req FollowUpRequest) (*ReferralResponse, error) {
	ref, err := s.Referrals.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	date, err := parseDate("date", req.Date)
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, actor, ref, func() (lifecycle.Event, error) {
		return lifecycle.RequestFollowUp(ref, actor, req.Comment, date, s.Clock.Now())
	})
}

func (s *referralService) ResolveFollowUp(ctx context.Context, actor lifecycle.Actor, id, followUpID uint) (*ReferralResponse, error) {
	ref, err := s.Referrals.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, actor, ref, func() (lifecycle.Event, error) {
		return lifecycle.ResolveFollowUp(ref, followUpID, s.Clock.Now())
	})
}

func (s *referralService) End(ctx context.Context, actor lifecycle.Actor, id uint, req EndRequest) (*ReferralResponse, error) {
	ref, err := s.Referrals.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	endDate, err := parseDate("end_date", req.EndDate)
	if err != nil {
		return nil, err
	}
	events, err := lifecycle.EndReferral(ref, endDate, req.Comment, s.Clock.Today(), s.Clock.Now())
	if err != nil {
		return nil, err
	}
	return s.persist(ctx, actor, ref, events)
}

func (s *referralService) Cancel(ctx context.Context, actor lifecycle.Actor, id uint, req CancelRequest) (*ReferralResponse, error) {
	ref, err := s.Referrals.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	events, err := lifecycle.CancelReferral(ref, req.Comment, s.Clock.Today(), s.Clock.Now())
	if err != nil {
		return nil, err
	}
	return s.persist(ctx, actor, ref, events)
}

func (s *referralService) Suspend(ctx context.Context, actor lifecycle.Actor, id uint, req SuspendRequest) (*ReferralResponse, error) {
	ref, err := s.Referrals.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	startDate, err := parseDate("start_date", req.StartDate)
	if err != nil {
		return nil, err
	}
	endDate, err := parseOptionalDate("end_date", req.EndDate)
	if err != nil {
		return nil, err
	}
	// the new suspension elements ride in the aggregate and are saved with it
	_, events, err := lifecycle.SuspendReferral(ref, startDate, endDate, req.Comment, s.Clock.Today(), s.Clock.Now())
	if err != nil {
		return nil, err
	}
	return s.persist(ctx, actor, ref, events)
}

func (s *referralService) Archive(ctx context.Context, actor lifecycle.Actor, id uint, req CommentRequest) (*ReferralResponse, error) {
	ref, err := s.Referrals.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, actor, ref, func() (lifecycle.Event, error) {
		return lifecycle.Archive(ref, req.Comment, s.Clock.Now())
	})
}

func (s *referralService) ConfirmCareCharges(ctx context.Context, actor lifecycle.Actor, id uint) (*ReferralResponse, error) {
	ref, err := s.Referrals.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, actor, ref, func() (lifecycle.Event, error) {
		return lifecycle.ConfirmCareCharges(ref, s.Clock.Now())
	})
}

// apply runs a single-event lifecycle operation and persists the result.
func (s *referralService) apply(ctx context.Context, actor lifecycle.Actor, ref *model.Referral, op func() (lifecycle.Event, error)) (*ReferralResponse, error) {
	ev, err := op()
	if err != nil {
		return nil, err
	}
	return s.persist(ctx, actor, ref, []lifecycle.Event{ev})
}

func (s *referralService) persist(ctx context.Context, actor lifecycle.Actor, ref *model.Referral, events []lifecycle.Event) (*ReferralResponse, error) {
	if err := s.commit(ctx, actor, ref, events, nil); err != nil {
		return nil, err
	}
	return s.view(ctx, ref)
}
