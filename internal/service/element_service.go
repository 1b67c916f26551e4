package service

import (
	"context"

	"carepackage/internal/lifecycle"
	"carepackage/internal/model"

	"github.com/shopspring/decimal"
)

type ElementRequest struct {
	ElementTypeID uint            `json:"element_type_id" binding:"required"`
	ProviderID    *uint           `json:"provider_id"`
	Details       string          `json:"details"`
	StartDate     string          `json:"start_date" binding:"required"`
	EndDate       *string         `json:"end_date"`
	Cost          decimal.Decimal `json:"cost"`
	Schedule      []DayCost       `json:"schedule" binding:"dive"`
}

type LinkElementRequest struct {
	ElementID uint `json:"element_id" binding:"required"`
}

// ElementService edits the elements of a referral: the broker's build-up of
// a package and the element-level end, cancel and suspend operations.
type ElementService interface {
	Create(ctx context.Context, actor lifecycle.Actor, referralID uint, req ElementRequest) (*ReferralResponse, error)
	Edit(ctx context.Context, actor lifecycle.Actor, referralID, elementID uint, req ElementRequest) (*ReferralResponse, error)
	Delete(ctx context.Context, actor lifecycle.Actor, referralID, elementID uint) (*ReferralResponse, error)
	Link(ctx context.Context, actor lifecycle.Actor, referralID uint, req LinkElementRequest) (*ReferralResponse, error)
	Reset(ctx context.Context, actor lifecycle.Actor, referralID, elementID uint) (*ReferralResponse, error)
	End(ctx context.Context, actor lifecycle.Actor, referralID, elementID uint, req EndRequest) (*ReferralResponse, error)
	Cancel(ctx context.Context, actor lifecycle.Actor, referralID, elementID uint, req CancelRequest) (*ReferralResponse, error)
	Suspend(ctx context.Context, actor lifecycle.Actor, referralID, elementID uint, req SuspendRequest) (*ReferralResponse, error)
	StageEnd(ctx context.Context, actor lifecycle.Actor, referralID, elementID uint, req EndRequest) (*ReferralResponse, error)
	StageCancellation(ctx context.Context, actor lifecycle.Actor, referralID, elementID uint, req CancelRequest) (*ReferralResponse, error)

	ListElementTypes(ctx context.Context) ([]model.ElementType, error)
	ListProviders(ctx context.Context) ([]model.Provider, error)
}

type elementService struct {
	Deps
}

// NewElementService returns a new instance of ElementService
func NewElementService(deps Deps) ElementService {
	return &elementService{Deps: deps.withDefaults()}
}

// draft resolves the element type and provider a request points at.
func (s *elementService) draft(ctx context.Context, req ElementRequest) (lifecycle.ElementDraft, error) {
	var d lifecycle.ElementDraft

	elementType, err := s.Lookups.FindElementType(ctx, req.ElementTypeID)
	if err != nil {
		return d, err
	}
	d.ElementType = elementType
	if req.ProviderID != nil {
		provider, err := s.Lookups.FindProvider(ctx, *req.ProviderID)
		if err != nil {
			return d, err
		}
		d.Provider = provider
	}

	start, err := parseDate("start_date", req.StartDate)
	if err != nil {
		return d, err
	}
	end, err := parseOptionalDate("end_date", req.EndDate)
	if err != nil {
		return d, err
	}

	d.Fields = model.ElementFields{
		ElementTypeID: req.ElementTypeID,
		ProviderID:    req.ProviderID,
		Details:       req.Details,
		StartDate:     start,
		EndDate:       end,
		Cost:          req.Cost,
	}
	for _, day := range req.Schedule {
		cost, qty := dayFields(&d.Fields, day.Day)
		if cost == nil {
			continue
		}
		*cost, *qty = day.Cost, day.Quantity
	}
	return d, nil
}

func (s *elementService) Create(ctx context.Context, actor lifecycle.Actor, referralID uint, req ElementRequest) (*ReferralResponse, error) {
	ref, err := s.Referrals.FindByID(ctx, referralID)
	if err != nil {
		return nil, err
	}
	draft, err := s.draft(ctx, req)
	if err != nil {
		return nil, err
	}
	_, ev, err := lifecycle.CreateElement(ref, actor, draft, s.Clock.Now())
	if err != nil {
		return nil, err
	}
	return s.persist(ctx, actor, ref, ev, nil)
}

func (s *elementService) Edit(ctx context.Context, actor lifecycle.Actor, referralID, elementID uint, req ElementRequest) (*ReferralResponse, error) {
	ref, err := s.Referrals.FindByID(ctx, referralID)
	if err != nil {
		return nil, err
	}
	draft, err := s.draft(ctx, req)
	if err != nil {
		return nil, err
	}
	_, ev, err := lifecycle.EditElement(ref, actor, elementID, draft, s.Clock.Now())
	if err != nil {
		return nil, err
	}
	return s.persist(ctx, actor, ref, ev, nil)
}

// Delete unlinks the element. Elements that were never approved exist only
// for this referral and are removed with the link.
func (s *elementService) Delete(ctx context.Context, actor lifecycle.Actor, referralID, elementID uint) (*ReferralResponse, error) {
	ref, err := s.Referrals.FindByID(ctx, referralID)
	if err != nil {
		return nil, err
	}
	removed, ev, err := lifecycle.DeleteElement(ref, actor, elementID, s.Clock.Now())
	if err != nil {
		return nil, err
	}
	return s.persist(ctx, actor, ref, ev, s.discard(removed))
}

func (s *elementService) Link(ctx context.Context, actor lifecycle.Actor, referralID uint, req LinkElementRequest) (*ReferralResponse, error) {
	ref, err := s.Referrals.FindByID(ctx, referralID)
	if err != nil {
		return nil, err
	}
	el, err := s.Elements.FindByID(ctx, req.ElementID)
	if err != nil {
		return nil, err
	}
	owner, err := s.Elements.OwnerSocialCareID(ctx, el.ID)
	if err != nil {
		return nil, err
	}
	ev, err := lifecycle.LinkElement(ref, actor, el, owner, s.Clock.Now())
	if err != nil {
		return nil, err
	}
	return s.persist(ctx, actor, ref, ev, nil)
}

func (s *elementService) Reset(ctx context.Context, actor lifecycle.Actor, referralID, elementID uint) (*ReferralResponse, error) {
	ref, err := s.Referrals.FindByID(ctx, referralID)
	if err != nil {
		return nil, err
	}
	graph, err := s.graphFor(ctx, ref, true)
	if err != nil {
		return nil, err
	}
	discarded, ev, err := lifecycle.ResetElement(ref, actor, elementID, graph, s.Clock.Now())
	if err != nil {
		return nil, err
	}
	return s.persist(ctx, actor, ref, ev, s.discard(discarded))
}

func (s *elementService) End(ctx context.Context, actor lifecycle.Actor, referralID, elementID uint, req EndRequest) (*ReferralResponse, error) {
	ref, err := s.Referrals.FindByID(ctx, referralID)
	if err != nil {
		return nil, err
	}
	endDate, err := parseDate("end_date", req.EndDate)
	if err != nil {
		return nil, err
	}
	ev, err := lifecycle.EndElement(ref, elementID, endDate, req.Comment, s.Clock.Today(), s.Clock.Now())
	if err != nil {
		return nil, err
	}
	return s.persist(ctx, actor, ref, ev, nil)
}

func (s *elementService) Cancel(ctx context.Context, actor lifecycle.Actor, referralID, elementID uint, req CancelRequest) (*ReferralResponse, error) {
	ref, err := s.Referrals.FindByID(ctx, referralID)
	if err != nil {
		return nil, err
	}
	ev, err := lifecycle.CancelElement(ref, elementID, req.Comment, s.Clock.Today(), s.Clock.Now())
	if err != nil {
		return nil, err
	}
	return s.persist(ctx, actor, ref, ev, nil)
}

func (s *elementService) Suspend(ctx context.Context, actor lifecycle.Actor, referralID, elementID uint, req SuspendRequest) (*ReferralResponse, error) {
	ref, err := s.Referrals.FindByID(ctx, referralID)
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
	_, ev, err := lifecycle.SuspendElement(ref, elementID, startDate, endDate, req.Comment, s.Clock.Now())
	if err != nil {
		return nil, err
	}
	return s.persist(ctx, actor, ref, ev, nil)
}

func (s *elementService) StageEnd(ctx context.Context, actor lifecycle.Actor, referralID, elementID uint, req EndRequest) (*ReferralResponse, error) {
	ref, err := s.Referrals.FindByID(ctx, referralID)
	if err != nil {
		return nil, err
	}
	endDate, err := parseDate("end_date", req.EndDate)
	if err != nil {
		return nil, err
	}
	ev, err := lifecycle.StageElementEnd(ref, actor, elementID, endDate, req.Comment, s.Clock.Today(), s.Clock.Now())
	if err != nil {
		return nil, err
	}
	return s.persist(ctx, actor, ref, ev, nil)
}

func (s *elementService) StageCancellation(ctx context.Context, actor lifecycle.Actor, referralID, elementID uint, req CancelRequest) (*ReferralResponse, error) {
	ref, err := s.Referrals.FindByID(ctx, referralID)
	if err != nil {
		return nil, err
	}
	ev, err := lifecycle.StageElementCancellation(ref, actor, elementID, req.Comment, s.Clock.Today(), s.Clock.Now())
	if err != nil {
		return nil, err
	}
	return s.persist(ctx, actor, ref, ev, nil)
}

func (s *elementService) ListElementTypes(ctx context.Context) ([]model.ElementType, error) {
	return s.Lookups.ListElementTypes(ctx)
}

func (s *elementService) ListProviders(ctx context.Context) ([]model.Provider, error) {
	return s.Lookups.ListProviders(ctx)
}

// discard deletes an element dropped from the referral unless it is an
// approved element that lives on in another package.
func (s *elementService) discard(el *model.Element) func(context.Context) error {
	if el == nil || el.ID == 0 || el.InternalStatus == model.ElementApproved {
		return nil
	}
	return func(txCtx context.Context) error {
		return s.Elements.Delete(txCtx, el.ID)
	}
}

func (s *elementService) persist(ctx context.Context, actor lifecycle.Actor, ref *model.Referral, ev lifecycle.Event, extra func(context.Context) error) (*ReferralResponse, error) {
	if err := s.commit(ctx, actor, ref, []lifecycle.Event{ev}, extra); err != nil {
		return nil, err
	}
	return s.view(ctx, ref)
}
