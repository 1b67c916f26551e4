package service

import (
	"context"
	"time"

	"carepackage/internal/model"

	"github.com/shopspring/decimal"
)

// DayCost is one weekday of an element's schedule.
type DayCost struct {
	Day      string          `json:"day" binding:"required,oneof=Monday Tuesday Wednesday Thursday Friday Saturday Sunday"`
	Cost     decimal.Decimal `json:"cost"`
	Quantity decimal.Decimal `json:"quantity"`
}

type ElementResponse struct {
	ID                  uint            `json:"id"`
	ElementTypeID       uint            `json:"element_type_id"`
	ElementType         string          `json:"element_type,omitempty"`
	ProviderID          *uint           `json:"provider_id"`
	Provider            string          `json:"provider,omitempty"`
	Details             string          `json:"details"`
	StartDate           string          `json:"start_date"`
	EndDate             *string         `json:"end_date"`
	Cost                decimal.Decimal `json:"cost"`
	Schedule            []DayCost       `json:"schedule,omitempty"`
	InternalStatus      string          `json:"internal_status"`
	Status              string          `json:"status"`
	ParentElementID     *uint           `json:"parent_element_id,omitempty"`
	IsSuspension        bool            `json:"is_suspension"`
	SuspendedElementID  *uint           `json:"suspended_element_id,omitempty"`
	Comment             *string         `json:"comment"`
	PendingEndDate      *string         `json:"pending_end_date,omitempty"`
	PendingCancellation bool            `json:"pending_cancellation"`
	PendingComment      *string         `json:"pending_comment,omitempty"`
}

// graphFor indexes the referral's elements together with every suspension
// of them, wherever it was created. withParents also pulls in the elements
// that edited successors replace.
func (d Deps) graphFor(ctx context.Context, ref *model.Referral, withParents bool) (*model.ElementGraph, error) {
	graph := ref.Graph()

	ids := make([]uint, 0, len(ref.ReferralElements))
	var parentIDs []uint
	for _, el := range ref.Elements() {
		if el.ID != 0 {
			ids = append(ids, el.ID)
		}
		if withParents && el.ParentElementID != nil {
			parentIDs = append(parentIDs, *el.ParentElementID)
		}
	}

	suspensions, err := d.Elements.FindSuspensionsOf(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, s := range suspensions {
		graph.Add(s)
	}

	parents, err := d.Elements.FindByIDs(ctx, parentIDs)
	if err != nil {
		return nil, err
	}
	for _, p := range parents {
		graph.Add(p)
	}
	return graph, nil
}

func (d Deps) view(ctx context.Context, ref *model.Referral) (*ReferralResponse, error) {
	graph, err := d.graphFor(ctx, ref, false)
	if err != nil {
		return nil, err
	}
	return mapReferral(ref, graph, d.Clock.Today()), nil
}

func mapSummary(ref *model.Referral) ReferralSummary {
	return ReferralSummary{
		ID:                    ref.ID,
		SocialCareID:          ref.SocialCareID,
		ResidentName:          ref.ResidentName,
		FormName:              ref.FormName,
		Status:                string(ref.Status),
		AssignedBrokerEmail:   ref.AssignedBrokerEmail,
		AssignedApproverEmail: ref.AssignedApproverEmail,
		CareChargeStatus:      string(ref.CareChargeStatus),
		UpdatedAt:             ref.UpdatedAt.Format(time.RFC3339),
	}
}

func mapReferral(ref *model.Referral, graph *model.ElementGraph, today time.Time) *ReferralResponse {
	res := &ReferralResponse{
		ReferralSummary:        mapSummary(ref),
		IsResidential:          ref.IsResidential,
		CareChargesConfirmedAt: formatTimePtr(ref.CareChargesConfirmedAt),
		Comment:                ref.Comment,
		StartedAt:              formatTimePtr(ref.StartedAt),
		EstimatedYearlyCost:    ref.EstimatedYearlyCost(today),
		Elements:               make([]ElementResponse, 0, len(ref.ReferralElements)),
		Amendments:             make([]AmendmentResponse, 0, len(ref.Amendments)),
		FollowUps:              make([]FollowUpResponse, 0, len(ref.FollowUps)),
	}

	for i := range ref.ReferralElements {
		re := &ref.ReferralElements[i]
		if re.Element == nil {
			continue
		}
		res.Elements = append(res.Elements, mapElement(re, graph, today))
	}
	for _, a := range ref.Amendments {
		res.Amendments = append(res.Amendments, AmendmentResponse{
			ID:          a.ID,
			Comment:     a.Comment,
			Status:      a.Status,
			RequestedAt: a.RequestedAt.Format(time.RFC3339),
		})
	}
	for _, f := range ref.FollowUps {
		res.FollowUps = append(res.FollowUps, FollowUpResponse{
			ID:               f.ID,
			Comment:          f.Comment,
			Date:             f.Date.Format(dateLayout),
			Status:           f.Status,
			RequestedAt:      f.RequestedAt.Format(time.RFC3339),
			RequestedByEmail: f.RequestedByEmail,
		})
	}
	return res
}

func mapElement(re *model.ReferralElement, graph *model.ElementGraph, today time.Time) ElementResponse {
	el := re.Element
	res := ElementResponse{
		ID:                  el.ID,
		ElementTypeID:       el.ElementTypeID,
		ProviderID:          el.ProviderID,
		Details:             el.Details,
		StartDate:           el.StartDate.Format(dateLayout),
		EndDate:             formatDatePtr(el.EndDate),
		Cost:                el.Cost,
		Schedule:            scheduleOf(el.ElementFields),
		InternalStatus:      string(el.InternalStatus),
		Status:              string(graph.StatusOf(el, today)),
		ParentElementID:     el.ParentElementID,
		IsSuspension:        el.IsSuspension,
		SuspendedElementID:  el.SuspendedElementID,
		Comment:             el.Comment,
		PendingEndDate:      formatDatePtr(re.PendingEndDate),
		PendingCancellation: re.PendingCancellation,
		PendingComment:      re.PendingComment,
	}
	if el.ElementType != nil {
		res.ElementType = el.ElementType.Name
	}
	if el.Provider != nil {
		res.Provider = el.Provider.Name
	}
	return res
}

// dayFields returns the cost and quantity fields of one weekday.
func dayFields(f *model.ElementFields, day string) (*decimal.Decimal, *decimal.Decimal) {
	switch day {
	case "Monday":
		return &f.MondayCost, &f.MondayQuantity
	case "Tuesday":
		return &f.TuesdayCost, &f.TuesdayQuantity
	case "Wednesday":
		return &f.WednesdayCost, &f.WednesdayQuantity
	case "Thursday":
		return &f.ThursdayCost, &f.ThursdayQuantity
	case "Friday":
		return &f.FridayCost, &f.FridayQuantity
	case "Saturday":
		return &f.SaturdayCost, &f.SaturdayQuantity
	case "Sunday":
		return &f.SundayCost, &f.SundayQuantity
	}
	return nil, nil
}

var weekdays = []string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"}

func scheduleOf(f model.ElementFields) []DayCost {
	var out []DayCost
	for _, day := range weekdays {
		cost, qty := dayFields(&f, day)
		if cost.IsZero() && qty.IsZero() {
			continue
		}
		out = append(out, DayCost{Day: day, Cost: *cost, Quantity: *qty})
	}
	return out
}
