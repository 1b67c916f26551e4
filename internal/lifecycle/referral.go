package lifecycle

import (
	"time"

	"carepackage/internal/model"
	"carepackage/pkg/apperror"

	"github.com/shopspring/decimal"
)

// AssignBroker hands an unassigned referral to broker.
func AssignBroker(ref *model.Referral, broker *model.User, now time.Time) (Event, error) {
	if broker == nil {
		return Event{}, apperror.NotFound("broker not found")
	}
	if err := requireStatus(ref, model.ReferralUnassigned); err != nil {
		return Event{}, err
	}

	email := broker.Email
	ref.AssignedBrokerEmail = &email
	ref.Status = model.ReferralAssigned
	ref.UpdatedAt = now
	return newEvent(model.EventReferralBrokerAssignment, ref, "assigned_broker", email), nil
}

// ReassignBroker moves an assigned referral that has not been started to a
// different broker.
func ReassignBroker(ref *model.Referral, broker *model.User, now time.Time) (Event, error) {
	if broker == nil {
		return Event{}, apperror.NotFound("broker not found")
	}
	if err := requireStatus(ref, model.ReferralAssigned); err != nil {
		return Event{}, err
	}

	var previous string
	if ref.AssignedBrokerEmail != nil {
		previous = *ref.AssignedBrokerEmail
	}
	email := broker.Email
	ref.AssignedBrokerEmail = &email
	ref.UpdatedAt = now
	return newEvent(model.EventReferralBrokerReassignment, ref, "assigned_broker", email, "previous_broker", previous), nil
}

// Start begins work on an assigned referral. Only its broker may start it.
func Start(ref *model.Referral, actor Actor, now time.Time) (Event, error) {
	if err := requireStatus(ref, model.ReferralAssigned); err != nil {
		return Event{}, err
	}
	if err := requireBroker(ref, actor); err != nil {
		return Event{}, err
	}

	started := now
	ref.Status = model.ReferralInProgress
	ref.StartedAt = &started
	ref.UpdatedAt = now
	return newEvent(model.EventReferralStarted, ref), nil
}

// AssignApprover submits the package to approver, whose limit must cover
// cost, the package's estimated yearly cost.
func AssignApprover(ref *model.Referral, actor Actor, approver *model.User, cost decimal.Decimal, now time.Time) (Event, error) {
	if approver == nil {
		return Event{}, apperror.NotFound("approver not found")
	}
	if err := requireEditable(ref, actor); err != nil {
		return Event{}, err
	}
	if err := CheckApprovalLimit(approver, cost); err != nil {
		return Event{}, err
	}

	email := approver.Email
	ref.AssignedApproverEmail = &email
	ref.Status = model.ReferralAwaitingApproval
	ref.UpdatedAt = now
	for _, el := range ref.Elements() {
		if el.InternalStatus == model.ElementInProgress {
			el.InternalStatus = model.ElementAwaitingApproval
			el.UpdatedAt = now
		}
	}
	return newEvent(model.EventBudgetApproverAssigned, ref, "assigned_approver", email, "estimated_yearly_cost", cost.StringFixed(2)), nil
}

// targets are the package's running service elements: approved, not
// themselves suspensions and not already past their end date.
func targets(ref *model.Referral, today time.Time) []*model.Element {
	var out []*model.Element
	for _, el := range ref.Elements() {
		if el.InternalStatus != model.ElementApproved || el.IsSuspension {
			continue
		}
		if el.EndDate != nil && today.After(*el.EndDate) {
			continue
		}
		out = append(out, el)
	}
	return out
}

func approvedTargets(ref *model.Referral, today time.Time) ([]*model.Element, error) {
	if err := requireStatus(ref, model.ReferralApproved); err != nil {
		return nil, err
	}
	els := targets(ref, today)
	if len(els) == 0 {
		return nil, apperror.InvalidState("referral %d has no running elements", ref.ID)
	}
	return els, nil
}

// EndReferral ends every running element of an approved package on endDate.
func EndReferral(ref *model.Referral, endDate time.Time, comment *string, today, now time.Time) ([]Event, error) {
	els, err := approvedTargets(ref, today)
	if err != nil {
		return nil, err
	}
	for _, el := range els {
		if err := checkEnd(el, endDate, today); err != nil {
			return nil, err
		}
	}

	events := make([]Event, 0, len(els)+1)
	for _, el := range els {
		applyEnd(el, endDate, comment, now)
		events = append(events, newEvent(model.EventElementEnded, ref, "element_id", el.ID, "end_date", formatDate(endDate), "comment", comment))
	}
	ref.UpdatedAt = now
	events = append(events, newEvent(model.EventCarePackageEnded, ref, "end_date", formatDate(endDate), "comment", comment))
	return events, nil
}

// CancelReferral cancels every running element and the package itself.
func CancelReferral(ref *model.Referral, comment *string, today, now time.Time) ([]Event, error) {
	els, err := approvedTargets(ref, today)
	if err != nil {
		return nil, err
	}
	for _, el := range els {
		if err := checkCancel(el, today); err != nil {
			return nil, err
		}
	}

	events := make([]Event, 0, len(els)+1)
	for _, el := range els {
		applyCancel(el, comment, now)
		events = append(events, newEvent(model.EventElementCancelled, ref, "element_id", el.ID, "comment", comment))
	}
	ref.Status = model.ReferralCancelled
	ref.Comment = comment
	ref.UpdatedAt = now
	events = append(events, newEvent(model.EventCarePackageCancelled, ref, "comment", comment))
	return events, nil
}

// SuspendReferral suspends every running element for the same window. The
// new suspension elements are returned so they can be persisted.
func SuspendReferral(ref *model.Referral, startDate time.Time, endDate *time.Time, comment *string, today, now time.Time) ([]*model.Element, []Event, error) {
	els, err := approvedTargets(ref, today)
	if err != nil {
		return nil, nil, err
	}
	for _, el := range els {
		if err := checkSuspend(el, startDate, endDate); err != nil {
			return nil, nil, err
		}
	}

	created := make([]*model.Element, 0, len(els))
	events := make([]Event, 0, len(els)+1)
	for _, el := range els {
		s := newSuspension(ref, el, startDate, endDate, comment, now)
		ref.ReferralElements = append(ref.ReferralElements, model.ReferralElement{ReferralID: ref.ID, Element: s})
		created = append(created, s)
		events = append(events, newEvent(model.EventElementSuspended, ref, "element_id", el.ID, "start_date", formatDate(startDate), "comment", comment))
	}
	ref.UpdatedAt = now

	ev := newEvent(model.EventCarePackageSuspended, ref, "start_date", formatDate(startDate), "comment", comment)
	if endDate != nil {
		ev.Metadata["end_date"] = formatDate(*endDate)
	}
	return created, append(events, ev), nil
}

// Archive closes a package that is being worked on without approving it.
func Archive(ref *model.Referral, comment string, now time.Time) (Event, error) {
	if err := requireStatus(ref, model.ReferralInProgress); err != nil {
		return Event{}, err
	}

	ref.Status = model.ReferralArchived
	ref.Comment = strPtr(comment)
	ref.UpdatedAt = now
	return newEvent(model.EventReferralArchived, ref, "comment", comment), nil
}

// ConfirmCareCharges records that billing has acknowledged an approved
// package's charges.
func ConfirmCareCharges(ref *model.Referral, now time.Time) (Event, error) {
	if err := requireStatus(ref, model.ReferralApproved); err != nil {
		return Event{}, err
	}

	confirmed := now
	ref.CareChargesConfirmedAt = &confirmed
	ref.UpdatedAt = now
	return newEvent(model.EventCareChargesConfirmed, ref, "care_charge_status", string(ref.CareChargeStatus)), nil
}
