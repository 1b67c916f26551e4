package lifecycle

import (
	"time"

	"carepackage/internal/model"
	"carepackage/pkg/apperror"

	"github.com/shopspring/decimal"
)

// ElementDraft is a broker's input for a new or edited element, with its
// element type and provider already resolved by the caller.
type ElementDraft struct {
	Fields      model.ElementFields
	ElementType *model.ElementType
	Provider    *model.Provider
}

func validateFields(f model.ElementFields) error {
	if f.StartDate.IsZero() {
		return apperror.Validation("start date is required")
	}
	if f.EndDate != nil && f.EndDate.Before(f.StartDate) {
		return apperror.Validation("end date %s is before start date %s", formatDate(*f.EndDate), formatDate(f.StartDate))
	}
	if f.Cost.IsNegative() {
		return apperror.Validation("cost must not be negative")
	}
	return nil
}

func (d ElementDraft) apply(el *model.Element) {
	el.ElementFields = d.Fields
	el.ElementType = d.ElementType
	el.Provider = d.Provider
	if d.ElementType != nil {
		el.ElementTypeID = d.ElementType.ID
	}
	el.ProviderID = nil
	if d.Provider != nil {
		id := d.Provider.ID
		el.ProviderID = &id
	}
}

// CreateElement adds a new in-progress element to the referral.
func CreateElement(ref *model.Referral, actor Actor, draft ElementDraft, now time.Time) (*model.Element, Event, error) {
	if err := requireEditable(ref, actor); err != nil {
		return nil, Event{}, err
	}
	if err := validateFields(draft.Fields); err != nil {
		return nil, Event{}, err
	}

	el := &model.Element{
		InternalStatus: model.ElementInProgress,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	draft.apply(el)

	ref.ReferralElements = append(ref.ReferralElements, model.ReferralElement{ReferralID: ref.ID, Element: el})
	ref.UpdatedAt = now

	return el, newEvent(model.EventElementCreated, ref, "element_type_id", el.ElementTypeID), nil
}

// EditElement replaces an element's editable fields. Editing an approved
// element leaves it untouched and puts a successor in its place that
// supersedes it once approved.
func EditElement(ref *model.Referral, actor Actor, elementID uint, draft ElementDraft, now time.Time) (*model.Element, Event, error) {
	re, err := findElement(ref, elementID)
	if err != nil {
		return nil, Event{}, err
	}
	if err := requireEditable(ref, actor); err != nil {
		return nil, Event{}, err
	}
	el := re.Element
	if el.InternalStatus == model.ElementCancelled {
		return nil, Event{}, apperror.InvalidState("element %d is cancelled", elementID)
	}
	if el.IsSuspension {
		return nil, Event{}, apperror.InvalidState("element %d is a suspension and cannot be edited", elementID)
	}
	if err := validateFields(draft.Fields); err != nil {
		return nil, Event{}, err
	}

	if el.InternalStatus == model.ElementApproved {
		parentID := el.ID
		successor := &model.Element{
			InternalStatus:  model.ElementInProgress,
			ParentElementID: &parentID,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		draft.apply(successor)
		re.Element = successor
		re.ElementID = 0
		re.ClearPending()
		ref.UpdatedAt = now
		return successor, newEvent(model.EventElementUpdated, ref, "element_id", elementID, "successor", true), nil
	}

	draft.apply(el)
	el.InternalStatus = model.ElementInProgress
	el.UpdatedAt = now
	ref.UpdatedAt = now
	return el, newEvent(model.EventElementUpdated, ref, "element_id", elementID), nil
}

// DeleteElement unlinks an element from the referral and returns it.
func DeleteElement(ref *model.Referral, actor Actor, elementID uint, now time.Time) (*model.Element, Event, error) {
	re, err := findElement(ref, elementID)
	if err != nil {
		return nil, Event{}, err
	}
	if err := requireEditable(ref, actor); err != nil {
		return nil, Event{}, err
	}

	removed := re.Element
	kept := make([]model.ReferralElement, 0, len(ref.ReferralElements)-1)
	for _, other := range ref.ReferralElements {
		if other.ElementID != elementID {
			kept = append(kept, other)
		}
	}
	ref.ReferralElements = kept
	ref.UpdatedAt = now

	return removed, newEvent(model.EventElementDeleted, ref, "element_id", elementID), nil
}

// checkEnd validates ending el on endDate. An element that already carries an
// end date may only have it brought forward, and not once that date is past.
// Elements that have not started yet can be ended like any other.
func checkEnd(el *model.Element, endDate, today time.Time) error {
	if el.InternalStatus != model.ElementApproved {
		return apperror.InvalidState("element %d is %s, only approved elements can be ended", el.ID, el.InternalStatus)
	}
	if endDate.IsZero() {
		return apperror.Validation("end date is required")
	}
	if el.EndDate != nil && (el.EndDate.Before(endDate) || el.EndDate.Before(today)) {
		return apperror.Validation("element %d already ends on %s", el.ID, formatDate(*el.EndDate))
	}
	return nil
}

func applyEnd(el *model.Element, endDate time.Time, comment *string, now time.Time) {
	el.EndDate = &endDate
	if comment != nil {
		el.Comment = comment
	}
	el.UpdatedAt = now
}

// EndElement sets the end date of an approved element.
func EndElement(ref *model.Referral, elementID uint, endDate time.Time, comment *string, today, now time.Time) (Event, error) {
	re, err := findElement(ref, elementID)
	if err != nil {
		return Event{}, err
	}
	if err := checkEnd(re.Element, endDate, today); err != nil {
		return Event{}, err
	}
	applyEnd(re.Element, endDate, comment, now)
	return newEvent(model.EventElementEnded, ref, "element_id", elementID, "end_date", formatDate(endDate), "comment", comment), nil
}

func checkCancel(el *model.Element, today time.Time) error {
	if el.InternalStatus != model.ElementApproved {
		return apperror.InvalidState("element %d is %s, only approved elements can be cancelled", el.ID, el.InternalStatus)
	}
	if el.EndDate != nil && today.After(*el.EndDate) {
		return apperror.InvalidState("element %d has already ended", el.ID)
	}
	return nil
}

func applyCancel(el *model.Element, comment *string, now time.Time) {
	el.InternalStatus = model.ElementCancelled
	if comment != nil {
		el.Comment = comment
	}
	el.UpdatedAt = now
}

// CancelElement cancels an approved element that has not yet ended.
func CancelElement(ref *model.Referral, elementID uint, comment *string, today, now time.Time) (Event, error) {
	re, err := findElement(ref, elementID)
	if err != nil {
		return Event{}, err
	}
	if err := checkCancel(re.Element, today); err != nil {
		return Event{}, err
	}
	applyCancel(re.Element, comment, now)
	return newEvent(model.EventElementCancelled, ref, "element_id", elementID, "comment", comment), nil
}

func checkSuspend(el *model.Element, startDate time.Time, endDate *time.Time) error {
	if el.InternalStatus != model.ElementApproved {
		return apperror.InvalidState("element %d is %s, only approved elements can be suspended", el.ID, el.InternalStatus)
	}
	if el.IsSuspension {
		return apperror.InvalidState("element %d is itself a suspension", el.ID)
	}
	if startDate.IsZero() {
		return apperror.Validation("suspension start date is required")
	}
	if endDate != nil && endDate.Before(startDate) {
		return apperror.Validation("suspension end date %s is before its start date %s", formatDate(*endDate), formatDate(startDate))
	}
	return nil
}

// newSuspension builds the element that pauses el. It carries no cost so the
// pause is never billed on top of the suspended service, and it follows the
// package through approval unless the package is already approved.
func newSuspension(ref *model.Referral, el *model.Element, startDate time.Time, endDate *time.Time, comment *string, now time.Time) *model.Element {
	status := model.ElementInProgress
	switch ref.Status {
	case model.ReferralApproved:
		status = model.ElementApproved
	case model.ReferralAwaitingApproval:
		status = model.ElementAwaitingApproval
	}
	target := el.ID
	return &model.Element{
		ElementFields: model.ElementFields{
			ElementTypeID: el.ElementTypeID,
			ProviderID:    el.ProviderID,
			Details:       el.Details,
			StartDate:     startDate,
			EndDate:       endDate,
			Cost:          decimal.Zero,
		},
		ElementType:        el.ElementType,
		Provider:           el.Provider,
		InternalStatus:     status,
		IsSuspension:       true,
		SuspendedElementID: &target,
		Comment:            comment,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

// SuspendElement pauses an approved element for [startDate, endDate]; a nil
// endDate leaves the suspension open.
func SuspendElement(ref *model.Referral, elementID uint, startDate time.Time, endDate *time.Time, comment *string, now time.Time) (*model.Element, Event, error) {
	re, err := findElement(ref, elementID)
	if err != nil {
		return nil, Event{}, err
	}
	if err := checkSuspend(re.Element, startDate, endDate); err != nil {
		return nil, Event{}, err
	}

	suspension := newSuspension(ref, re.Element, startDate, endDate, comment, now)
	ref.ReferralElements = append(ref.ReferralElements, model.ReferralElement{ReferralID: ref.ID, Element: suspension})
	ref.UpdatedAt = now

	ev := newEvent(model.EventElementSuspended, ref, "element_id", elementID, "start_date", formatDate(startDate), "comment", comment)
	if endDate != nil {
		ev.Metadata["end_date"] = formatDate(*endDate)
	}
	return suspension, ev, nil
}

// ResetElement discards a broker's unapproved changes to an element: staged
// end/cancel requests are dropped and an edited successor is swapped back for
// the approved element it replaced. The discarded successor is returned.
func ResetElement(ref *model.Referral, actor Actor, elementID uint, graph *model.ElementGraph, now time.Time) (*model.Element, Event, error) {
	re, err := findElement(ref, elementID)
	if err != nil {
		return nil, Event{}, err
	}
	if err := requireEditable(ref, actor); err != nil {
		return nil, Event{}, err
	}
	el := re.Element
	if el.InternalStatus == model.ElementCancelled {
		return nil, Event{}, apperror.InvalidState("element %d is cancelled", elementID)
	}

	var parent *model.Element
	if el.ParentElementID != nil && el.InternalStatus != model.ElementApproved {
		var ok bool
		if parent, ok = graph.Get(*el.ParentElementID); !ok {
			return nil, Event{}, apperror.NotFound("parent element %d not found", *el.ParentElementID)
		}
	}
	if parent == nil && !re.HasPendingChange() {
		return nil, Event{}, apperror.InvalidState("element %d has no changes to reset", elementID)
	}

	re.ClearPending()
	var discarded *model.Element
	if parent != nil {
		discarded = el
		re.Element = parent
		re.ElementID = parent.ID
	}
	ref.UpdatedAt = now

	return discarded, newEvent(model.EventElementReset, ref, "element_id", elementID), nil
}

// StageElementEnd records an end date to apply to an approved element when
// the referral is next approved.
func StageElementEnd(ref *model.Referral, actor Actor, elementID uint, endDate time.Time, comment *string, today, now time.Time) (Event, error) {
	re, err := findElement(ref, elementID)
	if err != nil {
		return Event{}, err
	}
	if err := requireEditable(ref, actor); err != nil {
		return Event{}, err
	}
	if err := checkEnd(re.Element, endDate, today); err != nil {
		return Event{}, err
	}

	re.PendingEndDate = &endDate
	re.PendingComment = comment
	ref.UpdatedAt = now
	return newEvent(model.EventElementEndRequested, ref, "element_id", elementID, "end_date", formatDate(endDate), "comment", comment), nil
}

// StageElementCancellation marks an approved element to be cancelled when the
// referral is next approved.
func StageElementCancellation(ref *model.Referral, actor Actor, elementID uint, comment *string, today, now time.Time) (Event, error) {
	re, err := findElement(ref, elementID)
	if err != nil {
		return Event{}, err
	}
	if err := requireEditable(ref, actor); err != nil {
		return Event{}, err
	}
	if err := checkCancel(re.Element, today); err != nil {
		return Event{}, err
	}

	re.PendingCancellation = true
	re.PendingComment = comment
	ref.UpdatedAt = now
	return newEvent(model.EventElementCancellationRequested, ref, "element_id", elementID, "comment", comment), nil
}

// LinkElement carries an approved element of one of the client's earlier
// packages into this referral so changes to it can be staged here.
// ownerSocialCareID is the client the element was originally approved for.
func LinkElement(ref *model.Referral, actor Actor, el *model.Element, ownerSocialCareID string, now time.Time) (Event, error) {
	if err := requireStatus(ref, model.ReferralInProgress); err != nil {
		return Event{}, err
	}
	if el.InternalStatus != model.ElementApproved {
		return Event{}, apperror.InvalidState("element %d is %s, only approved elements can be linked", el.ID, el.InternalStatus)
	}
	if err := requireBroker(ref, actor); err != nil {
		return Event{}, err
	}
	if ownerSocialCareID != ref.SocialCareID {
		return Event{}, apperror.Validation("element %d belongs to a different client", el.ID)
	}
	if ref.FindReferralElement(el.ID) != nil {
		return Event{}, apperror.Validation("element %d is already part of referral %d", el.ID, ref.ID)
	}

	ref.ReferralElements = append(ref.ReferralElements, model.ReferralElement{ReferralID: ref.ID, ElementID: el.ID, Element: el})
	ref.UpdatedAt = now
	return newEvent(model.EventElementLinked, ref, "element_id", el.ID), nil
}
