package lifecycle

import (
	"strings"
	"time"

	"carepackage/internal/model"
	"carepackage/pkg/apperror"

	"github.com/shopspring/decimal"
)

// RequestAmendment sends a package awaiting approval back to its broker with
// the approver's feedback. The approver must be entitled to approve it.
func RequestAmendment(ref *model.Referral, approver *model.User, cost decimal.Decimal, comment string, now time.Time) (Event, error) {
	if approver == nil {
		return Event{}, apperror.NotFound("approver not found")
	}
	if err := requireStatus(ref, model.ReferralAwaitingApproval); err != nil {
		return Event{}, err
	}
	if err := CheckApprovalLimit(approver, cost); err != nil {
		return Event{}, err
	}
	if strings.TrimSpace(comment) == "" {
		return Event{}, apperror.Validation("amendment comment is required")
	}

	ref.Amendments = append(ref.Amendments, model.ReferralAmendment{
		ReferralID:  ref.ID,
		Comment:     comment,
		Status:      model.RequestInProgress,
		RequestedAt: now,
	})
	for _, el := range ref.Elements() {
		if el.InternalStatus == model.ElementAwaitingApproval {
			el.InternalStatus = model.ElementInProgress
			el.UpdatedAt = now
		}
	}
	ref.Status = model.ReferralInProgress
	ref.UpdatedAt = now
	return newEvent(model.EventAmendmentRequested, ref, "comment", comment), nil
}

// ResolveAmendment marks an open amendment as dealt with.
func ResolveAmendment(ref *model.Referral, actor Actor, amendmentID uint, now time.Time) (Event, error) {
	var amendment *model.ReferralAmendment
	for i := range ref.Amendments {
		if ref.Amendments[i].ID == amendmentID {
			amendment = &ref.Amendments[i]
			break
		}
	}
	if amendment == nil {
		return Event{}, apperror.NotFound("amendment %d not found in referral %d", amendmentID, ref.ID)
	}
	if amendment.Status == model.RequestResolved {
		return Event{}, apperror.InvalidState("amendment %d is already resolved", amendmentID)
	}
	if err := requireBroker(ref, actor); err != nil {
		return Event{}, err
	}

	amendment.Status = model.RequestResolved
	ref.UpdatedAt = now
	return newEvent(model.EventAmendmentResolved, ref, "amendment_id", amendmentID), nil
}

// RequestFollowUp schedules a review of an approved package on date.
func RequestFollowUp(ref *model.Referral, actor Actor, comment string, date time.Time, now time.Time) (Event, error) {
	if err := requireStatus(ref, model.ReferralApproved); err != nil {
		return Event{}, err
	}
	if strings.TrimSpace(comment) == "" {
		return Event{}, apperror.Validation("follow-up comment is required")
	}
	if date.IsZero() {
		return Event{}, apperror.Validation("follow-up date is required")
	}

	ref.FollowUps = append(ref.FollowUps, model.ReferralFollowUp{
		ReferralID:       ref.ID,
		Comment:          comment,
		Date:             date,
		Status:           model.RequestInProgress,
		RequestedAt:      now,
		RequestedByEmail: actor.Email,
	})
	ref.UpdatedAt = now
	return newEvent(model.EventFollowUpRequested, ref, "comment", comment, "date", formatDate(date)), nil
}

// ResolveFollowUp closes a scheduled review.
func ResolveFollowUp(ref *model.Referral, followUpID uint, now time.Time) (Event, error) {
	var followUp *model.ReferralFollowUp
	for i := range ref.FollowUps {
		if ref.FollowUps[i].ID == followUpID {
			followUp = &ref.FollowUps[i]
			break
		}
	}
	if followUp == nil {
		return Event{}, apperror.NotFound("follow-up %d not found in referral %d", followUpID, ref.ID)
	}
	if followUp.Status == model.RequestResolved {
		return Event{}, apperror.InvalidState("follow-up %d is already resolved", followUpID)
	}

	followUp.Status = model.RequestResolved
	ref.UpdatedAt = now
	return newEvent(model.EventFollowUpResolved, ref, "follow_up_id", followUpID), nil
}
