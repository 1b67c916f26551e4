package lifecycle

import (
	"time"

	"carepackage/internal/model"
	"carepackage/pkg/apperror"

	"github.com/shopspring/decimal"
)

// existingChargesWindow is how recent a sibling's care charge confirmation
// must be for the new package to count as an existing charge.
const existingChargesWindow = 6

// ApprovalInput is everything Approve needs beyond the referral itself.
type ApprovalInput struct {
	Approver *model.User
	// Cost is the referral's estimated yearly cost.
	Cost decimal.Decimal
	// Siblings are the client's other referrals.
	Siblings []*model.Referral
	// Graph indexes the referral's elements, the parents of its successors
	// and every suspension of its elements.
	Graph *model.ElementGraph
	Now   time.Time
	Today time.Time
}

// ApprovalResult lists the entities outside the referral that Approve
// changed; callers must persist them in the same transaction.
type ApprovalResult struct {
	Superseded []*model.Referral
	Parents    []*model.Element
	Events     []Event
}

// Approve approves a package awaiting approval and runs the approval cascade.
// Every step is checked before the first one is applied, so a failure leaves
// the referral, its siblings and its elements untouched.
func Approve(ref *model.Referral, in ApprovalInput) (*ApprovalResult, error) {
	if in.Approver == nil {
		return nil, apperror.NotFound("approver not found")
	}
	if err := requireStatus(ref, model.ReferralAwaitingApproval); err != nil {
		return nil, err
	}
	graph := in.Graph
	if graph == nil {
		graph = ref.Graph()
	}

	approving := make([]*model.Element, 0)
	parents := make(map[*model.Element]*model.Element)
	for _, el := range ref.Elements() {
		if el.InternalStatus != model.ElementAwaitingApproval {
			continue
		}
		approving = append(approving, el)
		if el.ParentElementID == nil {
			continue
		}
		parent, ok := graph.Get(*el.ParentElementID)
		if !ok {
			return nil, apperror.NotFound("parent element %d of element %d not found", *el.ParentElementID, el.ID)
		}
		parents[el] = parent
	}

	for i := range ref.ReferralElements {
		re := &ref.ReferralElements[i]
		if re.Element == nil || !re.HasPendingChange() {
			continue
		}
		var err error
		if re.PendingCancellation {
			err = checkCancel(re.Element, in.Today)
		} else {
			err = checkEnd(re.Element, *re.PendingEndDate, in.Today)
		}
		if err != nil {
			return nil, err
		}
	}

	if err := CheckApprovalLimit(in.Approver, in.Cost); err != nil {
		return nil, err
	}

	result := &ApprovalResult{}

	// 1. approve pending elements
	for _, el := range approving {
		el.InternalStatus = model.ElementApproved
		el.UpdatedAt = in.Now
	}

	// 2. end superseded parents the day before their successor starts
	for _, el := range approving {
		parent, ok := parents[el]
		if !ok {
			continue
		}
		end := el.StartDate.AddDate(0, 0, -1)
		parent.EndDate = &end
		parent.UpdatedAt = in.Now
		result.Parents = append(result.Parents, parent)
	}

	// 3. supersede the client's other approved packages
	for _, sib := range in.Siblings {
		if sib == nil || sib.ID == ref.ID || sib.Status != model.ReferralApproved {
			continue
		}
		sib.Status = model.ReferralEnded
		sib.UpdatedAt = in.Now
		result.Superseded = append(result.Superseded, sib)
		result.Events = append(result.Events, newEvent(model.EventCarePackageEnded, sib, "superseded_by", ref.ID))
	}

	// 4.
	ref.IsResidential = false
	for _, el := range ref.Elements() {
		if el.InternalStatus == model.ElementApproved && el.ElementType != nil && el.ElementType.IsResidential {
			ref.IsResidential = true
			break
		}
	}

	// 5.
	status, confirmedAt := classifyCareCharges(ref, in.Siblings, graph, in.Now, in.Today)
	ref.CareChargeStatus = status
	if confirmedAt != nil {
		ref.CareChargesConfirmedAt = confirmedAt
	}

	// 6. resolve staged changes, cancellation first
	for i := range ref.ReferralElements {
		re := &ref.ReferralElements[i]
		if re.Element == nil || !re.HasPendingChange() {
			continue
		}
		el := re.Element
		if re.PendingCancellation {
			applyCancel(el, re.PendingComment, in.Now)
			result.Events = append(result.Events, newEvent(model.EventElementCancelled, ref, "element_id", el.ID, "comment", re.PendingComment))
		} else {
			applyEnd(el, *re.PendingEndDate, re.PendingComment, in.Now)
			result.Events = append(result.Events, newEvent(model.EventElementEnded, ref, "element_id", el.ID, "end_date", formatDate(*re.PendingEndDate), "comment", re.PendingComment))
		}
		re.ClearPending()
	}

	// 7.
	ref.Status = model.ReferralApproved
	ref.UpdatedAt = in.Now
	result.Events = append(result.Events, newEvent(model.EventCarePackageApproved, ref,
		"approver", in.Approver.Email,
		"estimated_yearly_cost", in.Cost.StringFixed(2),
		"care_charge_status", string(status),
	))
	return result, nil
}

// classifyCareCharges picks the billing classification of a package being
// approved. The first matching rule wins. A recent confirmation on a sibling
// is returned so it can be carried forward.
func classifyCareCharges(ref *model.Referral, siblings []*model.Referral, graph *model.ElementGraph, now, today time.Time) (model.CareChargeStatus, *time.Time) {
	cutoff := now.AddDate(0, -existingChargesWindow, 0)
	var latest *time.Time
	for _, sib := range siblings {
		if sib == nil || sib.ID == ref.ID || sib.CareChargesConfirmedAt == nil {
			continue
		}
		at := *sib.CareChargesConfirmedAt
		if at.After(cutoff) && (latest == nil || at.After(*latest)) {
			latest = &at
		}
	}
	if latest != nil {
		return model.CareChargeExisting, latest
	}

	links := ref.ReferralElements
	if len(links) > 0 {
		allCancelled, allEnding := true, true
		for i := range links {
			if !links[i].PendingCancellation {
				allCancelled = false
			}
			if links[i].PendingEndDate == nil {
				allEnding = false
			}
		}
		if allCancelled {
			return model.CareChargeCancellation, nil
		}
		if allEnding {
			return model.CareChargeTermination, nil
		}
	}

	approved := 0
	suspended := 0
	for _, el := range ref.Elements() {
		if el.InternalStatus != model.ElementApproved || el.IsSuspension {
			continue
		}
		approved++
		if graph.StatusOf(el, today) == model.ElementStatusSuspended {
			suspended++
		}
	}
	if approved > 0 && suspended == approved {
		return model.CareChargeSuspension, nil
	}
	return model.CareChargeNew, nil
}
