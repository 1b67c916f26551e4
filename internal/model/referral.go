package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ReferralStatus is the lifecycle state of a care package.
type ReferralStatus string

const (
	ReferralUnassigned       ReferralStatus = "Unassigned"
	ReferralAssigned         ReferralStatus = "Assigned"
	ReferralInProgress       ReferralStatus = "InProgress"
	ReferralAwaitingApproval ReferralStatus = "AwaitingApproval"
	ReferralApproved         ReferralStatus = "Approved"
	ReferralEnded            ReferralStatus = "Ended"
	ReferralCancelled        ReferralStatus = "Cancelled"
	ReferralArchived         ReferralStatus = "Archived"
	ReferralInReview         ReferralStatus = "InReview"
	ReferralOnHold           ReferralStatus = "OnHold"
)

// CareChargeStatus classifies how billing should treat an approved package.
type CareChargeStatus string

const (
	CareChargeNew          CareChargeStatus = "New"
	CareChargeExisting     CareChargeStatus = "Existing"
	CareChargeTermination  CareChargeStatus = "Termination"
	CareChargeSuspension   CareChargeStatus = "Suspension"
	CareChargeCancellation CareChargeStatus = "Cancellation"
)

// Amendment / follow-up status constants
const (
	RequestInProgress = "InProgress"
	RequestResolved   = "Resolved"
)

// Referral is a care package: the unit that moves through approval.
// At most one referral per client may be InProgress or AwaitingApproval; the
// partial unique index enforces it.
type Referral struct {
	ID                     uint             `gorm:"primaryKey" json:"id"`
	SocialCareID           string           `gorm:"type:varchar(50);not null;index;uniqueIndex:idx_referrals_open_per_client,where:status = 'InProgress' OR status = 'AwaitingApproval'" json:"social_care_id"`
	ResidentName           string           `gorm:"type:varchar(255)" json:"resident_name"`
	FormName               string           `gorm:"type:varchar(255)" json:"form_name"`
	Status                 ReferralStatus   `gorm:"type:varchar(30);not null;default:'Unassigned';index" json:"status"`
	AssignedBrokerEmail    *string          `gorm:"type:varchar(255);index" json:"assigned_broker_email"`
	AssignedApproverEmail  *string          `gorm:"type:varchar(255);index" json:"assigned_approver_email"`
	CareChargeStatus       CareChargeStatus `gorm:"type:varchar(30)" json:"care_charge_status"`
	IsResidential          bool             `gorm:"default:false" json:"is_residential"`
	CareChargesConfirmedAt *time.Time       `json:"care_charges_confirmed_at"`
	Comment                *string          `gorm:"type:text" json:"comment"`
	StartedAt              *time.Time       `json:"started_at"`
	CreatedAt              time.Time        `json:"created_at"`
	UpdatedAt              time.Time        `gorm:"autoUpdateTime:false" json:"updated_at"`

	ReferralElements []ReferralElement   `gorm:"foreignKey:ReferralID" json:"referral_elements"`
	Amendments       []ReferralAmendment `gorm:"foreignKey:ReferralID" json:"amendments"`
	FollowUps        []ReferralFollowUp  `gorm:"foreignKey:ReferralID" json:"follow_ups"`
}

// ReferralElement links an element into a referral and holds changes that are
// staged until the referral's next approval.
type ReferralElement struct {
	ID                  uint       `gorm:"primaryKey" json:"id"`
	ReferralID          uint       `gorm:"not null;uniqueIndex:idx_referral_element" json:"referral_id"`
	ElementID           uint       `gorm:"not null;uniqueIndex:idx_referral_element" json:"element_id"`
	Element             *Element   `gorm:"foreignKey:ElementID" json:"element,omitempty"`
	PendingEndDate      *time.Time `gorm:"type:date" json:"pending_end_date"`
	PendingComment      *string    `gorm:"type:text" json:"pending_comment"`
	PendingCancellation bool       `gorm:"not null;default:false" json:"pending_cancellation"`
}

// HasPendingChange reports whether an end or cancellation is staged.
func (re *ReferralElement) HasPendingChange() bool {
	return re.PendingCancellation || re.PendingEndDate != nil
}

// ClearPending drops every staged change.
func (re *ReferralElement) ClearPending() {
	re.PendingCancellation = false
	re.PendingEndDate = nil
	re.PendingComment = nil
}

// ReferralAmendment is a reviewer's request to revise a package.
type ReferralAmendment struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	ReferralID  uint      `gorm:"not null;index" json:"referral_id"`
	Comment     string    `gorm:"type:text;not null" json:"comment"`
	Status      string    `gorm:"type:varchar(20);not null;default:'InProgress'" json:"status"`
	RequestedAt time.Time `gorm:"not null" json:"requested_at"`
}

// ReferralFollowUp schedules a future review of an approved package.
type ReferralFollowUp struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	ReferralID       uint      `gorm:"not null;index" json:"referral_id"`
	Comment          string    `gorm:"type:text;not null" json:"comment"`
	Date             time.Time `gorm:"type:date;not null" json:"date"`
	Status           string    `gorm:"type:varchar(20);not null;default:'InProgress'" json:"status"`
	RequestedAt      time.Time `gorm:"not null" json:"requested_at"`
	RequestedByEmail string    `gorm:"type:varchar(255)" json:"requested_by_email"`
}

// Elements returns the referral's elements in collection order.
func (r *Referral) Elements() []*Element {
	out := make([]*Element, 0, len(r.ReferralElements))
	for i := range r.ReferralElements {
		if el := r.ReferralElements[i].Element; el != nil {
			out = append(out, el)
		}
	}
	return out
}

// FindReferralElement returns the link row for elementID, or nil.
func (r *Referral) FindReferralElement(elementID uint) *ReferralElement {
	for i := range r.ReferralElements {
		re := &r.ReferralElements[i]
		if elementID != 0 && re.ElementID == elementID {
			return re
		}
	}
	return nil
}

// Graph indexes the referral's own elements.
func (r *Referral) Graph() *ElementGraph {
	return NewElementGraph(r.Elements()...)
}

// IsAssignedBroker reports whether email is the package's broker.
func (r *Referral) IsAssignedBroker(email string) bool {
	return r.AssignedBrokerEmail != nil && *r.AssignedBrokerEmail == email
}

// EstimatedYearlyCost is (weekly payment x 52) + one-off payment over the
// elements still in effect on today. ElementType must be loaded on each
// element for its payment operation and cost type to count.
func (r *Referral) EstimatedYearlyCost(today time.Time) decimal.Decimal {
	weekly := decimal.Zero
	oneOff := decimal.Zero

	for i := range r.ReferralElements {
		re := &r.ReferralElements[i]
		el := re.Element
		if el == nil || !inEffect(re, el, today) {
			continue
		}
		if el.IsOneOff() {
			oneOff = oneOff.Add(el.Cost)
			continue
		}
		multiplier := decimal.NewFromInt(1)
		if el.ElementType != nil {
			multiplier = el.ElementType.Multiplier()
		}
		weekly = weekly.Add(el.Cost.Mul(multiplier))
	}

	return weekly.Mul(decimal.NewFromInt(52)).Add(oneOff)
}

func inEffect(re *ReferralElement, el *Element, today time.Time) bool {
	if el.InternalStatus == ElementCancelled || el.IsSuspension || re.PendingCancellation {
		return false
	}
	if re.PendingEndDate != nil && re.PendingEndDate.Before(today) {
		return false
	}
	if el.EndDate != nil && el.EndDate.Before(today) {
		return false
	}
	return true
}
