package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ElementInternalStatus is the persisted lifecycle state of an element.
type ElementInternalStatus string

const (
	ElementInProgress       ElementInternalStatus = "InProgress"
	ElementAwaitingApproval ElementInternalStatus = "AwaitingApproval"
	ElementApproved         ElementInternalStatus = "Approved"
	ElementCancelled        ElementInternalStatus = "Cancelled"
)

// ElementStatus is the display status derived from the internal status and
// the calendar. It is never stored.
type ElementStatus string

const (
	ElementStatusInProgress       ElementStatus = "InProgress"
	ElementStatusAwaitingApproval ElementStatus = "AwaitingApproval"
	ElementStatusCancelled        ElementStatus = "Cancelled"
	ElementStatusActive           ElementStatus = "Active"
	ElementStatusInactive         ElementStatus = "Inactive"
	ElementStatusSuspended        ElementStatus = "Suspended"
	ElementStatusEnded            ElementStatus = "Ended"
)

// CostType enum constants
const (
	CostTypeHourly = "Hourly"
	CostTypeDaily  = "Daily"
	CostTypeWeekly = "Weekly"
	CostTypeOneOff = "OneOff"
)

// PaymentOperation enum constants
const (
	PaymentAdd      = "Add"
	PaymentSubtract = "Subtract"
	PaymentIgnore   = "Ignore"
)

// ElementType carries the billing rules shared by every element of that type.
type ElementType struct {
	ID                uint   `gorm:"primaryKey" json:"id"`
	Name              string `gorm:"type:varchar(255);not null" json:"name"`
	CostType          string `gorm:"type:varchar(20);not null;default:'Weekly'" json:"cost_type"`
	PaymentOperation  string `gorm:"type:varchar(20);not null;default:'Add'" json:"payment_operation"`
	IsResidential     bool   `gorm:"default:false" json:"is_residential"`
	NonPersonalBudget bool   `gorm:"default:false" json:"non_personal_budget"`
}

// Multiplier returns +1, -1 or 0 for the payment operation.
func (t ElementType) Multiplier() decimal.Decimal {
	switch t.PaymentOperation {
	case PaymentSubtract:
		return decimal.NewFromInt(-1)
	case PaymentIgnore:
		return decimal.Zero
	default:
		return decimal.NewFromInt(1)
	}
}

// Provider is the organisation delivering an element.
type Provider struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	Name        string `gorm:"type:varchar(255);not null" json:"name"`
	Address     string `gorm:"type:text" json:"address"`
	CedarNumber string `gorm:"type:varchar(50)" json:"cedar_number"`
}

// ElementFields are the broker-editable fields of an element. Edit replaces
// them wholesale and Reset copies them back from the parent element.
type ElementFields struct {
	ElementTypeID uint       `gorm:"not null;index" json:"element_type_id"`
	ProviderID    *uint      `gorm:"index" json:"provider_id"`
	Details       string     `gorm:"type:text" json:"details"`
	StartDate     time.Time  `gorm:"type:date;not null" json:"start_date"`
	EndDate       *time.Time `gorm:"type:date" json:"end_date"`

	Cost              decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0" json:"cost"`
	MondayCost        decimal.Decimal `gorm:"type:decimal(18,2);default:0" json:"monday_cost"`
	MondayQuantity    decimal.Decimal `gorm:"type:decimal(10,2);default:0" json:"monday_quantity"`
	TuesdayCost       decimal.Decimal `gorm:"type:decimal(18,2);default:0" json:"tuesday_cost"`
	TuesdayQuantity   decimal.Decimal `gorm:"type:decimal(10,2);default:0" json:"tuesday_quantity"`
	WednesdayCost     decimal.Decimal `gorm:"type:decimal(18,2);default:0" json:"wednesday_cost"`
	WednesdayQuantity decimal.Decimal `gorm:"type:decimal(10,2);default:0" json:"wednesday_quantity"`
	ThursdayCost      decimal.Decimal `gorm:"type:decimal(18,2);default:0" json:"thursday_cost"`
	ThursdayQuantity  decimal.Decimal `gorm:"type:decimal(10,2);default:0" json:"thursday_quantity"`
	FridayCost        decimal.Decimal `gorm:"type:decimal(18,2);default:0" json:"friday_cost"`
	FridayQuantity    decimal.Decimal `gorm:"type:decimal(10,2);default:0" json:"friday_quantity"`
	SaturdayCost      decimal.Decimal `gorm:"type:decimal(18,2);default:0" json:"saturday_cost"`
	SaturdayQuantity  decimal.Decimal `gorm:"type:decimal(10,2);default:0" json:"saturday_quantity"`
	SundayCost        decimal.Decimal `gorm:"type:decimal(18,2);default:0" json:"sunday_cost"`
	SundayQuantity    decimal.Decimal `gorm:"type:decimal(10,2);default:0" json:"sunday_quantity"`
}

// Element is one billable service line of a care package.
type Element struct {
	ID uint `gorm:"primaryKey" json:"id"`

	ElementFields `gorm:"embedded"`

	ElementType *ElementType `gorm:"foreignKey:ElementTypeID" json:"element_type,omitempty"`
	Provider    *Provider    `gorm:"foreignKey:ProviderID" json:"provider,omitempty"`

	InternalStatus ElementInternalStatus `gorm:"type:varchar(30);not null;index" json:"internal_status"`

	// Weak back-references, resolved through an ElementGraph.
	ParentElementID    *uint `gorm:"index" json:"parent_element_id"`
	IsSuspension       bool  `gorm:"default:false" json:"is_suspension"`
	SuspendedElementID *uint `gorm:"index" json:"suspended_element_id"`

	Comment   *string   `gorm:"type:text" json:"comment"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime:false" json:"updated_at"`
}

// Status derives the display status of e as of today. suspensions are the
// elements whose SuspendedElementID points at e.
func (e *Element) Status(today time.Time, suspensions []*Element) ElementStatus {
	switch e.InternalStatus {
	case ElementInProgress:
		return ElementStatusInProgress
	case ElementAwaitingApproval:
		return ElementStatusAwaitingApproval
	case ElementCancelled:
		return ElementStatusCancelled
	}

	if e.EndDate != nil && today.After(*e.EndDate) {
		return ElementStatusEnded
	}
	if today.Before(e.StartDate) {
		return ElementStatusInactive
	}
	for _, s := range suspensions {
		if s.Status(today, nil) == ElementStatusActive {
			return ElementStatusSuspended
		}
	}
	return ElementStatusActive
}

// IsOneOff reports whether the element is billed once rather than weekly.
// Requires ElementType to be loaded.
func (e *Element) IsOneOff() bool {
	return e.ElementType != nil && e.ElementType.CostType == CostTypeOneOff
}

// ElementGraph indexes the elements of one loaded aggregate by id and by the
// element they suspend. It replaces object back-pointers.
type ElementGraph struct {
	byID        map[uint]*Element
	suspensions map[uint][]*Element
}

func NewElementGraph(elements ...*Element) *ElementGraph {
	g := &ElementGraph{
		byID:        make(map[uint]*Element, len(elements)),
		suspensions: make(map[uint][]*Element),
	}
	for _, el := range elements {
		g.Add(el)
	}
	return g
}

// Add indexes el. Elements without an id (not yet persisted) are reachable
// only through the suspension index.
func (g *ElementGraph) Add(el *Element) {
	if el == nil {
		return
	}
	if el.ID != 0 {
		if _, seen := g.byID[el.ID]; seen {
			return
		}
		g.byID[el.ID] = el
	}
	if el.IsSuspension && el.SuspendedElementID != nil {
		g.suspensions[*el.SuspendedElementID] = append(g.suspensions[*el.SuspendedElementID], el)
	}
}

func (g *ElementGraph) Get(id uint) (*Element, bool) {
	el, ok := g.byID[id]
	return el, ok
}

func (g *ElementGraph) SuspensionsOf(id uint) []*Element {
	return g.suspensions[id]
}

// StatusOf derives the display status of el using the indexed suspensions.
func (g *ElementGraph) StatusOf(el *Element, today time.Time) ElementStatus {
	return el.Status(today, g.SuspensionsOf(el.ID))
}
