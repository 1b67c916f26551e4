package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Audit event kinds
const (
	EventElementCreated               = "ElementCreated"
	EventElementUpdated               = "ElementUpdated"
	EventElementDeleted               = "ElementDeleted"
	EventElementLinked                = "ElementLinked"
	EventElementReset                 = "ElementReset"
	EventElementEnded                 = "ElementEnded"
	EventElementCancelled             = "ElementCancelled"
	EventElementSuspended             = "ElementSuspended"
	EventElementEndRequested          = "ElementEndRequested"
	EventElementCancellationRequested = "ElementCancellationRequested"

	EventReferralBrokerAssignment   = "ReferralBrokerAssignment"
	EventReferralBrokerReassignment = "ReferralBrokerReassignment"
	EventReferralStarted            = "ReferralStarted"
	EventBudgetApproverAssigned     = "CarePackageBudgetApproverAssigned"
	EventCarePackageApproved        = "CarePackageApproved"
	EventCarePackageEnded           = "CarePackageEnded"
	EventCarePackageCancelled       = "CarePackageCancelled"
	EventCarePackageSuspended       = "CarePackageSuspended"
	EventAmendmentRequested         = "AmendmentRequested"
	EventAmendmentResolved          = "AmendmentResolved"
	EventFollowUpRequested          = "FollowUpRequested"
	EventFollowUpResolved           = "FollowUpResolved"
	EventReferralArchived           = "ReferralArchived"
	EventCareChargesConfirmed       = "CareChargesConfirmed"
)

// AuditLog tracks who did what to which client's care package, and when.
// EntityID holds the client's social care id.
type AuditLog struct {
	ID         uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	UserID     *uuid.UUID     `gorm:"type:uuid;index" json:"user_id"` // Nullable for system actions
	User       *User          `gorm:"foreignKey:UserID" json:"user"`
	Action     string         `gorm:"type:varchar(60);not null;index" json:"action"`
	EntityID   string         `gorm:"type:varchar(50);index" json:"entity_id"`
	EntityName string         `gorm:"type:varchar(255)" json:"entity_name,omitempty"`
	Details    datatypes.JSON `gorm:"type:jsonb" json:"details"`
	CreatedAt  time.Time      `gorm:"index" json:"created_at"`
}

func (a *AuditLog) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
