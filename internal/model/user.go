package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Role names
const (
	RoleAdmin    = "admin"
	RoleBroker   = "broker"
	RoleApprover = "approver"
	RoleFinance  = "finance"
)

// User is a broker, budget approver or administrator. ApprovalLimit is the
// highest estimated yearly cost the user may approve; NULL means none.
type User struct {
	ID            uuid.UUID           `gorm:"type:uuid;primaryKey" json:"id"`
	Name          string              `gorm:"type:varchar(255);not null" json:"name"`
	Email         string              `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	Password      string              `gorm:"type:varchar(255);not null" json:"-"`   // Omit password from JSON requests/responses
	Role          string              `gorm:"type:varchar(50);not null" json:"role"` // admin, broker, approver, finance
	ApprovalLimit decimal.NullDecimal `gorm:"type:decimal(18,2)" json:"approval_limit"`
	CreatedAt     time.Time           `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time           `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt     gorm.DeletedAt      `gorm:"index" json:"-"` // GORM soft delete
}

// BeforeCreate assigns the id client-side so the schema works without
// gen_random_uuid().
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}
