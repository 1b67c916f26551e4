package database

import (
	"context"
	"fmt"

	"carepackage/internal/model"
	"carepackage/internal/repository"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// NewConnection opens the Postgres pool and migrates the schema.
func NewConnection(dsn string, debug bool) (*gorm.DB, error) {
	level := gormlogger.Warn
	if debug {
		level = gormlogger.Info
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(level),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// Migrate creates or updates every table, including the partial unique index
// that keeps one open referral per client.
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&model.User{},
		&model.Role{},
		&model.Permission{},
		&model.AuditLog{},
		&model.ElementType{},
		&model.Provider{},
		&model.Element{},
		&model.Referral{},
		&model.ReferralElement{},
		&model.ReferralAmendment{},
		&model.ReferralFollowUp{},
	)
	if err != nil {
		return fmt.Errorf("failed to auto-migrate models: %w", err)
	}
	return nil
}

var defaultPermissions = []model.Permission{
	{Code: model.PermReferralsRead, Name: "View care packages", Group: "referrals"},
	{Code: model.PermReferralsAssign, Name: "Assign brokers", Group: "referrals"},
	{Code: model.PermReferralsBroker, Name: "Build care packages", Group: "referrals"},
	{Code: model.PermReferralsApprove, Name: "Approve care packages", Group: "referrals"},
	{Code: model.PermCareChargesManage, Name: "Confirm care charges", Group: "care_charges"},
	{Code: model.PermAuditRead, Name: "View audit history", Group: "audit"},
	{Code: model.PermUsersManage, Name: "Manage users and approval limits", Group: "users"},
}

var defaultRoles = map[string]struct {
	Description string
	PermCodes   []string
}{
	model.RoleAdmin: {
		Description: "Administrator",
		PermCodes: []string{
			model.PermReferralsRead, model.PermReferralsAssign, model.PermReferralsBroker,
			model.PermReferralsApprove, model.PermCareChargesManage, model.PermAuditRead,
			model.PermUsersManage,
		},
	},
	model.RoleBroker: {
		Description: "Broker - assembles care packages",
		PermCodes:   []string{model.PermReferralsRead, model.PermReferralsBroker},
	},
	model.RoleApprover: {
		Description: "Budget approver - signs off within an approval limit",
		PermCodes:   []string{model.PermReferralsRead, model.PermReferralsApprove, model.PermAuditRead},
	},
	model.RoleFinance: {
		Description: "Finance - confirms care charges",
		PermCodes:   []string{model.PermReferralsRead, model.PermCareChargesManage},
	},
}

// SeedRolesAndPermissions creates the built-in roles and permissions if they
// are missing and resets each built-in role to its default permissions.
func SeedRolesAndPermissions(ctx context.Context, roles repository.RoleRepository) error {
	byCode := make(map[string]model.Permission, len(defaultPermissions))
	for _, p := range defaultPermissions {
		perm := p
		if err := roles.FindOrCreatePermission(ctx, &perm); err != nil {
			return fmt.Errorf("failed to seed permission '%s': %w", p.Code, err)
		}
		byCode[perm.Code] = perm
	}

	for name, def := range defaultRoles {
		role := model.Role{Name: name, Description: def.Description, IsSystem: true}
		if err := roles.FindOrCreateRole(ctx, &role); err != nil {
			return fmt.Errorf("failed to seed role '%s': %w", name, err)
		}

		perms := make([]model.Permission, 0, len(def.PermCodes))
		for _, code := range def.PermCodes {
			perms = append(perms, byCode[code])
		}
		if err := roles.ReplacePermissions(ctx, &role, perms); err != nil {
			return fmt.Errorf("failed to assign permissions to role '%s': %w", name, err)
		}
	}
	return nil
}
