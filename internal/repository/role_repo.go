package repository

import (
	"context"

	"carepackage/internal/model"

	"gorm.io/gorm"
)

type RoleRepository interface {
	FindOrCreateRole(ctx context.Context, role *model.Role) error
	FindOrCreatePermission(ctx context.Context, perm *model.Permission) error
	ReplacePermissions(ctx context.Context, role *model.Role, perms []model.Permission) error
	GetPermissionsByRoleName(ctx context.Context, roleName string) ([]string, error)
}

type roleRepository struct {
	db *gorm.DB
}

func NewRoleRepository(db *gorm.DB) RoleRepository {
	return &roleRepository{db: db}
}

func (r *roleRepository) FindOrCreateRole(ctx context.Context, role *model.Role) error {
	return GetDB(ctx, r.db).
		Where("name = ?", role.Name).
		Attrs(model.Role{Description: role.Description, IsSystem: role.IsSystem}).
		FirstOrCreate(role).Error
}

func (r *roleRepository) FindOrCreatePermission(ctx context.Context, perm *model.Permission) error {
	return GetDB(ctx, r.db).
		Where("code = ?", perm.Code).
		Attrs(model.Permission{Name: perm.Name, Group: perm.Group}).
		FirstOrCreate(perm).Error
}

func (r *roleRepository) ReplacePermissions(ctx context.Context, role *model.Role, perms []model.Permission) error {
	return GetDB(ctx, r.db).Model(role).Association("Permissions").Replace(perms)
}

func (r *roleRepository) GetPermissionsByRoleName(ctx context.Context, roleName string) ([]string, error) {
	var role model.Role
	if err := GetDB(ctx, r.db).Preload("Permissions").Where("name = ?", roleName).First(&role).Error; err != nil {
		return nil, loadErr(err, "role %s", roleName)
	}

	codes := make([]string, 0, len(role.Permissions))
	for _, p := range role.Permissions {
		codes = append(codes, p.Code)
	}
	return codes, nil
}
