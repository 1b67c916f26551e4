package repository

import (
	"context"

	"carepackage/internal/model"

	"gorm.io/gorm"
)

// LookupRepository resolves the reference data elements point at.
type LookupRepository interface {
	FindElementType(ctx context.Context, id uint) (*model.ElementType, error)
	FindProvider(ctx context.Context, id uint) (*model.Provider, error)
	ListElementTypes(ctx context.Context) ([]model.ElementType, error)
	ListProviders(ctx context.Context) ([]model.Provider, error)
	CreateElementType(ctx context.Context, t *model.ElementType) error
	CreateProvider(ctx context.Context, p *model.Provider) error
}

type lookupRepository struct {
	db *gorm.DB
}

func NewLookupRepository(db *gorm.DB) LookupRepository {
	return &lookupRepository{db: db}
}

func (r *lookupRepository) FindElementType(ctx context.Context, id uint) (*model.ElementType, error) {
	var t model.ElementType
	if err := GetDB(ctx, r.db).First(&t, id).Error; err != nil {
		return nil, loadErr(err, "element type %d", id)
	}
	return &t, nil
}

func (r *lookupRepository) FindProvider(ctx context.Context, id uint) (*model.Provider, error) {
	var p model.Provider
	if err := GetDB(ctx, r.db).First(&p, id).Error; err != nil {
		return nil, loadErr(err, "provider %d", id)
	}
	return &p, nil
}

func (r *lookupRepository) ListElementTypes(ctx context.Context) ([]model.ElementType, error) {
	var types []model.ElementType
	if err := GetDB(ctx, r.db).Order("name asc").Find(&types).Error; err != nil {
		return nil, err
	}
	return types, nil
}

func (r *lookupRepository) ListProviders(ctx context.Context) ([]model.Provider, error) {
	var providers []model.Provider
	if err := GetDB(ctx, r.db).Order("name asc").Find(&providers).Error; err != nil {
		return nil, err
	}
	return providers, nil
}

func (r *lookupRepository) CreateElementType(ctx context.Context, t *model.ElementType) error {
	return GetDB(ctx, r.db).Create(t).Error
}

func (r *lookupRepository) CreateProvider(ctx context.Context, p *model.Provider) error {
	return GetDB(ctx, r.db).Create(p).Error
}
