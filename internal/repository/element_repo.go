package repository

import (
	"context"
	"fmt"

	"carepackage/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ElementRepository interface {
	FindByID(ctx context.Context, id uint) (*model.Element, error)
	FindByIDs(ctx context.Context, ids []uint) ([]*model.Element, error)
	FindSuspensionsOf(ctx context.Context, ids []uint) ([]*model.Element, error)
	OwnerSocialCareID(ctx context.Context, elementID uint) (string, error)
	Save(ctx context.Context, el *model.Element) error
	Delete(ctx context.Context, id uint) error
}

type elementRepository struct {
	db *gorm.DB
}

func NewElementRepository(db *gorm.DB) ElementRepository {
	return &elementRepository{db: db}
}

func (r *elementRepository) FindByID(ctx context.Context, id uint) (*model.Element, error) {
	var el model.Element
	if err := GetDB(ctx, r.db).Preload("ElementType").Preload("Provider").First(&el, id).Error; err != nil {
		return nil, loadErr(err, "element %d", id)
	}
	return &el, nil
}

func (r *elementRepository) FindByIDs(ctx context.Context, ids []uint) ([]*model.Element, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var els []*model.Element
	if err := GetDB(ctx, r.db).Preload("ElementType").Where("id IN ?", ids).Find(&els).Error; err != nil {
		return nil, fmt.Errorf("failed to load elements: %w", err)
	}
	return els, nil
}

// FindSuspensionsOf returns every suspension element pausing one of ids,
// whichever referral it was created in.
func (r *elementRepository) FindSuspensionsOf(ctx context.Context, ids []uint) ([]*model.Element, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var els []*model.Element
	err := GetDB(ctx, r.db).
		Where("is_suspension = ? AND suspended_element_id IN ?", true, ids).
		Order("id asc").
		Find(&els).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load suspensions: %w", err)
	}
	return els, nil
}

// OwnerSocialCareID returns the client of the referral the element was first
// linked into.
func (r *elementRepository) OwnerSocialCareID(ctx context.Context, elementID uint) (string, error) {
	var socialCareID string
	err := GetDB(ctx, r.db).
		Table("referral_elements").
		Select("referrals.social_care_id").
		Joins("JOIN referrals ON referrals.id = referral_elements.referral_id").
		Where("referral_elements.element_id = ?", elementID).
		Order("referral_elements.id asc").
		Limit(1).
		Scan(&socialCareID).Error
	if err != nil {
		return "", fmt.Errorf("failed to resolve owner of element %d: %w", elementID, err)
	}
	return socialCareID, nil
}

func (r *elementRepository) Save(ctx context.Context, el *model.Element) error {
	if err := GetDB(ctx, r.db).Omit(clause.Associations).Save(el).Error; err != nil {
		return fmt.Errorf("failed to save element %d: %w", el.ID, err)
	}
	return nil
}

func (r *elementRepository) Delete(ctx context.Context, id uint) error {
	return GetDB(ctx, r.db).Delete(&model.Element{}, id).Error
}
