package repository

import (
	"context"
	"fmt"

	"carepackage/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ReferralFilter struct {
	Status      string
	BrokerEmail string
	Page        int
	Limit       int
}

// ReferralRepository loads and stores referral aggregates: the referral,
// its element links with their elements, amendments and follow-ups.
type ReferralRepository interface {
	Create(ctx context.Context, ref *model.Referral) error
	FindByID(ctx context.Context, id uint) (*model.Referral, error)
	FindBySocialCareID(ctx context.Context, socialCareID string) ([]*model.Referral, error)
	List(ctx context.Context, filter ReferralFilter) ([]model.Referral, int64, error)
	Save(ctx context.Context, ref *model.Referral) error
	SaveStatus(ctx context.Context, ref *model.Referral) error
}

type referralRepository struct {
	db *gorm.DB
}

func NewReferralRepository(db *gorm.DB) ReferralRepository {
	return &referralRepository{db: db}
}

func withAggregate(db *gorm.DB) *gorm.DB {
	byID := func(db *gorm.DB) *gorm.DB { return db.Order("id asc") }
	return db.
		Preload("ReferralElements", byID).
		Preload("ReferralElements.Element.ElementType").
		Preload("ReferralElements.Element.Provider").
		Preload("Amendments", byID).
		Preload("FollowUps", byID)
}

func (r *referralRepository) Create(ctx context.Context, ref *model.Referral) error {
	return GetDB(ctx, r.db).Omit(clause.Associations).Create(ref).Error
}

func (r *referralRepository) FindByID(ctx context.Context, id uint) (*model.Referral, error) {
	var ref model.Referral
	if err := withAggregate(GetDB(ctx, r.db)).First(&ref, id).Error; err != nil {
		return nil, loadErr(err, "referral %d", id)
	}
	return &ref, nil
}

func (r *referralRepository) FindBySocialCareID(ctx context.Context, socialCareID string) ([]*model.Referral, error) {
	var refs []*model.Referral
	err := withAggregate(GetDB(ctx, r.db)).
		Where("social_care_id = ?", socialCareID).
		Order("id asc").
		Find(&refs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load referrals for client %s: %w", socialCareID, err)
	}
	return refs, nil
}

func (r *referralRepository) List(ctx context.Context, filter ReferralFilter) ([]model.Referral, int64, error) {
	var refs []model.Referral
	var total int64

	query := GetDB(ctx, r.db).Model(&model.Referral{})
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.BrokerEmail != "" {
		query = query.Where("assigned_broker_email = ?", filter.BrokerEmail)
	}
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (filter.Page - 1) * filter.Limit
	if err := query.Order("updated_at desc").Offset(offset).Limit(filter.Limit).Find(&refs).Error; err != nil {
		return nil, 0, err
	}
	return refs, total, nil
}

// Save writes the whole aggregate. Elements are written before their links so
// new elements receive ids, and link rows no longer in the aggregate are
// removed. Elements themselves are never deleted here.
func (r *referralRepository) Save(ctx context.Context, ref *model.Referral) error {
	db := GetDB(ctx, r.db)

	if err := db.Omit(clause.Associations).Save(ref).Error; err != nil {
		return fmt.Errorf("failed to save referral %d: %w", ref.ID, err)
	}

	keep := make([]uint, 0, len(ref.ReferralElements))
	for i := range ref.ReferralElements {
		re := &ref.ReferralElements[i]
		if re.Element != nil {
			if err := db.Omit(clause.Associations).Save(re.Element).Error; err != nil {
				return fmt.Errorf("failed to save element: %w", err)
			}
			re.ElementID = re.Element.ID
		}
		re.ReferralID = ref.ID
		if err := db.Omit(clause.Associations).Save(re).Error; err != nil {
			return fmt.Errorf("failed to save link to element %d: %w", re.ElementID, err)
		}
		keep = append(keep, re.ID)
	}

	stale := db.Where("referral_id = ?", ref.ID)
	if len(keep) > 0 {
		stale = stale.Where("id NOT IN ?", keep)
	}
	if err := stale.Delete(&model.ReferralElement{}).Error; err != nil {
		return fmt.Errorf("failed to remove unlinked elements: %w", err)
	}

	for i := range ref.Amendments {
		ref.Amendments[i].ReferralID = ref.ID
		if err := db.Save(&ref.Amendments[i]).Error; err != nil {
			return fmt.Errorf("failed to save amendment: %w", err)
		}
	}
	for i := range ref.FollowUps {
		ref.FollowUps[i].ReferralID = ref.ID
		if err := db.Save(&ref.FollowUps[i]).Error; err != nil {
			return fmt.Errorf("failed to save follow-up: %w", err)
		}
	}
	return nil
}

// SaveStatus writes only the status columns of a superseded referral.
func (r *referralRepository) SaveStatus(ctx context.Context, ref *model.Referral) error {
	err := GetDB(ctx, r.db).Model(&model.Referral{}).Where("id = ?", ref.ID).Updates(map[string]interface{}{
		"status":     ref.Status,
		"updated_at": ref.UpdatedAt,
	}).Error
	if err != nil {
		return fmt.Errorf("failed to update referral %d status: %w", ref.ID, err)
	}
	return nil
}
