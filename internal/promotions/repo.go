package promotions

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mfeldmann/storehaus-backend/pkg/db/models"
)

// Repository manages persistence for campaigns.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	List(ctx context.Context) ([]models.Campaign, error)
	ListActive(ctx context.Context) ([]models.Campaign, error)
	ListPendingActivation(ctx context.Context, at time.Time) ([]models.Campaign, error)
	ListPendingDeactivation(ctx context.Context, at time.Time) ([]models.Campaign, error)
	Save(ctx context.Context, campaign *models.Campaign) error
	IncrementUsage(ctx context.Context, id uuid.UUID) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a campaign repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// List loads every campaign with rules and discounts in stacking-walk
// order. Used by the pricing explain path, which reports inactive
// campaigns too.
func (r *repository) List(ctx context.Context) ([]models.Campaign, error) {
	var campaigns []models.Campaign
	if err := r.db.WithContext(ctx).
		Preload("Rules").
		Preload("Discounts").
		Order("priority DESC, created_at ASC").
		Find(&campaigns).Error; err != nil {
		return nil, err
	}
	return campaigns, nil
}

// ListActive loads active campaigns with rules and discounts, ordered for
// the stacking walk: priority descending, oldest first on ties.
func (r *repository) ListActive(ctx context.Context) ([]models.Campaign, error) {
	var campaigns []models.Campaign
	if err := r.db.WithContext(ctx).
		Preload("Rules").
		Preload("Discounts").
		Where("is_active = ?", true).
		Order("priority DESC, created_at ASC").
		Find(&campaigns).Error; err != nil {
		return nil, err
	}
	return campaigns, nil
}

func (r *repository) ListPendingActivation(ctx context.Context, at time.Time) ([]models.Campaign, error) {
	var campaigns []models.Campaign
	if err := r.db.WithContext(ctx).
		Where("is_active = ? AND starts_at <= ? AND (ends_at IS NULL OR ends_at > ?)", false, at, at).
		Find(&campaigns).Error; err != nil {
		return nil, err
	}
	return campaigns, nil
}

func (r *repository) ListPendingDeactivation(ctx context.Context, at time.Time) ([]models.Campaign, error) {
	var campaigns []models.Campaign
	if err := r.db.WithContext(ctx).
		Where("is_active = ? AND ends_at IS NOT NULL AND ends_at <= ?", true, at).
		Find(&campaigns).Error; err != nil {
		return nil, err
	}
	return campaigns, nil
}

func (r *repository) Save(ctx context.Context, campaign *models.Campaign) error {
	return r.db.WithContext(ctx).Omit("Rules", "Discounts").Save(campaign).Error
}

func (r *repository) IncrementUsage(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.Campaign{}).
		Where("id = ?", id).
		UpdateColumn("usage_count", gorm.Expr("usage_count + 1")).Error
}
