package reservation

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mfeldmann/storehaus-backend/pkg/db/models"
	"github.com/mfeldmann/storehaus-backend/pkg/enums"
)

// Repository manages persistence for reservation rows.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, reservation *models.Reservation) error
	Save(ctx context.Context, reservation *models.Reservation) error
	ListByToken(ctx context.Context, token uuid.UUID) ([]models.Reservation, error)
	ListExpired(ctx context.Context, cutoff time.Time, limit int) ([]models.Reservation, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a reservation repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, reservation *models.Reservation) error {
	return r.db.WithContext(ctx).Create(reservation).Error
}

func (r *repository) Save(ctx context.Context, reservation *models.Reservation) error {
	return r.db.WithContext(ctx).Save(reservation).Error
}

func (r *repository) ListByToken(ctx context.Context, token uuid.UUID) ([]models.Reservation, error) {
	var rows []models.Reservation
	if err := r.db.WithContext(ctx).
		Where("token = ?", token).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) ListExpired(ctx context.Context, cutoff time.Time, limit int) ([]models.Reservation, error) {
	var rows []models.Reservation
	query := r.db.WithContext(ctx).
		Where("status = ? AND expires_at < ?", enums.ReservationStatusPending, cutoff).
		Order("expires_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
