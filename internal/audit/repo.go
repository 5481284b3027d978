package audit

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mfeldmann/storehaus-backend/pkg/db/models"
	"github.com/mfeldmann/storehaus-backend/pkg/pagination"
)

// Repository manages persistence for inventory audit rows.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, row *models.InventoryAudit) error
	ListByStockLine(ctx context.Context, variantID, warehouseID uuid.UUID) ([]models.InventoryAudit, error)
	ListPage(ctx context.Context, variantID, warehouseID uuid.UUID, cursor *pagination.Cursor, limit int) ([]models.InventoryAudit, error)
	ListByReference(ctx context.Context, referenceID uuid.UUID) ([]models.InventoryAudit, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an audit repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, row *models.InventoryAudit) error {
	return r.db.WithContext(ctx).Create(row).Error
}

func (r *repository) ListByStockLine(ctx context.Context, variantID, warehouseID uuid.UUID) ([]models.InventoryAudit, error) {
	var rows []models.InventoryAudit
	if err := r.db.WithContext(ctx).
		Where("variant_id = ? AND warehouse_id = ?", variantID, warehouseID).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) ListByReference(ctx context.Context, referenceID uuid.UUID) ([]models.InventoryAudit, error) {
	var rows []models.InventoryAudit
	if err := r.db.WithContext(ctx).
		Where("reference_id = ?", referenceID).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// ListPage returns newest-first audit rows after the cursor position.
func (r *repository) ListPage(ctx context.Context, variantID, warehouseID uuid.UUID, cursor *pagination.Cursor, limit int) ([]models.InventoryAudit, error) {
	query := r.db.WithContext(ctx).
		Where("variant_id = ? AND warehouse_id = ?", variantID, warehouseID).
		Order("created_at DESC, id DESC").
		Limit(limit)
	if cursor != nil {
		query = query.Where("(created_at, id) < (?, ?)", cursor.CreatedAt, cursor.ID)
	}
	var rows []models.InventoryAudit
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
