package inventory

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mfeldmann/storehaus-backend/pkg/db/models"
)

// ErrStockLineNotFound marks a missing variant/warehouse stock row.
var ErrStockLineNotFound = errors.New("stock line not found")

// Repository manages persistence for stock lines and warehouses.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	GetStockLine(ctx context.Context, variantID, warehouseID uuid.UUID) (*models.StockLine, error)
	GetStockLineForUpdate(ctx context.Context, variantID, warehouseID uuid.UUID) (*models.StockLine, error)
	ListStockLinesByVariant(ctx context.Context, variantID uuid.UUID) ([]models.StockLine, error)
	SaveStockLine(ctx context.Context, line *models.StockLine) error
	CreateStockLine(ctx context.Context, line *models.StockLine) error
	GetWarehouse(ctx context.Context, id uuid.UUID) (*models.Warehouse, error)
	GetVariant(ctx context.Context, id uuid.UUID) (*models.Variant, error)
	GetShipment(ctx context.Context, id uuid.UUID) (*models.InboundShipment, error)
	SaveShipment(ctx context.Context, shipment *models.InboundShipment) error
	SaveShipmentItem(ctx context.Context, item *models.InboundItem) error
	ListReceivableShipments(ctx context.Context, limit int) ([]models.InboundShipment, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an inventory repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) GetStockLine(ctx context.Context, variantID, warehouseID uuid.UUID) (*models.StockLine, error) {
	var line models.StockLine
	err := r.db.WithContext(ctx).
		Where("variant_id = ? AND warehouse_id = ?", variantID, warehouseID).
		First(&line).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrStockLineNotFound
	}
	if err != nil {
		return nil, err
	}
	return &line, nil
}

// GetStockLineForUpdate takes a row lock on Postgres. SQLite serializes
// writers at the database level, so the lock clause is skipped there.
func (r *repository) GetStockLineForUpdate(ctx context.Context, variantID, warehouseID uuid.UUID) (*models.StockLine, error) {
	query := r.db.WithContext(ctx)
	if r.db.Dialector.Name() == "postgres" {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var line models.StockLine
	err := query.
		Where("variant_id = ? AND warehouse_id = ?", variantID, warehouseID).
		First(&line).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrStockLineNotFound
	}
	if err != nil {
		return nil, err
	}
	return &line, nil
}

// ListStockLinesByVariant returns the variant's lines in active
// warehouses only, most available first.
func (r *repository) ListStockLinesByVariant(ctx context.Context, variantID uuid.UUID) ([]models.StockLine, error) {
	var lines []models.StockLine
	if err := r.db.WithContext(ctx).
		Joins("JOIN warehouses ON warehouses.id = stock_lines.warehouse_id AND warehouses.is_active = ?", true).
		Where("stock_lines.variant_id = ?", variantID).
		Order("stock_lines.available DESC").
		Find(&lines).Error; err != nil {
		return nil, err
	}
	return lines, nil
}

func (r *repository) SaveStockLine(ctx context.Context, line *models.StockLine) error {
	line.Recompute()
	return r.db.WithContext(ctx).Save(line).Error
}

func (r *repository) CreateStockLine(ctx context.Context, line *models.StockLine) error {
	line.Recompute()
	return r.db.WithContext(ctx).Create(line).Error
}

func (r *repository) GetWarehouse(ctx context.Context, id uuid.UUID) (*models.Warehouse, error) {
	var wh models.Warehouse
	if err := r.db.WithContext(ctx).First(&wh, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &wh, nil
}

func (r *repository) GetVariant(ctx context.Context, id uuid.UUID) (*models.Variant, error) {
	var v models.Variant
	if err := r.db.WithContext(ctx).First(&v, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *repository) GetShipment(ctx context.Context, id uuid.UUID) (*models.InboundShipment, error) {
	var shipment models.InboundShipment
	if err := r.db.WithContext(ctx).
		Preload("Items").
		First(&shipment, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &shipment, nil
}

func (r *repository) SaveShipment(ctx context.Context, shipment *models.InboundShipment) error {
	return r.db.WithContext(ctx).Omit("Items").Save(shipment).Error
}

func (r *repository) SaveShipmentItem(ctx context.Context, item *models.InboundItem) error {
	return r.db.WithContext(ctx).Save(item).Error
}

func (r *repository) ListReceivableShipments(ctx context.Context, limit int) ([]models.InboundShipment, error) {
	var shipments []models.InboundShipment
	query := r.db.WithContext(ctx).
		Preload("Items").
		Where("status IN ?", []string{"arrived", "partial"}).
		Order("created_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&shipments).Error; err != nil {
		return nil, err
	}
	return shipments, nil
}
