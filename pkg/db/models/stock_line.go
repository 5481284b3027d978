package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// StockLine tracks on-hand and reserved counts per (variant, warehouse) pair.
// Available is persisted and recomputed on every mutation; rows are created
// lazily on first touch and never deleted. All mutations happen under a row
// lock acquired through the inventory repository.
type StockLine struct {
	ID             uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	VariantID      uuid.UUID `gorm:"column:variant_id;type:uuid;not null;uniqueIndex:idx_stock_variant_warehouse"`
	WarehouseID    uuid.UUID `gorm:"column:warehouse_id;type:uuid;not null;uniqueIndex:idx_stock_variant_warehouse"`
	OnHand         int       `gorm:"column:on_hand;not null;default:0"`
	Reserved       int       `gorm:"column:reserved;not null;default:0"`
	Available      int       `gorm:"column:available;not null;default:0;index"`
	Backorderable  bool      `gorm:"column:backorderable;not null;default:false"`
	BackorderLimit int       `gorm:"column:backorder_limit;not null;default:0"`
	SafetyStock    int       `gorm:"column:safety_stock;not null;default:0"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time `gorm:"column:updated_at;autoUpdateTime"`

	Warehouse *Warehouse `gorm:"foreignKey:WarehouseID"`
}

func (s *StockLine) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	s.Available = s.OnHand - s.Reserved
	return nil
}

// Recompute refreshes the persisted available column after a counter change.
func (s *StockLine) Recompute() {
	s.Available = s.OnHand - s.Reserved
}

// CanFulfill reports whether the line can satisfy a request for qty units,
// either from available stock or via its backorder allowance.
func (s *StockLine) CanFulfill(qty int) bool {
	if s.Available >= qty {
		return true
	}
	if s.Backorderable && (s.BackorderLimit == 0 || qty <= s.BackorderLimit) {
		return true
	}
	return false
}
