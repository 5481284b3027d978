package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mfeldmann/storehaus-backend/pkg/enums"
)

// InventoryAudit is the append-only record of every stock movement.
// Rows are never updated or deleted.
type InventoryAudit struct {
	ID            uuid.UUID            `gorm:"column:id;type:uuid;primaryKey"`
	EventType     enums.AuditEventType `gorm:"column:event_type;not null;index"`
	VariantID     uuid.UUID            `gorm:"column:variant_id;type:uuid;not null;index:idx_audit_variant_warehouse"`
	WarehouseID   uuid.UUID            `gorm:"column:warehouse_id;type:uuid;not null;index:idx_audit_variant_warehouse"`
	Quantity      int                  `gorm:"column:quantity;not null"`
	FromOnHand    int                  `gorm:"column:from_on_hand;not null"`
	ToOnHand      int                  `gorm:"column:to_on_hand;not null"`
	FromReserved  int                  `gorm:"column:from_reserved;not null"`
	ToReserved    int                  `gorm:"column:to_reserved;not null"`
	ReferenceType string               `gorm:"column:reference_type"`
	ReferenceID   *uuid.UUID           `gorm:"column:reference_id;type:uuid;index"`
	ActorID       *uuid.UUID           `gorm:"column:actor_id;type:uuid"`
	Notes         string               `gorm:"column:notes"`
	CreatedAt     time.Time            `gorm:"column:created_at;autoCreateTime;index"`
}

func (a *InventoryAudit) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
