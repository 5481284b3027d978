package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mfeldmann/storehaus-backend/pkg/enums"
)

// Reservation is one line of a stock hold. All lines created from a single
// cart share one token and one expiry horizon. Status transitions out of
// pending are owned by the reservation manager; order confirmation sets
// confirmed and points OrderID at the resulting order.
type Reservation struct {
	ID          uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	Token       uuid.UUID               `gorm:"column:token;type:uuid;not null;index"`
	VariantID   uuid.UUID               `gorm:"column:variant_id;type:uuid;not null;index:idx_reservation_variant_warehouse"`
	WarehouseID uuid.UUID               `gorm:"column:warehouse_id;type:uuid;not null;index:idx_reservation_variant_warehouse"`
	Quantity    int                     `gorm:"column:quantity;not null"`
	Status      enums.ReservationStatus `gorm:"column:status;not null;default:'pending';index"`
	ExpiresAt   time.Time               `gorm:"column:expires_at;not null;index"`
	OrderID     *uuid.UUID              `gorm:"column:order_id;type:uuid;index"`
	CreatedAt   time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time               `gorm:"column:updated_at;autoUpdateTime"`

	Variant   *Variant   `gorm:"foreignKey:VariantID"`
	Warehouse *Warehouse `gorm:"foreignKey:WarehouseID"`
}

func (r *Reservation) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.Token == uuid.Nil {
		r.Token = uuid.New()
	}
	return nil
}

// IsExpired reports whether the hold is past its expiry at the given time.
func (r *Reservation) IsExpired(now time.Time) bool {
	return r.ExpiresAt.Before(now)
}
