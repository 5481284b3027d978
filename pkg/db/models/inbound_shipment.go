package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mfeldmann/storehaus-backend/pkg/enums"
)

// InboundShipment tracks stock on its way into a warehouse. Receiving a
// shipment increments on_hand and writes receipt audit rows per item.
type InboundShipment struct {
	ID          uuid.UUID            `gorm:"column:id;type:uuid;primaryKey"`
	Reference   string               `gorm:"column:reference;uniqueIndex;not null"`
	WarehouseID uuid.UUID            `gorm:"column:warehouse_id;type:uuid;not null;index"`
	Status      enums.ShipmentStatus `gorm:"column:status;not null;default:'pending';index"`
	ExpectedAt  *time.Time           `gorm:"column:expected_at"`
	ArrivedAt   *time.Time           `gorm:"column:arrived_at"`
	ReceivedAt  *time.Time           `gorm:"column:received_at"`
	Notes       string               `gorm:"column:notes"`
	CreatedAt   time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time            `gorm:"column:updated_at;autoUpdateTime"`

	Warehouse *Warehouse    `gorm:"foreignKey:WarehouseID"`
	Items     []InboundItem `gorm:"foreignKey:ShipmentID"`
}

func (s *InboundShipment) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

// Receivable reports whether the shipment is in a state that allows
// posting received quantities to stock.
func (s InboundShipment) Receivable() bool {
	return s.Status == enums.ShipmentStatusArrived || s.Status == enums.ShipmentStatusPartial
}

// InboundItem is one variant line of an inbound shipment.
type InboundItem struct {
	ID               uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	ShipmentID       uuid.UUID `gorm:"column:shipment_id;type:uuid;not null;index"`
	VariantID        uuid.UUID `gorm:"column:variant_id;type:uuid;not null"`
	QuantityExpected int       `gorm:"column:quantity_expected;not null"`
	QuantityReceived int       `gorm:"column:quantity_received;not null;default:0"`
	CreatedAt        time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time `gorm:"column:updated_at;autoUpdateTime"`

	Variant *Variant `gorm:"foreignKey:VariantID"`
}

func (i *InboundItem) BeforeCreate(tx *gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}

// Outstanding is the quantity still expected but not yet received.
func (i InboundItem) Outstanding() int {
	if d := i.QuantityExpected - i.QuantityReceived; d > 0 {
		return d
	}
	return 0
}
