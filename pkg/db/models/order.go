package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	dbtypes "github.com/mfeldmann/storehaus-backend/pkg/db/types"
	"github.com/mfeldmann/storehaus-backend/pkg/enums"
)

// Order is immutable once created. Line prices are snapshotted at
// confirmation time and never re-derived.
type Order struct {
	ID              uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	OrderNumber     string            `gorm:"column:order_number;uniqueIndex;not null"`
	CustomerID      *uuid.UUID        `gorm:"column:customer_id;type:uuid;index"`
	CustomerEmail   string            `gorm:"column:customer_email;not null"`
	ShippingAddress dbtypes.JSONMap   `gorm:"column:shipping_address;type:jsonb"`
	BillingAddress  dbtypes.JSONMap   `gorm:"column:billing_address;type:jsonb"`
	Currency        string            `gorm:"column:currency;size:3;not null;default:'EUR'"`
	Subtotal        decimal.Decimal   `gorm:"column:subtotal;type:numeric(12,2);not null"`
	ShippingAmount  decimal.Decimal   `gorm:"column:shipping_amount;type:numeric(10,2);not null"`
	TaxAmount       decimal.Decimal   `gorm:"column:tax_amount;type:numeric(10,2);not null"`
	Total           decimal.Decimal   `gorm:"column:total;type:numeric(12,2);not null"`
	Status          enums.OrderStatus `gorm:"column:status;not null;default:'draft';index"`
	CreatedAt       time.Time         `gorm:"column:created_at;autoCreateTime;index"`
	UpdatedAt       time.Time         `gorm:"column:updated_at;autoUpdateTime"`

	Items []OrderItem `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
}

func (o *Order) BeforeCreate(tx *gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}

// OrderItem snapshots sku, name, warehouse and unit price at confirmation.
type OrderItem struct {
	ID          uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	OrderID     uuid.UUID       `gorm:"column:order_id;type:uuid;not null;index"`
	VariantID   uuid.UUID       `gorm:"column:variant_id;type:uuid;not null"`
	WarehouseID uuid.UUID       `gorm:"column:warehouse_id;type:uuid;not null"`
	Quantity    int             `gorm:"column:quantity;not null"`
	UnitPrice   decimal.Decimal `gorm:"column:unit_price;type:numeric(10,2);not null"`
	SKU         string          `gorm:"column:sku;not null"`
	VariantName string          `gorm:"column:variant_name;not null"`
	CreatedAt   time.Time       `gorm:"column:created_at;autoCreateTime"`
}

func (i *OrderItem) BeforeCreate(tx *gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}

// TotalPrice is the extended line amount.
func (i OrderItem) TotalPrice() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}
