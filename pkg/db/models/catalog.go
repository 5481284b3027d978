package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	dbtypes "github.com/mfeldmann/storehaus-backend/pkg/db/types"
)

// Category groups products for pricing and campaign scoping.
type Category struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	Name      string    `gorm:"column:name;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (c *Category) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// Product is the sellable item a variant belongs to.
type Product struct {
	ID         uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	Name       string     `gorm:"column:name;not null"`
	Brand      string     `gorm:"column:brand"`
	CategoryID *uuid.UUID `gorm:"column:category_id;type:uuid;index"`
	IsActive   bool       `gorm:"column:is_active;not null;default:true"`
	CreatedAt  time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time  `gorm:"column:updated_at;autoUpdateTime"`

	Category *Category `gorm:"foreignKey:CategoryID"`
}

func (p *Product) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// Variant is the concrete purchasable SKU.
type Variant struct {
	ID         uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	ProductID  uuid.UUID       `gorm:"column:product_id;type:uuid;not null;index"`
	SKU        string          `gorm:"column:sku;uniqueIndex;not null"`
	Attributes dbtypes.JSONMap `gorm:"column:attributes;type:jsonb"`
	BasePrice  decimal.Decimal `gorm:"column:base_price;type:numeric(10,2);not null"`
	TaxClass   string          `gorm:"column:tax_class;not null;default:'standard'"`
	IsActive   bool            `gorm:"column:is_active;not null;default:true"`
	CreatedAt  time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time       `gorm:"column:updated_at;autoUpdateTime"`

	Product *Product `gorm:"foreignKey:ProductID"`
}

func (v *Variant) BeforeCreate(tx *gorm.DB) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	return nil
}
