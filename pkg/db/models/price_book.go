package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// PriceBook scopes prices to a currency/country/channel/customer-group
// combination. The default book per currency is the fallback when no
// context-specific book matches.
type PriceBook struct {
	ID            uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	Name          string    `gorm:"column:name;not null"`
	Code          string    `gorm:"column:code;uniqueIndex;not null"`
	Currency      string    `gorm:"column:currency;size:3;not null;default:'EUR'"`
	Country       string    `gorm:"column:country;size:2"`
	Channel       string    `gorm:"column:channel"`
	CustomerGroup string    `gorm:"column:customer_group"`
	IsActive      bool      `gorm:"column:is_active;not null;default:true"`
	IsDefault     bool      `gorm:"column:is_default;not null;default:false;index"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (b *PriceBook) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

// PriceBookEntry attaches a price to exactly one of variant, product or
// category at a quantity tier, optionally bounded by an effective window.
type PriceBookEntry struct {
	ID            uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	PriceBookID   uuid.UUID       `gorm:"column:price_book_id;type:uuid;not null;index"`
	VariantID     *uuid.UUID      `gorm:"column:variant_id;type:uuid;index"`
	ProductID     *uuid.UUID      `gorm:"column:product_id;type:uuid;index"`
	CategoryID    *uuid.UUID      `gorm:"column:category_id;type:uuid;index"`
	Price         decimal.Decimal `gorm:"column:price;type:numeric(10,2);not null"`
	EffectiveFrom *time.Time      `gorm:"column:effective_from"`
	EffectiveTo   *time.Time      `gorm:"column:effective_to"`
	MinQuantity   int             `gorm:"column:min_quantity;not null;default:1"`
	MaxQuantity   *int            `gorm:"column:max_quantity"`
	CreatedAt     time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time       `gorm:"column:updated_at;autoUpdateTime"`

	PriceBook *PriceBook `gorm:"foreignKey:PriceBookID"`
}

func (e *PriceBookEntry) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return e.validateScope()
}

func (e *PriceBookEntry) BeforeUpdate(tx *gorm.DB) error {
	return e.validateScope()
}

// validateScope enforces that exactly one of variant/product/category is set.
func (e *PriceBookEntry) validateScope() error {
	set := 0
	if e.VariantID != nil {
		set++
	}
	if e.ProductID != nil {
		set++
	}
	if e.CategoryID != nil {
		set++
	}
	if set != 1 {
		return gorm.ErrInvalidData
	}
	return nil
}

// ScopeLevel orders entries by specificity: variant beats product beats
// category in the base-price tie-break.
func (e PriceBookEntry) ScopeLevel() int {
	switch {
	case e.VariantID != nil:
		return 0
	case e.ProductID != nil:
		return 1
	default:
		return 2
	}
}

// InWindow reports whether the entry is effective at the given time.
func (e PriceBookEntry) InWindow(at time.Time) bool {
	if e.EffectiveFrom != nil && e.EffectiveFrom.After(at) {
		return false
	}
	if e.EffectiveTo != nil && e.EffectiveTo.Before(at) {
		return false
	}
	return true
}

// CoversQuantity reports whether qty falls inside the entry's tier.
func (e PriceBookEntry) CoversQuantity(qty int) bool {
	if qty < e.MinQuantity {
		return false
	}
	if e.MaxQuantity != nil && qty > *e.MaxQuantity {
		return false
	}
	return true
}

// TaxRate is a flat country + tax-class rate with date-level effectivity.
type TaxRate struct {
	ID            uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	Country       string          `gorm:"column:country;size:2;not null;index:idx_tax_country_class"`
	State         string          `gorm:"column:state"`
	Rate          decimal.Decimal `gorm:"column:rate;type:numeric(5,3);not null"`
	TaxClass      string          `gorm:"column:tax_class;not null;default:'standard';index:idx_tax_country_class"`
	IsActive      bool            `gorm:"column:is_active;not null;default:true"`
	EffectiveFrom time.Time       `gorm:"column:effective_from;not null"`
	EffectiveTo   *time.Time      `gorm:"column:effective_to"`
	CreatedAt     time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (t *TaxRate) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}
