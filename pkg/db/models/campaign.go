package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	dbtypes "github.com/mfeldmann/storehaus-backend/pkg/db/types"
	"github.com/mfeldmann/storehaus-backend/pkg/enums"
)

// Campaign is a promotional rule set applied on top of the resolved base
// price. Stacking order is priority descending, id ascending.
type Campaign struct {
	ID                     uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	Name                   string             `gorm:"column:name;not null"`
	Code                   string             `gorm:"column:code;uniqueIndex;not null"`
	Description            string             `gorm:"column:description"`
	IsActive               bool               `gorm:"column:is_active;not null;default:false;index"`
	StartsAt               time.Time          `gorm:"column:starts_at;not null"`
	EndsAt                 *time.Time         `gorm:"column:ends_at"`
	Priority               int                `gorm:"column:priority;not null;default:0;index"`
	StackingType           enums.StackingType `gorm:"column:stacking_type;not null;default:'none'"`
	CombinableWith         dbtypes.StringList `gorm:"column:combinable_with;type:text"`
	CustomerGroups         dbtypes.StringList `gorm:"column:customer_groups;type:text"`
	ExcludedCustomerGroups dbtypes.StringList `gorm:"column:excluded_customer_groups;type:text"`
	UsageLimit             int                `gorm:"column:usage_limit;not null;default:0"`
	UsageCount             int                `gorm:"column:usage_count;not null;default:0"`
	CreatedAt              time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt              time.Time          `gorm:"column:updated_at;autoUpdateTime"`

	Rules     []CampaignRule     `gorm:"foreignKey:CampaignID"`
	Discounts []CampaignDiscount `gorm:"foreignKey:CampaignID"`
}

func (c *Campaign) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// InWindow reports whether the campaign's schedule covers the given time.
// IsActive is tracked separately and flipped by the activation job.
func (c Campaign) InWindow(at time.Time) bool {
	if c.StartsAt.After(at) {
		return false
	}
	if c.EndsAt != nil && c.EndsAt.Before(at) {
		return false
	}
	return true
}

// UsageExhausted reports whether the usage limit has been reached.
// A zero limit means unlimited.
func (c Campaign) UsageExhausted() bool {
	return c.UsageLimit > 0 && c.UsageCount >= c.UsageLimit
}

// AppliesToGroup checks the customer-group allow and deny lists.
func (c Campaign) AppliesToGroup(group string) bool {
	if c.ExcludedCustomerGroups.Contains(group) {
		return false
	}
	if len(c.CustomerGroups) == 0 {
		return true
	}
	return c.CustomerGroups.Contains(group)
}

// CombinableWithCode reports whether a "combined" campaign may stack with
// the campaign identified by code.
func (c Campaign) CombinableWithCode(code string) bool {
	return c.CombinableWith.Contains(code)
}

// CampaignRule restricts a campaign to a slice of the catalog. Include
// rules widen the match set, exclude rules always win over includes.
type CampaignRule struct {
	ID         uuid.UUID        `gorm:"column:id;type:uuid;primaryKey"`
	CampaignID uuid.UUID        `gorm:"column:campaign_id;type:uuid;not null;index"`
	Kind       enums.RuleKind   `gorm:"column:kind;not null"`
	Action     enums.RuleAction `gorm:"column:action;not null;default:'include'"`
	VariantID  *uuid.UUID       `gorm:"column:variant_id;type:uuid"`
	ProductID  *uuid.UUID       `gorm:"column:product_id;type:uuid"`
	CategoryID *uuid.UUID       `gorm:"column:category_id;type:uuid"`
	Brand      string           `gorm:"column:brand"`
	AttrKey    string           `gorm:"column:attr_key"`
	AttrValue  string           `gorm:"column:attr_value"`
	CreatedAt  time.Time        `gorm:"column:created_at;autoCreateTime"`
}

func (r *CampaignRule) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// CampaignDiscount is the price effect of a matched campaign, bounded to
// a quantity range.
type CampaignDiscount struct {
	ID                uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	CampaignID        uuid.UUID          `gorm:"column:campaign_id;type:uuid;not null;index"`
	DiscountType      enums.DiscountType `gorm:"column:discount_type;not null"`
	Value             decimal.Decimal    `gorm:"column:value;type:numeric(10,2);not null"`
	MaxDiscountAmount *decimal.Decimal   `gorm:"column:max_discount_amount;type:numeric(10,2)"`
	MinPrice          *decimal.Decimal   `gorm:"column:min_price;type:numeric(10,2)"`
	MinQuantity       int                `gorm:"column:min_quantity;not null;default:1"`
	MaxQuantity       *int               `gorm:"column:max_quantity"`
	CreatedAt         time.Time          `gorm:"column:created_at;autoCreateTime"`
}

func (d *CampaignDiscount) BeforeCreate(tx *gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	if d.MinQuantity <= 0 {
		d.MinQuantity = 1
	}
	return nil
}

// CoversQuantity reports whether qty falls inside the discount's range.
func (d CampaignDiscount) CoversQuantity(qty int) bool {
	if qty < d.MinQuantity {
		return false
	}
	if d.MaxQuantity != nil && qty > *d.MaxQuantity {
		return false
	}
	return true
}
