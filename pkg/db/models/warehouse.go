package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Warehouse is a physical stock location.
type Warehouse struct {
	ID         uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	Code       string    `gorm:"column:code;uniqueIndex;not null"`
	Name       string    `gorm:"column:name;not null"`
	Address    string    `gorm:"column:address"`
	City       string    `gorm:"column:city"`
	Country    string    `gorm:"column:country;size:2;not null"`
	PostalCode string    `gorm:"column:postal_code"`
	IsActive   bool      `gorm:"column:is_active;not null;default:true"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (w *Warehouse) BeforeCreate(tx *gorm.DB) error {
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	return nil
}
