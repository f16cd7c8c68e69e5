package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Product is the catalog entry. This service only reads it and adjusts stock.
type Product struct {
	ID          uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	CategoryID  *uuid.UUID `gorm:"column:category_id;type:uuid"`
	Name        string     `gorm:"column:name;not null"`
	Price       int64      `gorm:"column:price;not null"`
	Stock       int        `gorm:"column:stock;not null;default:0"`
	IsActive    bool       `gorm:"column:is_active;not null"`
	IsAvailable bool       `gorm:"column:is_available;not null"`
	CreatedAt   time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *Product) BeforeCreate(*gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// Sellable reports whether the product may be ordered at all.
func (p Product) Sellable() bool {
	return p.IsActive && p.IsAvailable
}
