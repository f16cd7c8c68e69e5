package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Coupon is authored elsewhere; checkout only bumps its usage counter.
type Coupon struct {
	ID         uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	Code       string    `gorm:"column:code;not null;uniqueIndex"`
	UsageCount int       `gorm:"column:usage_count;not null;default:0"`
	UsageLimit *int      `gorm:"column:usage_limit"`
	IsActive   bool      `gorm:"column:is_active;not null"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (c *Coupon) BeforeCreate(*gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// CouponUsage records one coupon applied to one order. Voided when the order
// is cancelled; otherwise immutable.
type CouponUsage struct {
	ID             uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	CouponID       uuid.UUID  `gorm:"column:coupon_id;type:uuid;not null;uniqueIndex:coupon_usages_coupon_order_key,priority:1"`
	OrderID        uuid.UUID  `gorm:"column:order_id;type:uuid;not null;uniqueIndex:coupon_usages_coupon_order_key,priority:2;index"`
	UserID         *uuid.UUID `gorm:"column:user_id;type:uuid"`
	Code           string     `gorm:"column:code;not null"`
	DiscountAmount int64      `gorm:"column:discount_amount;not null"`
	VoidedAt       *time.Time `gorm:"column:voided_at"`
	CreatedAt      time.Time  `gorm:"column:created_at;autoCreateTime"`
}

func (u *CouponUsage) BeforeCreate(*gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}
