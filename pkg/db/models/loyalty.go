package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/pastrypickup-backend/pkg/enums"
)

// LoyaltyPoints is the per-user points account. AvailablePoints always equals
// TotalPoints minus UsedPoints, and equals the sum of the user's transactions.
type LoyaltyPoints struct {
	UserID          uuid.UUID          `gorm:"column:user_id;type:uuid;primaryKey"`
	TotalPoints     int64              `gorm:"column:total_points;not null;default:0"`
	AvailablePoints int64              `gorm:"column:available_points;not null;default:0"`
	UsedPoints      int64              `gorm:"column:used_points;not null;default:0"`
	Level           enums.LoyaltyLevel `gorm:"column:level;type:text;not null"`
	CreatedAt       time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

func (LoyaltyPoints) TableName() string {
	return "loyalty_points"
}

// PointTransaction is an append-only ledger entry. Points are signed:
// accruals positive, redemptions negative.
type PointTransaction struct {
	ID          uuid.UUID                  `gorm:"column:id;type:uuid;primaryKey"`
	UserID      uuid.UUID                  `gorm:"column:user_id;type:uuid;not null;index"`
	Points      int64                      `gorm:"column:points;not null"`
	Type        enums.PointTransactionType `gorm:"column:type;type:text;not null"`
	Reference   *string                    `gorm:"column:reference"`
	Description string                     `gorm:"column:description;not null"`
	CreatedAt   time.Time                  `gorm:"column:created_at;autoCreateTime"`
}

func (t *PointTransaction) BeforeCreate(*gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}
