package coupons

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/pastrypickup-backend/pkg/db"
	"github.com/angelmondragon/pastrypickup-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/pastrypickup-backend/pkg/errors"
)

const usageUniqueConstraint = "coupon_usages_coupon_order_key"

// UsageRepository records coupon redemptions against orders and keeps each
// coupon's usage counter in step.
type UsageRepository interface {
	WithTx(tx *gorm.DB) UsageRepository
	Record(ctx context.Context, orderID uuid.UUID, userID *uuid.UUID, applied []AppliedCoupon) error
	VoidByOrder(ctx context.Context, orderID uuid.UUID, at time.Time) (int, error)
}

type usageRepository struct {
	db *gorm.DB
}

func NewUsageRepository(db *gorm.DB) UsageRepository {
	return &usageRepository{db: db}
}

func (r *usageRepository) WithTx(tx *gorm.DB) UsageRepository {
	if tx == nil {
		return r
	}
	return &usageRepository{db: tx}
}

// Record inserts one usage per coupon and bumps the coupon counter. A coupon
// already at its usage limit fails the whole call.
func (r *usageRepository) Record(ctx context.Context, orderID uuid.UUID, userID *uuid.UUID, applied []AppliedCoupon) error {
	for _, coupon := range applied {
		if err := r.incrementUsage(ctx, coupon); err != nil {
			return err
		}
		usage := models.CouponUsage{
			CouponID:       coupon.ID,
			OrderID:        orderID,
			UserID:         userID,
			Code:           coupon.Code,
			DiscountAmount: coupon.DiscountAmount,
		}
		if err := r.db.WithContext(ctx).Create(&usage).Error; err != nil {
			if db.IsUniqueViolation(err, usageUniqueConstraint) {
				return pkgerrors.Newf(pkgerrors.CodeValidation, pkgerrors.ReasonDuplicateCoupon,
					"coupon %s already recorded for order", coupon.Code)
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record coupon usage")
		}
	}
	return nil
}

func (r *usageRepository) incrementUsage(ctx context.Context, coupon AppliedCoupon) error {
	res := r.db.WithContext(ctx).
		Model(&models.Coupon{}).
		Where("id = ? AND is_active = ?", coupon.ID, true).
		Where("usage_limit IS NULL OR usage_count < usage_limit").
		Update("usage_count", gorm.Expr("usage_count + 1"))
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "increment coupon usage")
	}
	if res.RowsAffected > 0 {
		return nil
	}

	var existing models.Coupon
	err := r.db.WithContext(ctx).Where("id = ? AND is_active = ?", coupon.ID, true).First(&existing).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return pkgerrors.Newf(pkgerrors.CodeValidation, pkgerrors.ReasonCouponNotFound,
			"coupon %s is not available", coupon.Code)
	case err != nil:
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load coupon")
	}
	return pkgerrors.Newf(pkgerrors.CodeConflict, pkgerrors.ReasonCouponLimitReached,
		"coupon %s reached its usage limit", coupon.Code)
}

// VoidByOrder marks the order's live usages as voided and gives each coupon
// its use back. It returns how many usages were voided.
func (r *usageRepository) VoidByOrder(ctx context.Context, orderID uuid.UUID, at time.Time) (int, error) {
	live, err := r.listLive(ctx, orderID)
	if err != nil {
		return 0, err
	}
	for _, usage := range live {
		if err := r.db.WithContext(ctx).
			Model(&models.Coupon{}).
			Where("id = ? AND usage_count > 0", usage.CouponID).
			Update("usage_count", gorm.Expr("usage_count - 1")).Error; err != nil {
			return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "release coupon usage")
		}
	}
	if len(live) == 0 {
		return 0, nil
	}
	if err := r.db.WithContext(ctx).
		Model(&models.CouponUsage{}).
		Where("order_id = ? AND voided_at IS NULL", orderID).
		Update("voided_at", at).Error; err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "void coupon usages")
	}
	return len(live), nil
}

func (r *usageRepository) listLive(ctx context.Context, orderID uuid.UUID) ([]models.CouponUsage, error) {
	var rows []models.CouponUsage
	if err := r.db.WithContext(ctx).
		Where("order_id = ? AND voided_at IS NULL", orderID).
		Find(&rows).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list coupon usages")
	}
	return rows, nil
}
