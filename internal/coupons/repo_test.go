package coupons

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/pastrypickup-backend/pkg/db/dbtest"
	"github.com/angelmondragon/pastrypickup-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/pastrypickup-backend/pkg/errors"
)

func TestRecordAndVoidUsages(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewUsageRepository(conn)
	ctx := context.Background()
	coupon := dbtest.SeedCoupon(t, conn, "PAN10", nil)
	orderID := uuid.New()

	err := repo.Record(ctx, orderID, nil, []AppliedCoupon{{ID: coupon.ID, Code: coupon.Code, DiscountAmount: 500}})
	require.NoError(t, err)

	var loaded models.Coupon
	require.NoError(t, conn.First(&loaded, "id = ?", coupon.ID).Error)
	require.Equal(t, 1, loaded.UsageCount)

	var usages []models.CouponUsage
	require.NoError(t, conn.Where("order_id = ?", orderID).Find(&usages).Error)
	require.Len(t, usages, 1)
	require.Equal(t, int64(500), usages[0].DiscountAmount)
	require.Nil(t, usages[0].VoidedAt)

	voided, err := repo.VoidByOrder(ctx, orderID, time.Now().UTC())
	require.NoError(t, err)
	require.Equal(t, 1, voided)

	require.NoError(t, conn.First(&loaded, "id = ?", coupon.ID).Error)
	require.Equal(t, 0, loaded.UsageCount)

	voided, err = repo.VoidByOrder(ctx, orderID, time.Now().UTC())
	require.NoError(t, err)
	require.Zero(t, voided, "voiding twice must not release the coupon twice")
}

func TestRecordRespectsUsageLimit(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewUsageRepository(conn)
	ctx := context.Background()
	limit := 1
	coupon := dbtest.SeedCoupon(t, conn, "ONCE", &limit)
	applied := []AppliedCoupon{{ID: coupon.ID, Code: coupon.Code, DiscountAmount: 100}}

	require.NoError(t, repo.Record(ctx, uuid.New(), nil, applied))

	err := repo.Record(ctx, uuid.New(), nil, applied)
	require.True(t, pkgerrors.Is(err, pkgerrors.ReasonCouponLimitReached), "got %v", err)
}

func TestRecordUnknownCoupon(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewUsageRepository(conn)

	err := repo.Record(context.Background(), uuid.New(), nil, []AppliedCoupon{{ID: uuid.New(), Code: "GHOST", DiscountAmount: 100}})
	require.True(t, pkgerrors.Is(err, pkgerrors.ReasonCouponNotFound), "got %v", err)
}
