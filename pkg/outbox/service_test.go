package outbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/pastrypickup-backend/pkg/db/dbtest"
	"github.com/angelmondragon/pastrypickup-backend/pkg/db/models"
	"github.com/angelmondragon/pastrypickup-backend/pkg/enums"
)

type cancelledData struct {
	OrderNumber string `json:"orderNumber"`
}

func TestEmitWritesEnvelopeInsideTransaction(t *testing.T) {
	conn := dbtest.Open(t)
	svc := NewService(NewRepository(conn), nil)
	orderID := uuid.New()
	at := time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC)

	err := svc.Emit(context.Background(), conn, DomainEvent{
		EventType:     enums.EventOrderCancelled,
		AggregateType: enums.AggregateOrder,
		AggregateID:   orderID,
		OccurredAt:    at,
		Data:          cancelledData{OrderNumber: "PP-7Q2K"},
	})
	require.NoError(t, err)

	var rows []models.OutboxEvent
	require.NoError(t, conn.Find(&rows).Error)
	require.Len(t, rows, 1)
	require.Equal(t, orderID, rows[0].AggregateID)

	var data cancelledData
	envelope, err := DecodeEnvelope(rows[0].Payload, &data)
	require.NoError(t, err)
	require.Equal(t, envelopeVersion, envelope.Version)
	require.True(t, envelope.OccurredAt.Equal(at))
	require.NotEmpty(t, envelope.EventID)
	require.Equal(t, "PP-7Q2K", data.OrderNumber)
}

func TestEmitRollsBackWithCaller(t *testing.T) {
	conn := dbtest.Open(t)
	svc := NewService(NewRepository(conn), nil)
	boom := errors.New("stock check failed")

	err := conn.Transaction(func(tx *gorm.DB) error {
		if err := svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventOrderPlaced,
			AggregateType: enums.AggregateOrder,
			AggregateID:   uuid.New(),
		}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	var count int64
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestEmitRejectsMalformedEvents(t *testing.T) {
	conn := dbtest.Open(t)
	svc := NewService(NewRepository(conn), nil)
	ctx := context.Background()

	require.Error(t, svc.Emit(ctx, nil, DomainEvent{EventType: enums.EventOrderPlaced, AggregateType: enums.AggregateOrder, AggregateID: uuid.New()}))
	require.Error(t, svc.Emit(ctx, conn, DomainEvent{EventType: "order_baked", AggregateType: enums.AggregateOrder, AggregateID: uuid.New()}))
	require.Error(t, svc.Emit(ctx, conn, DomainEvent{EventType: enums.EventOrderPlaced, AggregateType: enums.AggregateOrder}))
	require.Error(t, svc.Emit(ctx, conn, DomainEvent{
		EventType: enums.EventOrderPlaced, AggregateType: enums.AggregateOrder, AggregateID: uuid.New(),
		Data: make(chan int),
	}))
}

func TestRepositoryDeliveryLifecycle(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	svc := NewService(repo, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, svc.Emit(ctx, conn, DomainEvent{
			EventType:     enums.EventOrderPlaced,
			AggregateType: enums.AggregateOrder,
			AggregateID:   uuid.New(),
		}))
	}
	pending, err := repo.FetchUnpublished(ctx, 10, 3)
	require.NoError(t, err)
	require.Len(t, pending, 3)

	require.NoError(t, repo.MarkPublished(ctx, pending[0].ID))
	require.NoError(t, repo.MarkFailed(ctx, pending[1].ID, errors.New("accrual timeout")))
	require.NoError(t, repo.MarkDead(ctx, pending[2].ID, errors.New("bad payload"), 3))

	pending, err = repo.FetchUnpublished(ctx, 10, 3)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, 1, pending[0].AttemptCount)
	require.Equal(t, "accrual timeout", *pending[0].LastError)

	removed, err := repo.DeletePublishedBefore(ctx, time.Now().UTC().Add(-time.Hour))
	require.NoError(t, err)
	require.Zero(t, removed)
	removed, err = repo.DeletePublishedBefore(ctx, time.Now().UTC().Add(time.Hour))
	require.NoError(t, err)
	require.EqualValues(t, 1, removed)
}
