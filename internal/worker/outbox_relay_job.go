package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/pastrypickup-backend/internal/loyalty"
	"github.com/angelmondragon/pastrypickup-backend/pkg/db/models"
	"github.com/angelmondragon/pastrypickup-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/pastrypickup-backend/pkg/errors"
	"github.com/angelmondragon/pastrypickup-backend/pkg/logger"
	"github.com/angelmondragon/pastrypickup-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/pastrypickup-backend/pkg/outbox/registry"
)

const (
	relayConsumer      = "loyalty-accrual"
	defaultBatchSize   = 50
	defaultMaxAttempts = 10
)

type relayRepository interface {
	FetchUnpublished(ctx context.Context, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublished(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, err error) error
	MarkDead(ctx context.Context, id uuid.UUID, err error, maxAttempts int) error
}

type eventResolver interface {
	Resolve(models.OutboxEvent) (*registry.Decoded, error)
}

type accruer interface {
	Accrue(ctx context.Context, orderID uuid.UUID) (*loyalty.AccrualResult, error)
}

type processedGuard interface {
	Claim(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error)
	Release(ctx context.Context, consumer string, eventID uuid.UUID) error
}

// OutboxRelayJobParams configure the outbox relay.
type OutboxRelayJobParams struct {
	Logger      *logger.Logger
	Repository  relayRepository
	Registry    eventResolver
	Loyalty     accruer
	Guard       processedGuard
	BatchSize   int
	MaxAttempts int
}

// NewOutboxRelayJob drains queued events and hands order_placed to loyalty
// accrual. Events nothing in this service consumes are marked delivered.
func NewOutboxRelayJob(params OutboxRelayJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("outbox repository required")
	}
	if params.Registry == nil {
		return nil, fmt.Errorf("event registry required")
	}
	if params.Loyalty == nil {
		return nil, fmt.Errorf("loyalty service required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	attempts := params.MaxAttempts
	if attempts <= 0 {
		attempts = defaultMaxAttempts
	}
	return &outboxRelayJob{
		logg:        params.Logger,
		repo:        params.Repository,
		registry:    params.Registry,
		loyalty:     params.Loyalty,
		guard:       params.Guard,
		batchSize:   batch,
		maxAttempts: attempts,
	}, nil
}

type outboxRelayJob struct {
	logg        *logger.Logger
	repo        relayRepository
	registry    eventResolver
	loyalty     accruer
	guard       processedGuard
	batchSize   int
	maxAttempts int
}

func (j *outboxRelayJob) Name() string { return "outbox-relay" }

func (j *outboxRelayJob) Run(ctx context.Context) error {
	events, err := j.repo.FetchUnpublished(ctx, j.batchSize, j.maxAttempts)
	if err != nil {
		return fmt.Errorf("fetch outbox events: %w", err)
	}
	var errs error
	for _, event := range events {
		errs = multierr.Append(errs, j.process(ctx, event))
	}
	if len(events) > 0 {
		j.logg.Info(j.logg.WithField(ctx, "events", len(events)), "outbox batch relayed")
	}
	return errs
}

func (j *outboxRelayJob) process(ctx context.Context, event models.OutboxEvent) error {
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"outbox_id":    event.ID.String(),
		"event_type":   event.EventType,
		"aggregate_id": event.AggregateID.String(),
	})

	resolved, err := j.registry.Resolve(event)
	if err != nil {
		if errors.Is(err, registry.ErrUndecodable) {
			j.logg.Warn(logCtx, fmt.Sprintf("dropping undecodable event: %v", err))
			return recorded(j.repo.MarkDead(ctx, event.ID, err, j.maxAttempts))
		}
		return j.fail(ctx, event, err)
	}

	if event.EventType != enums.EventOrderPlaced {
		return recorded(j.repo.MarkPublished(ctx, event.ID))
	}

	if j.guard != nil {
		first, err := j.guard.Claim(ctx, relayConsumer, event.ID)
		if err != nil {
			return j.fail(ctx, event, err)
		}
		if !first {
			j.logg.Debug(logCtx, "event already handled")
			return recorded(j.repo.MarkPublished(ctx, event.ID))
		}
	}

	placed, ok := resolved.Payload.(*payloads.OrderPlacedEvent)
	if !ok {
		return recorded(j.repo.MarkDead(ctx, event.ID, fmt.Errorf("unexpected payload %T", resolved.Payload), j.maxAttempts))
	}
	result, err := j.loyalty.Accrue(ctx, placed.OrderID)
	switch {
	case pkgerrors.Is(err, pkgerrors.ReasonAlreadyAccrued):
		j.logg.Debug(logCtx, "order already accrued")
	case err != nil:
		if j.guard != nil {
			if delErr := j.guard.Release(ctx, relayConsumer, event.ID); delErr != nil {
				err = multierr.Append(err, delErr)
			}
		}
		return j.fail(ctx, event, err)
	case result.Skipped:
		j.logg.Debug(j.logg.WithField(logCtx, "reason", result.SkipReason), "accrual skipped")
	}
	return recorded(j.repo.MarkPublished(ctx, event.ID))
}

func (j *outboxRelayJob) fail(ctx context.Context, event models.OutboxEvent, cause error) error {
	if err := j.repo.MarkFailed(ctx, event.ID, cause); err != nil {
		return multierr.Append(cause, fmt.Errorf("mark outbox event failed: %w", err))
	}
	return fmt.Errorf("outbox event %s: %w", event.ID, cause)
}

func recorded(err error) error {
	if err != nil {
		return fmt.Errorf("update outbox event: %w", err)
	}
	return nil
}
