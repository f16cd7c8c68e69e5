package loyalty

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/pastrypickup-backend/internal/orders"
	"github.com/angelmondragon/pastrypickup-backend/pkg/db/models"
	"github.com/angelmondragon/pastrypickup-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/pastrypickup-backend/pkg/errors"
	"github.com/angelmondragon/pastrypickup-backend/pkg/logger"
	"github.com/angelmondragon/pastrypickup-backend/pkg/metrics"
	"github.com/angelmondragon/pastrypickup-backend/pkg/outbox"
	"github.com/angelmondragon/pastrypickup-backend/pkg/outbox/payloads"
)

const (
	DefaultPointsDivisor  = 100
	DefaultRedemptionRate = 100
	DefaultHistoryLimit   = 50
	maxHistoryLimit       = 200
)

// Skip reasons reported by Accrue when nothing was credited.
const (
	SkipGuestOrder     = "guest_order"
	SkipDraftOrder     = "draft_order"
	SkipCancelledOrder = "cancelled_order"
	SkipNoPoints       = "no_points"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Rates converts between money and points. Both are minor units per point.
type Rates struct {
	PointsDivisor  int64
	RedemptionRate int64
}

// ServiceParams groups dependencies for the loyalty ledger.
type ServiceParams struct {
	Tx      txRunner
	Repo    Repository
	Orders  orders.Repository
	Outbox  outbox.Emitter
	Tiers   TierTable
	Rates   Rates
	Logger  *logger.Logger
	Metrics *metrics.OrderMetrics
}

// AccrualResult says what an accrual did. Skipped results carry SkipReason.
type AccrualResult struct {
	OrderID     uuid.UUID
	UserID      uuid.UUID
	Earned      int64
	LevelBefore enums.LoyaltyLevel
	LevelAfter  enums.LoyaltyLevel
	Skipped     bool
	SkipReason  string
}

// Redemption is the outcome of converting points into a discount.
type Redemption struct {
	Points         int64
	DiscountAmount int64
	Account        models.LoyaltyPoints
	Transaction    models.PointTransaction
}

// Account is the read view of a loyalty account.
type Account struct {
	UserID          uuid.UUID
	TotalPoints     int64
	AvailablePoints int64
	UsedPoints      int64
	Level           enums.LoyaltyLevel
	NextLevel       *enums.LoyaltyLevel
	PointsToNext    int64
}

// Reconciliation compares an account with its ledger.
type Reconciliation struct {
	UserID         uuid.UUID
	Cached         models.LoyaltyPoints
	Ledger         LedgerTotals
	Drift          int64
	LevelHealed    bool
	BalancesHealed bool
}

// Service maintains per-user point balances and tiers.
type Service interface {
	Accrue(ctx context.Context, orderID uuid.UUID) (*AccrualResult, error)
	Redeem(ctx context.Context, userID uuid.UUID, points int64, reference string) (*Redemption, error)
	GetAccount(ctx context.Context, userID uuid.UUID) (*Account, error)
	History(ctx context.Context, userID uuid.UUID, limit int) ([]models.PointTransaction, error)
	Reconcile(ctx context.Context, userID uuid.UUID, heal bool) (*Reconciliation, error)
}

type service struct {
	tx      txRunner
	repo    Repository
	orders  orders.Repository
	outbox  outbox.Emitter
	tiers   TierTable
	rates   Rates
	logg    *logger.Logger
	metrics *metrics.OrderMetrics
}

// NewService wires the loyalty ledger.
func NewService(params ServiceParams) (Service, error) {
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("loyalty repository required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if len(params.Tiers.tiers) == 0 {
		return nil, fmt.Errorf("tier table required")
	}
	rates := params.Rates
	if rates.PointsDivisor <= 0 {
		rates.PointsDivisor = DefaultPointsDivisor
	}
	if rates.RedemptionRate <= 0 {
		rates.RedemptionRate = DefaultRedemptionRate
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{
		tx:      params.Tx,
		repo:    params.Repo,
		orders:  params.Orders,
		outbox:  params.Outbox,
		tiers:   params.Tiers,
		rates:   rates,
		logg:    logg,
		metrics: params.Metrics,
	}, nil
}

// Accrue credits the order's owner once per order. The multiplier is taken
// from the level before the credit; the level after is derived from the new
// lifetime total.
func (s *service) Accrue(ctx context.Context, orderID uuid.UUID) (*AccrualResult, error) {
	result := &AccrualResult{OrderID: orderID}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		order, err := s.orders.WithTx(tx).FindByID(ctx, orderID)
		if err != nil {
			return err
		}
		if reason := skipReason(*order); reason != "" {
			result.Skipped, result.SkipReason = true, reason
			return nil
		}
		userID := *order.UserID
		result.UserID = userID

		repo := s.repo.WithTx(tx)
		if err := repo.EnsureAccount(ctx, userID, s.tiers.LevelFor(0)); err != nil {
			return err
		}
		account, err := repo.LockAccount(ctx, userID)
		if err != nil {
			return err
		}
		reference := orderID.String()
		done, err := repo.HasEarned(ctx, reference)
		if err != nil {
			return err
		}
		if done {
			return alreadyAccrued(&reference)
		}

		result.LevelBefore = s.tiers.LevelFor(account.TotalPoints)
		result.Earned = s.earned(order.Total, result.LevelBefore)
		result.LevelAfter = s.tiers.LevelFor(account.TotalPoints + result.Earned)
		if result.Earned <= 0 {
			result.Skipped, result.SkipReason = true, SkipNoPoints
			return nil
		}

		if err := repo.Credit(ctx, userID, result.Earned, result.LevelAfter); err != nil {
			return err
		}
		return repo.Append(ctx, &models.PointTransaction{
			UserID:      userID,
			Points:      result.Earned,
			Type:        enums.PointsEarnedPurchase,
			Reference:   &reference,
			Description: fmt.Sprintf("Purchase %s", order.OrderNumber),
		})
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithOrderID(ctx, orderID.String())
	if result.Skipped {
		s.logg.Debug(s.logg.WithField(logCtx, "reason", result.SkipReason), "loyalty accrual skipped")
		return result, nil
	}
	s.metrics.AddPointsEarned(result.Earned)
	s.logg.Info(s.logg.WithFields(s.logg.WithUserID(logCtx, result.UserID.String()), map[string]any{
		"points":       result.Earned,
		"level_before": result.LevelBefore,
		"level_after":  result.LevelAfter,
	}), "loyalty points accrued")
	return result, nil
}

func skipReason(order models.Order) string {
	switch {
	case order.UserID == nil:
		return SkipGuestOrder
	case order.Status == enums.OrderStatusDraft:
		return SkipDraftOrder
	case order.Status == enums.OrderStatusCancelled:
		return SkipCancelledOrder
	}
	return ""
}

// earned is floor(floor(total/divisor) * multiplier).
func (s *service) earned(total int64, level enums.LoyaltyLevel) int64 {
	if total <= 0 {
		return 0
	}
	base := decimal.NewFromInt(total / s.rates.PointsDivisor)
	return base.Mul(s.tiers.Multiplier(level)).Floor().IntPart()
}

// Redeem converts points into a discount of points x redemption rate.
// Lifetime total and level are untouched.
func (s *service) Redeem(ctx context.Context, userID uuid.UUID, points int64, reference string) (*Redemption, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user required")
	}
	if points <= 0 {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, pkgerrors.ReasonInvalidPoints, "points must be positive, got %d", points)
	}

	out := &Redemption{Points: points, DiscountAmount: points * s.rates.RedemptionRate}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.EnsureAccount(ctx, userID, s.tiers.LevelFor(0)); err != nil {
			return err
		}
		account, err := repo.LockAccount(ctx, userID)
		if err != nil {
			return err
		}
		if points > account.AvailablePoints {
			return insufficientPoints(points, account.AvailablePoints)
		}
		if err := repo.Debit(ctx, userID, points); err != nil {
			return err
		}

		entry := models.PointTransaction{
			UserID:      userID,
			Points:      -points,
			Type:        enums.PointsRedeemedDiscount,
			Description: fmt.Sprintf("Redeemed %d points, discountAmount=%d", points, out.DiscountAmount),
		}
		if reference != "" {
			entry.Reference = &reference
		}
		if err := repo.Append(ctx, &entry); err != nil {
			return err
		}
		out.Transaction = entry

		account.AvailablePoints -= points
		account.UsedPoints += points
		out.Account = *account

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPointsRedeemed,
			AggregateType: enums.AggregateLoyaltyAccount,
			AggregateID:   userID,
			Actor:         &outbox.ActorRef{UserID: &userID, Role: string(enums.RoleCustomer)},
			Data: payloads.PointsRedeemedEvent{
				UserID:         userID,
				Points:         points,
				DiscountAmount: out.DiscountAmount,
				Reference:      reference,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	s.metrics.AddPointsRedeemed(points)
	s.logg.Info(s.logg.WithFields(s.logg.WithUserID(ctx, userID.String()), map[string]any{
		"points":          points,
		"discount_amount": out.DiscountAmount,
	}), "loyalty points redeemed")
	return out, nil
}

// GetAccount returns the account with its level derived from lifetime
// points. A stale stored level is corrected before returning.
func (s *service) GetAccount(ctx context.Context, userID uuid.UUID) (*Account, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user required")
	}
	var view *Account
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.EnsureAccount(ctx, userID, s.tiers.LevelFor(0)); err != nil {
			return err
		}
		account, err := repo.LockAccount(ctx, userID)
		if err != nil {
			return err
		}
		level := s.tiers.LevelFor(account.TotalPoints)
		if level != account.Level {
			s.logg.Warn(s.logg.WithFields(s.logg.WithUserID(ctx, userID.String()), map[string]any{
				"stored":   account.Level,
				"computed": level,
			}), "healing stale loyalty level")
			if err := repo.SetLevel(ctx, userID, level); err != nil {
				return err
			}
			account.Level = level
		}
		view = s.view(*account)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

func (s *service) view(account models.LoyaltyPoints) *Account {
	out := &Account{
		UserID:          account.UserID,
		TotalPoints:     account.TotalPoints,
		AvailablePoints: account.AvailablePoints,
		UsedPoints:      account.UsedPoints,
		Level:           account.Level,
	}
	if next, ok := s.tiers.Next(account.Level); ok {
		level := next.Level
		out.NextLevel = &level
		out.PointsToNext = max(next.MinPoints-account.TotalPoints, 0)
	}
	return out
}

// History lists the newest transactions first.
func (s *service) History(ctx context.Context, userID uuid.UUID, limit int) ([]models.PointTransaction, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user required")
	}
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	limit = min(limit, maxHistoryLimit)
	return s.repo.ListTransactions(ctx, userID, limit)
}

// Reconcile compares cached balances against the ledger. With heal set, the
// cache is rewritten from the ledger and the level recomputed.
func (s *service) Reconcile(ctx context.Context, userID uuid.UUID, heal bool) (*Reconciliation, error) {
	var out *Reconciliation
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		account, err := repo.LockAccount(ctx, userID)
		if err != nil {
			return err
		}
		totals, err := repo.Totals(ctx, userID)
		if err != nil {
			return err
		}
		out = &Reconciliation{
			UserID: userID,
			Cached: *account,
			Ledger: totals,
			Drift:  account.AvailablePoints - totals.Sum,
		}
		level := s.tiers.LevelFor(account.TotalPoints)
		if !heal {
			return nil
		}
		if out.Drift != 0 {
			healed := models.LoyaltyPoints{
				UserID:          userID,
				TotalPoints:     max(totals.Earned+totals.Adjusted, 0),
				UsedPoints:      totals.Redeemed,
				AvailablePoints: totals.Sum,
			}
			healed.Level = s.tiers.LevelFor(healed.TotalPoints)
			out.BalancesHealed = true
			out.LevelHealed = healed.Level != account.Level
			return repo.SetBalances(ctx, healed)
		}
		if level != account.Level {
			out.LevelHealed = true
			return repo.SetLevel(ctx, userID, level)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if out.Drift != 0 {
		s.logg.Warn(s.logg.WithFields(s.logg.WithUserID(ctx, userID.String()), map[string]any{
			"cached_available": out.Cached.AvailablePoints,
			"ledger_sum":       out.Ledger.Sum,
			"drift":            out.Drift,
			"healed":           out.BalancesHealed,
		}), "loyalty ledger drift")
	}
	return out, nil
}

func alreadyAccrued(reference *string) error {
	ref := ""
	if reference != nil {
		ref = *reference
	}
	return pkgerrors.Newf(pkgerrors.CodeConflict, pkgerrors.ReasonAlreadyAccrued, "points already accrued for order %s", ref)
}

// insufficientPoints reports a redemption above the balance. available < 0
// means the balance was not read.
func insufficientPoints(requested, available int64) error {
	err := pkgerrors.Newf(pkgerrors.CodeConflict, pkgerrors.ReasonInsufficientPoints,
		"cannot redeem %d points", requested)
	if available >= 0 {
		err = err.WithDetails(map[string]any{"requested": requested, "available": available})
	}
	return err
}
