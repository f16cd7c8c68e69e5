package loyalty

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/pastrypickup-backend/pkg/db"
	"github.com/angelmondragon/pastrypickup-backend/pkg/db/models"
	"github.com/angelmondragon/pastrypickup-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/pastrypickup-backend/pkg/errors"
)

const earnedReferenceIndex = "ux_point_transactions_earned_reference"

// LedgerTotals is what the transaction log says an account should hold.
type LedgerTotals struct {
	Earned   int64
	Redeemed int64
	Adjusted int64
	Sum      int64
}

// Repository persists loyalty accounts and their append-only ledger.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	EnsureAccount(ctx context.Context, userID uuid.UUID, level enums.LoyaltyLevel) error
	LockAccount(ctx context.Context, userID uuid.UUID) (*models.LoyaltyPoints, error)
	Credit(ctx context.Context, userID uuid.UUID, points int64, level enums.LoyaltyLevel) error
	Debit(ctx context.Context, userID uuid.UUID, points int64) error
	SetBalances(ctx context.Context, account models.LoyaltyPoints) error
	SetLevel(ctx context.Context, userID uuid.UUID, level enums.LoyaltyLevel) error
	Append(ctx context.Context, entry *models.PointTransaction) error
	HasEarned(ctx context.Context, reference string) (bool, error)
	ListTransactions(ctx context.Context, userID uuid.UUID, limit int) ([]models.PointTransaction, error)
	Totals(ctx context.Context, userID uuid.UUID) (LedgerTotals, error)
	ListAccountIDs(ctx context.Context, after uuid.UUID, limit int) ([]uuid.UUID, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a loyalty repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// EnsureAccount inserts an empty account unless one exists.
func (r *repository) EnsureAccount(ctx context.Context, userID uuid.UUID, level enums.LoyaltyLevel) error {
	account := models.LoyaltyPoints{UserID: userID, Level: level}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}}, DoNothing: true}).
		Create(&account).Error
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create loyalty account")
	}
	return nil
}

// LockAccount reads the account under SELECT ... FOR UPDATE.
func (r *repository) LockAccount(ctx context.Context, userID uuid.UUID) (*models.LoyaltyPoints, error) {
	return r.first(ctx, r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), userID)
}

func (r *repository) first(_ context.Context, query *gorm.DB, userID uuid.UUID) (*models.LoyaltyPoints, error) {
	var account models.LoyaltyPoints
	err := query.Where("user_id = ?", userID).First(&account).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "loyalty account not found")
	case err != nil:
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load loyalty account")
	}
	return &account, nil
}

// Credit adds earned points to total and available and stores the new level.
func (r *repository) Credit(ctx context.Context, userID uuid.UUID, points int64, level enums.LoyaltyLevel) error {
	err := r.db.WithContext(ctx).
		Model(&models.LoyaltyPoints{}).
		Where("user_id = ?", userID).
		Updates(map[string]any{
			"total_points":     gorm.Expr("total_points + ?", points),
			"available_points": gorm.Expr("available_points + ?", points),
			"level":            level,
		}).Error
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "credit loyalty points")
	}
	return nil
}

// Debit moves points from available to used. The balance guard makes a stale
// read fail with INSUFFICIENT_POINTS instead of going negative.
func (r *repository) Debit(ctx context.Context, userID uuid.UUID, points int64) error {
	res := r.db.WithContext(ctx).
		Model(&models.LoyaltyPoints{}).
		Where("user_id = ? AND available_points >= ?", userID, points).
		Updates(map[string]any{
			"available_points": gorm.Expr("available_points - ?", points),
			"used_points":      gorm.Expr("used_points + ?", points),
		})
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "debit loyalty points")
	}
	if res.RowsAffected == 0 {
		return insufficientPoints(points, -1)
	}
	return nil
}

// SetBalances overwrites the cached balances and level.
func (r *repository) SetBalances(ctx context.Context, account models.LoyaltyPoints) error {
	err := r.db.WithContext(ctx).
		Model(&models.LoyaltyPoints{}).
		Where("user_id = ?", account.UserID).
		Updates(map[string]any{
			"total_points":     account.TotalPoints,
			"available_points": account.AvailablePoints,
			"used_points":      account.UsedPoints,
			"level":            account.Level,
		}).Error
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update loyalty balances")
	}
	return nil
}

func (r *repository) SetLevel(ctx context.Context, userID uuid.UUID, level enums.LoyaltyLevel) error {
	err := r.db.WithContext(ctx).
		Model(&models.LoyaltyPoints{}).
		Where("user_id = ?", userID).
		Update("level", level).Error
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update loyalty level")
	}
	return nil
}

// Append writes one ledger entry. A second purchase accrual for the same
// order trips the partial unique index and reports ALREADY_ACCRUED.
func (r *repository) Append(ctx context.Context, entry *models.PointTransaction) error {
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		if db.IsUniqueViolation(err, earnedReferenceIndex) {
			return alreadyAccrued(entry.Reference)
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append point transaction")
	}
	return nil
}

func (r *repository) HasEarned(ctx context.Context, reference string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.PointTransaction{}).
		Where("reference = ? AND type = ?", reference, enums.PointsEarnedPurchase).
		Count(&count).Error
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check accrual")
	}
	return count > 0, nil
}

// ListTransactions returns the newest entries first.
func (r *repository) ListTransactions(ctx context.Context, userID uuid.UUID, limit int) ([]models.PointTransaction, error) {
	var rows []models.PointTransaction
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list point transactions")
	}
	return rows, nil
}

func (r *repository) Totals(ctx context.Context, userID uuid.UUID) (LedgerTotals, error) {
	var rows []struct {
		Type   enums.PointTransactionType
		Points int64
	}
	err := r.db.WithContext(ctx).
		Model(&models.PointTransaction{}).
		Select("type, COALESCE(SUM(points), 0) AS points").
		Where("user_id = ?", userID).
		Group("type").
		Scan(&rows).Error
	if err != nil {
		return LedgerTotals{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum point transactions")
	}
	var totals LedgerTotals
	for _, row := range rows {
		switch row.Type {
		case enums.PointsEarnedPurchase:
			totals.Earned += row.Points
		case enums.PointsRedeemedDiscount:
			totals.Redeemed -= row.Points
		default:
			totals.Adjusted += row.Points
		}
		totals.Sum += row.Points
	}
	return totals, nil
}

// ListAccountIDs pages through accounts in user id order.
func (r *repository) ListAccountIDs(ctx context.Context, after uuid.UUID, limit int) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	query := r.db.WithContext(ctx).Model(&models.LoyaltyPoints{}).Order("user_id ASC").Limit(limit)
	if after != uuid.Nil {
		query = query.Where("user_id > ?", after)
	}
	if err := query.Pluck("user_id", &ids).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list loyalty accounts")
	}
	return ids, nil
}
