package catalog

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/pastrypickup-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/pastrypickup-backend/pkg/errors"
)

// Repository reads products and moves their stock. Stock only changes
// through AdjustStock.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	GetProducts(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Product, error)
	LockProducts(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Product, error)
	AdjustStock(ctx context.Context, productID uuid.UUID, delta int) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a catalog repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// GetProducts returns the requested products keyed by id. Unknown ids are
// simply absent from the map.
func (r *repository) GetProducts(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Product, error) {
	return r.find(ctx, ids, false)
}

// LockProducts is GetProducts under SELECT ... FOR UPDATE. Rows are locked in
// ascending id order so concurrent checkouts touching overlapping products
// queue instead of deadlocking.
func (r *repository) LockProducts(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Product, error) {
	return r.find(ctx, ids, true)
}

func (r *repository) find(ctx context.Context, ids []uuid.UUID, lock bool) (map[uuid.UUID]models.Product, error) {
	out := map[uuid.UUID]models.Product{}
	unique := SortedIDs(ids)
	if len(unique) == 0 {
		return out, nil
	}

	query := r.db.WithContext(ctx).Where("id IN ?", unique).Order("id ASC")
	if lock {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var rows []models.Product
	if err := query.Find(&rows).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load products")
	}
	for _, row := range rows {
		out[row.ID] = row
	}
	return out, nil
}

// AdjustStock applies delta to the product's stock. A decrement that would
// take stock below zero fails with INSUFFICIENT_STOCK and changes nothing.
func (r *repository) AdjustStock(ctx context.Context, productID uuid.UUID, delta int) error {
	if delta == 0 {
		return nil
	}
	query := r.db.WithContext(ctx).Model(&models.Product{}).Where("id = ?", productID)
	if delta < 0 {
		query = query.Where("stock >= ?", -delta)
	}
	res := query.Update("stock", gorm.Expr("stock + ?", delta))
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "adjust stock")
	}
	if res.RowsAffected > 0 {
		return nil
	}

	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Product{}).Where("id = ?", productID).Count(&count).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "adjust stock")
	}
	if count == 0 {
		return pkgerrors.Newf(pkgerrors.CodeNotFound, pkgerrors.ReasonProductNotFound, "product %s not found", productID)
	}
	return pkgerrors.Newf(pkgerrors.CodeConflict, pkgerrors.ReasonInsufficientStock, "insufficient stock for product %s", productID).
		WithDetails(map[string]any{"productId": productID, "requested": -delta})
}

// SortedIDs de-duplicates ids and orders them the way Postgres orders uuids.
func SortedIDs(ids []uuid.UUID) []uuid.UUID {
	unique := lo.Uniq(lo.Filter(ids, func(id uuid.UUID, _ int) bool { return id != uuid.Nil }))
	sort.Slice(unique, func(i, j int) bool { return unique[i].String() < unique[j].String() })
	return unique
}
