package catalog

import (
	"context"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/angelmondragon/pastrypickup-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/pastrypickup-backend/pkg/errors"
)

// MaxLineQuantity caps the units a single order line may request. Request
// tags on checkout and modify payloads repeat the value.
const MaxLineQuantity = 999

// Demand is the number of units wanted per product.
type Demand map[uuid.UUID]int

// Add accumulates qty units of productID.
func (d Demand) Add(productID uuid.UUID, qty int) {
	d[productID] += qty
}

// ProductIDs returns the demanded products in lock order.
func (d Demand) ProductIDs() []uuid.UUID {
	return SortedIDs(lo.Keys(d))
}

// EnsureSellable fails on the first demanded product that is missing or not
// orderable. Products are visited in lock order so the reported product is
// deterministic.
func EnsureSellable(products map[uuid.UUID]models.Product, demand Demand) error {
	for _, id := range demand.ProductIDs() {
		product, ok := products[id]
		if !ok {
			return pkgerrors.Newf(pkgerrors.CodeValidation, pkgerrors.ReasonProductNotFound, "product %s not found", id).
				WithDetails(map[string]any{"productId": id})
		}
		if !product.Sellable() {
			return pkgerrors.Newf(pkgerrors.CodeConflict, pkgerrors.ReasonProductUnavailable, "%s is not available", product.Name).
				WithDetails(map[string]any{"productId": id})
		}
	}
	return nil
}

// EnsureStock fails when any product has fewer units than demanded. Only
// positive demand is checked.
func EnsureStock(products map[uuid.UUID]models.Product, demand Demand) error {
	for _, id := range demand.ProductIDs() {
		qty := demand[id]
		if qty <= 0 {
			continue
		}
		product, ok := products[id]
		if !ok {
			return pkgerrors.Newf(pkgerrors.CodeValidation, pkgerrors.ReasonProductNotFound, "product %s not found", id).
				WithDetails(map[string]any{"productId": id})
		}
		if qty > product.Stock {
			return pkgerrors.Newf(pkgerrors.CodeConflict, pkgerrors.ReasonInsufficientStock,
				"only %d units of %s left", product.Stock, product.Name).
				WithDetails(map[string]any{"productId": id, "requested": qty, "available": product.Stock})
		}
	}
	return nil
}

// Apply moves stock by the negated demand: positive demand decrements,
// negative demand restores.
func Apply(ctx context.Context, repo Repository, demand Demand) error {
	for _, id := range demand.ProductIDs() {
		if err := repo.AdjustStock(ctx, id, -demand[id]); err != nil {
			return err
		}
	}
	return nil
}
