package controllers

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/pastrypickup-backend/api/responses"
	"github.com/angelmondragon/pastrypickup-backend/api/validators"
	"github.com/angelmondragon/pastrypickup-backend/internal/loyalty"
	"github.com/angelmondragon/pastrypickup-backend/pkg/db/models"
	"github.com/angelmondragon/pastrypickup-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/pastrypickup-backend/pkg/errors"
	"github.com/angelmondragon/pastrypickup-backend/pkg/logger"
)

const maxHistoryPage = 200

type loyaltyAccountResponse struct {
	UserID          uuid.UUID           `json:"userId"`
	TotalPoints     int64               `json:"totalPoints"`
	AvailablePoints int64               `json:"availablePoints"`
	UsedPoints      int64               `json:"usedPoints"`
	Level           enums.LoyaltyLevel  `json:"level"`
	NextLevel       *enums.LoyaltyLevel `json:"nextLevel,omitempty"`
	PointsToNext    int64               `json:"pointsToNextLevel"`
}

type pointTransactionResponse struct {
	ID          uuid.UUID                  `json:"id"`
	Points      int64                      `json:"points"`
	Type        enums.PointTransactionType `json:"type"`
	Reference   *string                    `json:"reference,omitempty"`
	Description string                     `json:"description"`
	CreatedAt   time.Time                  `json:"createdAt"`
}

type redeemRequest struct {
	Points    int64  `json:"points"`
	Reference string `json:"reference,omitempty" validate:"max=128"`
}

type redeemResponse struct {
	Points         int64                    `json:"points"`
	DiscountAmount int64                    `json:"discountAmount"`
	Balance        int64                    `json:"availablePoints"`
	Transaction    pointTransactionResponse `json:"transaction"`
}

// LoyaltyAccount returns the caller's balance and tier progress.
func LoyaltyAccount(svc loyalty.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "loyalty service unavailable"))
			return
		}
		userID, err := requireUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		account, err := svc.GetAccount(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, loyaltyAccountResponse{
			UserID:          account.UserID,
			TotalPoints:     account.TotalPoints,
			AvailablePoints: account.AvailablePoints,
			UsedPoints:      account.UsedPoints,
			Level:           account.Level,
			NextLevel:       account.NextLevel,
			PointsToNext:    account.PointsToNext,
		})
	}
}

func LoyaltyTransactions(svc loyalty.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "loyalty service unavailable"))
			return
		}
		userID, err := requireUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", loyalty.DefaultHistoryLimit, 1, maxHistoryPage)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		entries, err := svc.History(r.Context(), userID, limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := make([]pointTransactionResponse, 0, len(entries))
		for _, entry := range entries {
			out = append(out, newPointTransactionResponse(entry))
		}
		responses.WriteSuccess(w, map[string]any{"transactions": out})
	}
}

// LoyaltyRedeem converts available points into a discount amount.
func LoyaltyRedeem(svc loyalty.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "loyalty service unavailable"))
			return
		}
		userID, err := requireUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload redeemRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		redemption, err := svc.Redeem(r.Context(), userID, payload.Points, validators.SanitizeString(payload.Reference, 128))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, redeemResponse{
			Points:         redemption.Points,
			DiscountAmount: redemption.DiscountAmount,
			Balance:        redemption.Account.AvailablePoints,
			Transaction:    newPointTransactionResponse(redemption.Transaction),
		})
	}
}

func newPointTransactionResponse(entry models.PointTransaction) pointTransactionResponse {
	return pointTransactionResponse{
		ID:          entry.ID,
		Points:      entry.Points,
		Type:        entry.Type,
		Reference:   entry.Reference,
		Description: entry.Description,
		CreatedAt:   entry.CreatedAt,
	}
}
