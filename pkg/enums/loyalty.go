package enums

// LoyaltyLevel is the tier a customer sits in, derived from lifetime points.
type LoyaltyLevel string

const (
	LoyaltyBronze LoyaltyLevel = "BRONZE"
	LoyaltySilver LoyaltyLevel = "SILVER"
	LoyaltyGold   LoyaltyLevel = "GOLD"
	LoyaltyVIP    LoyaltyLevel = "VIP"
)

var loyaltyLevels = set[LoyaltyLevel]{LoyaltyBronze, LoyaltySilver, LoyaltyGold, LoyaltyVIP}

func (l LoyaltyLevel) String() string { return string(l) }

func (l LoyaltyLevel) IsValid() bool { return loyaltyLevels.has(l) }

func ParseLoyaltyLevel(raw string) (LoyaltyLevel, error) {
	return loyaltyLevels.parse("loyalty level", raw)
}

// PointTransactionType classifies an entry in the points ledger.
type PointTransactionType string

const (
	PointsEarnedPurchase   PointTransactionType = "EARNED_PURCHASE"
	PointsRedeemedDiscount PointTransactionType = "REDEEMED_DISCOUNT"
	PointsAdjustment       PointTransactionType = "ADJUSTMENT"
)

var pointTransactionTypes = set[PointTransactionType]{
	PointsEarnedPurchase, PointsRedeemedDiscount, PointsAdjustment,
}

func (p PointTransactionType) String() string { return string(p) }

func (p PointTransactionType) IsValid() bool { return pointTransactionTypes.has(p) }
