package loyalty

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/pastrypickup-backend/pkg/config"
	"github.com/angelmondragon/pastrypickup-backend/pkg/enums"
)

// Tier is one row of the tier table. MinPoints is the inclusive lower bound
// of lifetime points.
type Tier struct {
	Level      enums.LoyaltyLevel
	MinPoints  int64
	Multiplier decimal.Decimal
}

// TierTable maps lifetime points to a level and an accrual multiplier. The
// zero value is unusable; build one with NewTierTable.
type TierTable struct {
	tiers []Tier
}

// DefaultTierTable is BRONZE x1.0, SILVER x1.2 from 1000, GOLD x1.5 from 5000
// and VIP x2.0 from 100000.
func DefaultTierTable() TierTable {
	table, _ := NewTierTable([]Tier{
		{Level: enums.LoyaltyBronze, MinPoints: 0, Multiplier: decimal.NewFromInt(1)},
		{Level: enums.LoyaltySilver, MinPoints: 1000, Multiplier: decimal.RequireFromString("1.2")},
		{Level: enums.LoyaltyGold, MinPoints: 5000, Multiplier: decimal.RequireFromString("1.5")},
		{Level: enums.LoyaltyVIP, MinPoints: 100000, Multiplier: decimal.NewFromInt(2)},
	})
	return table
}

// NewTierTable validates and copies tiers. They must start at 0, be strictly
// ascending and carry known levels with non-negative multipliers.
func NewTierTable(tiers []Tier) (TierTable, error) {
	if len(tiers) == 0 {
		return TierTable{}, fmt.Errorf("tier table is empty")
	}
	if tiers[0].MinPoints != 0 {
		return TierTable{}, fmt.Errorf("first tier must start at 0, got %d", tiers[0].MinPoints)
	}
	seen := map[enums.LoyaltyLevel]struct{}{}
	for i, tier := range tiers {
		if !tier.Level.IsValid() {
			return TierTable{}, fmt.Errorf("unknown loyalty level %q", tier.Level)
		}
		if _, dup := seen[tier.Level]; dup {
			return TierTable{}, fmt.Errorf("loyalty level %s listed twice", tier.Level)
		}
		seen[tier.Level] = struct{}{}
		if tier.Multiplier.IsNegative() {
			return TierTable{}, fmt.Errorf("%s multiplier is negative", tier.Level)
		}
		if i > 0 && tier.MinPoints <= tiers[i-1].MinPoints {
			return TierTable{}, fmt.Errorf("%s must start above %s", tier.Level, tiers[i-1].Level)
		}
	}
	out := make([]Tier, len(tiers))
	copy(out, tiers)
	return TierTable{tiers: out}, nil
}

// TierTableFromConfig builds the table from the environment-configured bounds.
func TierTableFromConfig(cfg config.LoyaltyConfig) (TierTable, error) {
	bounds, err := cfg.TierBounds()
	if err != nil {
		return TierTable{}, err
	}
	tiers := make([]Tier, 0, len(bounds))
	for _, bound := range bounds {
		level, err := enums.ParseLoyaltyLevel(bound.Level)
		if err != nil {
			return TierTable{}, err
		}
		tiers = append(tiers, Tier{Level: level, MinPoints: bound.MinPoints, Multiplier: bound.Multiplier})
	}
	return NewTierTable(tiers)
}

// LevelFor returns the level whose range contains total.
func (t TierTable) LevelFor(total int64) enums.LoyaltyLevel {
	return t.tierFor(total).Level
}

// Multiplier returns the accrual multiplier of level. Unknown levels earn at
// the base tier's rate.
func (t TierTable) Multiplier(level enums.LoyaltyLevel) decimal.Decimal {
	for _, tier := range t.tiers {
		if tier.Level == level {
			return tier.Multiplier
		}
	}
	return t.tiers[0].Multiplier
}

// Tiers returns a copy of the rows in ascending order.
func (t TierTable) Tiers() []Tier {
	out := make([]Tier, len(t.tiers))
	copy(out, t.tiers)
	return out
}

// Next returns the tier above level, if any.
func (t TierTable) Next(level enums.LoyaltyLevel) (Tier, bool) {
	for i, tier := range t.tiers {
		if tier.Level == level && i+1 < len(t.tiers) {
			return t.tiers[i+1], true
		}
	}
	return Tier{}, false
}

func (t TierTable) tierFor(total int64) Tier {
	current := t.tiers[0]
	for _, tier := range t.tiers[1:] {
		if total < tier.MinPoints {
			break
		}
		current = tier
	}
	return current
}
