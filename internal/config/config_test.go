package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validLoyalty() Loyalty {
	return Loyalty{
		GraceDays:          7,
		SpendingWindowDays: 180,
		SpendingCacheTTL:   time.Hour,
		SweepInterval:      24 * time.Hour,
		Transfer:           Transfer{Enabled: true, Minimum: 1000, DailyLimit: 50000},
		Tiers: []Tier{
			{Key: "silver", Label: "Silver", MinSpending: 100000, DiscountPct: 3},
			{Key: "gold", Label: "Gold", MinSpending: 500000, DiscountPct: 5},
		},
		Prizes: []Prize{
			{Label: "50 XP", Type: "xp", Value: 50, Weight: 40},
			{Label: "Nothing", Type: "none", Weight: 60},
		},
		Rewards: []Reward{
			{ID: "coffee", Label: "Free coffee", CostXP: 500, CouponValue: 400},
		},
	}
}

func TestValidateLoyaltyAccepts(t *testing.T) {
	l := validLoyalty()
	require.NoError(t, ValidateLoyalty(&l))
}

func TestValidateLoyaltyRejectsDescendingTiers(t *testing.T) {
	l := validLoyalty()
	l.Tiers[1].MinSpending = 50000
	err := ValidateLoyalty(&l)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTiersNotAscending)
}

func TestValidateLoyaltyRejectsDuplicateKeys(t *testing.T) {
	l := validLoyalty()
	l.Tiers[1].Key = "silver"
	l.Tiers[1].MinSpending = 200000
	assert.ErrorIs(t, ValidateLoyalty(&l), ErrDuplicateTierKey)
}

func TestValidateLoyaltyFloorsPrizeWeights(t *testing.T) {
	l := validLoyalty()
	l.Prizes[0].Weight = 0
	require.NoError(t, ValidateLoyalty(&l))
	assert.Equal(t, 1, l.Prizes[0].Weight)
}

func TestValidateLoyaltyRejectsBadPrizeType(t *testing.T) {
	l := validLoyalty()
	l.Prizes[0].Type = "cash"
	assert.Error(t, ValidateLoyalty(&l))
}

func TestValidateLoyaltyRejectsDuplicateRewards(t *testing.T) {
	l := validLoyalty()
	l.Rewards = append(l.Rewards, Reward{ID: "coffee", Label: "Another", CostXP: 100, CouponValue: 50})
	assert.ErrorIs(t, ValidateLoyalty(&l), ErrDuplicateRewardID)
}
