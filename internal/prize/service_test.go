package prize

import (
	"context"
	"errors"
	"io"
	"math/rand"
	"testing"

	"loyalty/internal/config"
	"loyalty/internal/events"
	"loyalty/internal/ledger"
	"loyalty/internal/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memWallet struct {
	balances map[string]int64
	spendErr error
}

func newMemWallet() *memWallet {
	return &memWallet{balances: make(map[string]int64)}
}

func (m *memWallet) key(userID string, kind ledger.Kind) string {
	return userID + "/" + string(kind)
}

func (m *memWallet) Adjust(_ context.Context, req ledger.AdjustRequest) (int64, error) {
	balance := m.balances[m.key(req.UserID, req.Kind)] + req.Delta
	if balance < 0 {
		balance = 0
	}
	m.balances[m.key(req.UserID, req.Kind)] = balance
	return balance, nil
}

func (m *memWallet) Spend(_ context.Context, userID string, kind ledger.Kind, amount int64, _, _ string, _ *string) (int64, error) {
	if m.spendErr != nil {
		return 0, m.spendErr
	}
	balance := m.balances[m.key(userID, kind)]
	if balance < amount {
		return 0, ledger.ErrInsufficientBalance
	}
	m.balances[m.key(userID, kind)] = balance - amount
	return balance - amount, nil
}

type memCoupons struct {
	issued []int64
	err    error
}

func (m *memCoupons) Issue(_ context.Context, _, _, _ string, value int64) error {
	if m.err != nil {
		return m.err
	}
	m.issued = append(m.issued, value)
	return nil
}

type recordingBus struct {
	events []events.Event
}

func (r *recordingBus) Publish(event events.Event) { r.events = append(r.events, event) }

func drawConfig() config.Loyalty {
	return config.Loyalty{
		Prizes: []config.Prize{
			{Label: "50 XP", Type: "xp", Value: 50, Weight: 30},
			{Label: "5 credit", Type: "credit", Value: 500, Weight: 20},
			{Label: "Coupon", Type: "coupon", Value: 300, Weight: 10},
			{Label: "Nothing", Type: "none", Weight: 40},
		},
		Rewards: []config.Reward{
			{ID: "coffee", Label: "Free coffee", CostXP: 500, CouponValue: 400},
		},
	}
}

func newTestService(wallet *memWallet, coupons *memCoupons) (*Service, *recordingBus) {
	bus := &recordingBus{}
	service := NewService(wallet, coupons, drawConfig(), bus, logger.New(io.Discard))
	return service, bus
}

func TestDrawConsumesSpinAndFulfills(t *testing.T) {
	wallet := newMemWallet()
	coupons := &memCoupons{}
	service, bus := newTestService(wallet, coupons)
	service.roll = func(int) int { return 0 } // first prize: 50 XP

	wallet.balances["u/spins"] = 2
	won, err := service.Draw(context.Background(), "u")
	require.NoError(t, err)
	assert.Equal(t, "50 XP", won.Label)
	assert.Equal(t, int64(1), wallet.balances["u/spins"])
	assert.Equal(t, int64(50), wallet.balances["u/xp"])
	require.Len(t, bus.events, 1)
	assert.Equal(t, "prize_won", bus.events[0].Name())
}

func TestDrawWithoutSpins(t *testing.T) {
	service, bus := newTestService(newMemWallet(), &memCoupons{})
	_, err := service.Draw(context.Background(), "u")
	assert.ErrorIs(t, err, ErrNoSpins)
	assert.Empty(t, bus.events)
}

func TestDrawPickBoundaries(t *testing.T) {
	service, _ := newTestService(newMemWallet(), &memCoupons{})
	// Weights 30/20/10/40 give cumulative edges at 30, 50, 60, 100.
	cases := []struct {
		point int
		want  string
	}{
		{0, "50 XP"},
		{29, "50 XP"},
		{30, "5 credit"},
		{49, "5 credit"},
		{50, "Coupon"},
		{59, "Coupon"},
		{60, "Nothing"},
		{99, "Nothing"},
	}
	for _, tc := range cases {
		service.roll = func(int) int { return tc.point }
		assert.Equal(t, tc.want, service.pick().Label, "point %d", tc.point)
	}
}

func TestDrawDistributionFollowsWeights(t *testing.T) {
	service, _ := newTestService(newMemWallet(), &memCoupons{})
	rng := rand.New(rand.NewSource(1))
	service.roll = rng.Intn

	const draws = 20000
	counts := make(map[string]int)
	for i := 0; i < draws; i++ {
		counts[service.pick().Label]++
	}
	// Weights 30/20/10/40 of 100. Allow 2 percentage points of slack.
	expected := map[string]float64{"50 XP": 0.30, "5 credit": 0.20, "Coupon": 0.10, "Nothing": 0.40}
	for label, share := range expected {
		got := float64(counts[label]) / draws
		assert.InDelta(t, share, got, 0.02, "prize %s", label)
	}
}

func TestDrawNoRefundOnFulfillmentFailure(t *testing.T) {
	wallet := newMemWallet()
	coupons := &memCoupons{err: errors.New("shop down")}
	service, bus := newTestService(wallet, coupons)
	service.roll = func(int) int { return 55 } // coupon prize

	wallet.balances["u/spins"] = 1
	won, err := service.Draw(context.Background(), "u")
	require.NoError(t, err, "draw succeeds even when fulfillment fails")
	assert.Equal(t, "Coupon", won.Label)
	assert.Equal(t, int64(0), wallet.balances["u/spins"], "spin stays spent")
	assert.Len(t, bus.events, 1)
}

func TestRedeemExchangesXPForCoupon(t *testing.T) {
	wallet := newMemWallet()
	coupons := &memCoupons{}
	service, _ := newTestService(wallet, coupons)

	wallet.balances["u/xp"] = 600
	code, err := service.Redeem(context.Background(), "u", "coffee")
	require.NoError(t, err)
	assert.NotEmpty(t, code)
	assert.Equal(t, int64(100), wallet.balances["u/xp"])
	require.Len(t, coupons.issued, 1)
	assert.Equal(t, int64(400), coupons.issued[0])
}

func TestRedeemErrors(t *testing.T) {
	wallet := newMemWallet()
	service, _ := newTestService(wallet, &memCoupons{})

	_, err := service.Redeem(context.Background(), "u", "jetski")
	assert.ErrorIs(t, err, ErrRewardNotFound)

	wallet.balances["u/xp"] = 100
	_, err = service.Redeem(context.Background(), "u", "coffee")
	assert.ErrorIs(t, err, ErrInsufficientXP)
	assert.Equal(t, int64(100), wallet.balances["u/xp"], "failed redeem must not debit")
}

func TestGrantSpins(t *testing.T) {
	wallet := newMemWallet()
	service, _ := newTestService(wallet, &memCoupons{})

	balance, err := service.GrantSpins(context.Background(), "u", 3, "campaign")
	require.NoError(t, err)
	assert.Equal(t, int64(3), balance)
}
