package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"loyalty/internal/auth"
	"loyalty/internal/config"
	"loyalty/internal/expiry"
	"loyalty/internal/ledger"
	"loyalty/internal/middleware"
	"loyalty/internal/store"
	"loyalty/internal/tier"
	"loyalty/internal/transfer"
	"loyalty/internal/websocket"

	"github.com/jmoiron/sqlx"
)

type fakeTxRunner struct {
	withTxFn func(ctx context.Context, fn func(*sqlx.Tx) error) error
}

func (f fakeTxRunner) WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	if f.withTxFn != nil {
		return f.withTxFn(ctx, fn)
	}
	return fn(nil)
}

type stubUserStore struct {
	createFn       func(ctx context.Context, tx store.Execer, id, username, email, passwordHash string) error
	getByEmailFn   func(ctx context.Context, email string) (store.User, error)
	getByIDFn      func(ctx context.Context, userID string) (store.User, error)
	isAdminFn      func(ctx context.Context, userID string) (bool, error)
	hasAnyAdminFn  func(ctx context.Context) (bool, error)
	promoteAdminFn func(ctx context.Context, tx store.Execer, userID string) error
}

func (s stubUserStore) Create(ctx context.Context, tx store.Execer, id, username, email, passwordHash string) error {
	if s.createFn == nil {
		return nil
	}
	return s.createFn(ctx, tx, id, username, email, passwordHash)
}

func (s stubUserStore) GetByEmail(ctx context.Context, email string) (store.User, error) {
	if s.getByEmailFn == nil {
		return store.User{}, nil
	}
	return s.getByEmailFn(ctx, email)
}

func (s stubUserStore) GetByID(ctx context.Context, userID string) (store.User, error) {
	if s.getByIDFn == nil {
		return store.User{}, nil
	}
	return s.getByIDFn(ctx, userID)
}

func (s stubUserStore) IsAdmin(ctx context.Context, userID string) (bool, error) {
	if s.isAdminFn == nil {
		return false, nil
	}
	return s.isAdminFn(ctx, userID)
}

func (s stubUserStore) HasAnyAdmin(ctx context.Context) (bool, error) {
	if s.hasAnyAdminFn == nil {
		return true, nil
	}
	return s.hasAnyAdminFn(ctx)
}

func (s stubUserStore) PromoteAdmin(ctx context.Context, tx store.Execer, userID string) error {
	if s.promoteAdminFn == nil {
		return nil
	}
	return s.promoteAdminFn(ctx, tx, userID)
}

type stubLedgerService struct {
	adjustFn        func(ctx context.Context, req ledger.AdjustRequest) (int64, error)
	balanceFn       func(ctx context.Context, userID string, kind ledger.Kind) (int64, error)
	entriesFn       func(ctx context.Context, userID string, limit int) ([]store.LedgerEntry, error)
	reconcileFn     func(ctx context.Context) ([]store.BalanceSummary, error)
	reconcileUserFn func(ctx context.Context, userID string) ([]store.BalanceSummary, error)
	eraseFn         func(ctx context.Context, userID string) error
}

func (s stubLedgerService) Adjust(ctx context.Context, req ledger.AdjustRequest) (int64, error) {
	if s.adjustFn == nil {
		return 0, nil
	}
	return s.adjustFn(ctx, req)
}

func (s stubLedgerService) Balance(ctx context.Context, userID string, kind ledger.Kind) (int64, error) {
	if s.balanceFn == nil {
		return 0, nil
	}
	return s.balanceFn(ctx, userID, kind)
}

func (s stubLedgerService) Entries(ctx context.Context, userID string, limit int) ([]store.LedgerEntry, error) {
	if s.entriesFn == nil {
		return nil, nil
	}
	return s.entriesFn(ctx, userID, limit)
}

func (s stubLedgerService) Reconcile(ctx context.Context) ([]store.BalanceSummary, error) {
	if s.reconcileFn == nil {
		return nil, nil
	}
	return s.reconcileFn(ctx)
}

func (s stubLedgerService) ReconcileUser(ctx context.Context, userID string) ([]store.BalanceSummary, error) {
	if s.reconcileUserFn == nil {
		return nil, nil
	}
	return s.reconcileUserFn(ctx, userID)
}

func (s stubLedgerService) EraseUser(ctx context.Context, userID string) error {
	if s.eraseFn == nil {
		return nil
	}
	return s.eraseFn(ctx, userID)
}

type stubTierService struct {
	effectiveFn   func(ctx context.Context, userID string) (tier.Status, error)
	nextFn        func(ctx context.Context, userID string) (tier.NextInfo, error)
	recalculateFn func(ctx context.Context, userID string) error
	graceSweepFn  func(ctx context.Context, now time.Time) error
}

func (s stubTierService) Effective(ctx context.Context, userID string) (tier.Status, error) {
	if s.effectiveFn == nil {
		return tier.Status{Tier: tier.TierNone}, nil
	}
	return s.effectiveFn(ctx, userID)
}

func (s stubTierService) Next(ctx context.Context, userID string) (tier.NextInfo, error) {
	if s.nextFn == nil {
		return tier.NextInfo{}, nil
	}
	return s.nextFn(ctx, userID)
}

func (s stubTierService) Recalculate(ctx context.Context, userID string) error {
	if s.recalculateFn == nil {
		return nil
	}
	return s.recalculateFn(ctx, userID)
}

func (s stubTierService) GraceSweep(ctx context.Context, now time.Time) error {
	if s.graceSweepFn == nil {
		return nil
	}
	return s.graceSweepFn(ctx, now)
}

type stubTransferService struct {
	sendFn func(ctx context.Context, req transfer.Request) error
}

func (s stubTransferService) Send(ctx context.Context, req transfer.Request) error {
	if s.sendFn == nil {
		return nil
	}
	return s.sendFn(ctx, req)
}

type stubPrizeService struct {
	drawFn       func(ctx context.Context, userID string) (config.Prize, error)
	redeemFn     func(ctx context.Context, userID, rewardID string) (string, error)
	grantSpinsFn func(ctx context.Context, userID string, n int64, reason string) (int64, error)
	rewardsFn    func() []config.Reward
}

func (s stubPrizeService) Draw(ctx context.Context, userID string) (config.Prize, error) {
	if s.drawFn == nil {
		return config.Prize{}, nil
	}
	return s.drawFn(ctx, userID)
}

func (s stubPrizeService) Redeem(ctx context.Context, userID, rewardID string) (string, error) {
	if s.redeemFn == nil {
		return "", nil
	}
	return s.redeemFn(ctx, userID, rewardID)
}

func (s stubPrizeService) GrantSpins(ctx context.Context, userID string, n int64, reason string) (int64, error) {
	if s.grantSpinsFn == nil {
		return n, nil
	}
	return s.grantSpinsFn(ctx, userID, n, reason)
}

func (s stubPrizeService) Rewards() []config.Reward {
	if s.rewardsFn == nil {
		return nil
	}
	return s.rewardsFn()
}

type stubSweeper struct {
	sweepFn func(ctx context.Context) (expiry.SweepResult, error)
}

func (s stubSweeper) Sweep(ctx context.Context) (expiry.SweepResult, error) {
	if s.sweepFn == nil {
		return expiry.SweepResult{}, nil
	}
	return s.sweepFn(ctx)
}

type stubOrderStore struct {
	createFn func(ctx context.Context, id, userID string, total int64, status string, completedAt *time.Time) error
}

func (s stubOrderStore) Create(ctx context.Context, id, userID string, total int64, status string, completedAt *time.Time) error {
	if s.createFn == nil {
		return nil
	}
	return s.createFn(ctx, id, userID, total, status, completedAt)
}

type stubCouponStore struct {
	listFn func(ctx context.Context, userID string, limit int) ([]store.Coupon, error)
}

func (s stubCouponStore) ListByUser(ctx context.Context, userID string, limit int) ([]store.Coupon, error) {
	if s.listFn == nil {
		return nil, nil
	}
	return s.listFn(ctx, userID, limit)
}

type stubInvalidator struct {
	invalidated []string
}

func (s *stubInvalidator) Invalidate(_ context.Context, userID string) {
	s.invalidated = append(s.invalidated, userID)
}

type handlerDeps struct {
	users       UserStore
	ledger      LedgerService
	tiers       TierService
	transfers   TransferService
	prizes      PrizeService
	sweeper     ExpirySweeper
	orders      OrderStore
	coupons     CouponStore
	invalidator SpendingInvalidator
}

func newTestHandler(deps handlerDeps) *Handler {
	cfg := config.Config{
		AppEnv:         "test",
		Port:           "0",
		JWTSecret:      "secret",
		TokenTTL:       time.Minute,
		AllowedOrigins: "*",
	}
	if deps.users == nil {
		deps.users = stubUserStore{}
	}
	if deps.ledger == nil {
		deps.ledger = stubLedgerService{}
	}
	if deps.tiers == nil {
		deps.tiers = stubTierService{}
	}
	if deps.transfers == nil {
		deps.transfers = stubTransferService{}
	}
	if deps.prizes == nil {
		deps.prizes = stubPrizeService{}
	}
	if deps.sweeper == nil {
		deps.sweeper = stubSweeper{}
	}
	if deps.orders == nil {
		deps.orders = stubOrderStore{}
	}
	if deps.coupons == nil {
		deps.coupons = stubCouponStore{}
	}
	if deps.invalidator == nil {
		deps.invalidator = &stubInvalidator{}
	}
	return New(cfg, fakeTxRunner{}, deps.users, deps.ledger, deps.tiers, deps.transfers, deps.prizes, deps.sweeper, deps.orders, deps.coupons, deps.invalidator, websocket.NewHub())
}

func serveWithAuth(t *testing.T, handler http.Handler, req *http.Request, userID string) *httptest.ResponseRecorder {
	t.Helper()
	token, err := auth.GenerateToken("secret", userID, time.Minute)
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	middleware.Auth("secret")(handler).ServeHTTP(rr, req)
	return rr
}
