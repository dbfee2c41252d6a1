package handlers

import (
	"context"
	"time"

	"loyalty/internal/config"
	"loyalty/internal/expiry"
	"loyalty/internal/ledger"
	"loyalty/internal/store"
	"loyalty/internal/tier"
	"loyalty/internal/transfer"
)

type UserStore interface {
	Create(ctx context.Context, tx store.Execer, id, username, email, passwordHash string) error
	GetByEmail(ctx context.Context, email string) (store.User, error)
	GetByID(ctx context.Context, userID string) (store.User, error)
	IsAdmin(ctx context.Context, userID string) (bool, error)
	HasAnyAdmin(ctx context.Context) (bool, error)
	PromoteAdmin(ctx context.Context, tx store.Execer, userID string) error
}

type LedgerService interface {
	Adjust(ctx context.Context, req ledger.AdjustRequest) (int64, error)
	Balance(ctx context.Context, userID string, kind ledger.Kind) (int64, error)
	Entries(ctx context.Context, userID string, limit int) ([]store.LedgerEntry, error)
	Reconcile(ctx context.Context) ([]store.BalanceSummary, error)
	ReconcileUser(ctx context.Context, userID string) ([]store.BalanceSummary, error)
	EraseUser(ctx context.Context, userID string) error
}

type TierService interface {
	Effective(ctx context.Context, userID string) (tier.Status, error)
	Next(ctx context.Context, userID string) (tier.NextInfo, error)
	Recalculate(ctx context.Context, userID string) error
	GraceSweep(ctx context.Context, now time.Time) error
}

type TransferService interface {
	Send(ctx context.Context, req transfer.Request) error
}

type PrizeService interface {
	Draw(ctx context.Context, userID string) (config.Prize, error)
	Redeem(ctx context.Context, userID, rewardID string) (string, error)
	GrantSpins(ctx context.Context, userID string, n int64, reason string) (int64, error)
	Rewards() []config.Reward
}

type ExpirySweeper interface {
	Sweep(ctx context.Context) (expiry.SweepResult, error)
}

type OrderStore interface {
	Create(ctx context.Context, id, userID string, total int64, status string, completedAt *time.Time) error
}

type CouponStore interface {
	ListByUser(ctx context.Context, userID string, limit int) ([]store.Coupon, error)
}

// SpendingInvalidator drops the cached spending aggregate after new orders.
type SpendingInvalidator interface {
	Invalidate(ctx context.Context, userID string)
}
