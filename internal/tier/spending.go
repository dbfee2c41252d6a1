package tier

import (
	"context"
	"time"
)

// Source yields a user's qualifying spending for tier placement.
type Source interface {
	Spending(ctx context.Context, userID string) (int64, error)
}

type OrderSummer interface {
	SpendingSince(ctx context.Context, userID string, since time.Time) (int64, error)
}

// WindowedSpending sums completed orders over a trailing window.
type WindowedSpending struct {
	orders OrderSummer
	window time.Duration
	now    func() time.Time
}

func NewWindowedSpending(orders OrderSummer, windowDays int) *WindowedSpending {
	return &WindowedSpending{
		orders: orders,
		window: time.Duration(windowDays) * 24 * time.Hour,
		now:    time.Now,
	}
}

func (w *WindowedSpending) Spending(ctx context.Context, userID string) (int64, error) {
	return w.orders.SpendingSince(ctx, userID, w.now().Add(-w.window))
}
