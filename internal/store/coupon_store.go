package store

import (
	"context"
	"time"
)

// CouponStore records coupon codes issued by prize draws and reward
// redemptions. Delivery of the code to the shop frontend is out of scope.
type CouponStore struct {
	db DB
}

type Coupon struct {
	Code     string    `db:"code"`
	UserID   string    `db:"user_id"`
	Kind     string    `db:"kind"`
	Value    int64     `db:"value"`
	IssuedAt time.Time `db:"issued_at"`
}

func NewCouponStore(db DB) *CouponStore {
	return &CouponStore{db: db}
}

func (s *CouponStore) Issue(ctx context.Context, code, userID, kind string, value int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO coupons (code, user_id, kind, value)
		VALUES ($1, $2, $3, $4)
	`, code, userID, kind, value)
	return err
}

func (s *CouponStore) ListByUser(ctx context.Context, userID string, limit int) ([]Coupon, error) {
	var rows []Coupon
	err := s.db.SelectContext(ctx, &rows, `
		SELECT code, user_id, kind, value, issued_at
		FROM coupons
		WHERE user_id = $1
		ORDER BY issued_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *CouponStore) DeleteByUser(ctx context.Context, tx Execer, userID string) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM coupons WHERE user_id = $1`, userID)
	return err
}
