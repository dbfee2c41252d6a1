package store

import (
	"context"
	"time"
)

// OrderStore keeps the minimal order projection the tier engine needs for
// its rolling spending aggregate. The full order lifecycle lives elsewhere.
type OrderStore struct {
	db DB
}

type Order struct {
	ID          string     `db:"id"`
	UserID      string     `db:"user_id"`
	Total       int64      `db:"total"`
	Status      string     `db:"status"`
	CompletedAt *time.Time `db:"completed_at"`
	CreatedAt   time.Time  `db:"created_at"`
}

func NewOrderStore(db DB) *OrderStore {
	return &OrderStore{db: db}
}

func (s *OrderStore) Create(ctx context.Context, id, userID string, total int64, status string, completedAt *time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO orders (id, user_id, total, status, completed_at)
		VALUES ($1, $2, $3, $4, $5)
	`, id, userID, total, status, completedAt)
	return err
}

// SpendingSince sums completed order totals inside the rolling window.
// This is the expensive aggregate the spending cache fronts.
func (s *OrderStore) SpendingSince(ctx context.Context, userID string, since time.Time) (int64, error) {
	var total int64
	err := s.db.GetContext(ctx, &total, `
		SELECT COALESCE(SUM(total), 0)
		FROM orders
		WHERE user_id = $1
		  AND status = 'completed'
		  AND completed_at >= $2
	`, userID, since)
	return total, err
}
