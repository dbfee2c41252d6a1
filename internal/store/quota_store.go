package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// QuotaStore tracks cumulative transferred amount per user per calendar day.
// A new day means a new row, so counters reset implicitly.
type QuotaStore struct {
	db DB
}

func NewQuotaStore(db DB) *QuotaStore {
	return &QuotaStore{db: db}
}

func (s *QuotaStore) TotalForDay(ctx context.Context, userID string, day time.Time) (int64, error) {
	var total int64
	err := s.db.GetContext(ctx, &total, `
		SELECT total FROM transfer_quotas WHERE user_id = $1 AND day = $2
	`, userID, day.Format("2006-01-02"))
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return total, nil
}

func (s *QuotaStore) Add(ctx context.Context, userID string, day time.Time, amount int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO transfer_quotas (user_id, day, total)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, day) DO UPDATE SET total = transfer_quotas.total + EXCLUDED.total
	`, userID, day.Format("2006-01-02"), amount)
	return err
}

func (s *QuotaStore) DeleteByUser(ctx context.Context, tx Execer, userID string) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM transfer_quotas WHERE user_id = $1`, userID)
	return err
}
