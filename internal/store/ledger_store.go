package store

import (
	"context"
	"time"

	"github.com/lib/pq"
)

// LedgerStore is append-only. The single permitted rewrite is the processed
// flag used by the expiry sweep; the only delete is the privacy erase.
type LedgerStore struct {
	db DB
}

type LedgerEntry struct {
	ID           string     `db:"id"`
	UserID       string     `db:"user_id"`
	Kind         string     `db:"kind"`
	Amount       int64      `db:"amount"`
	BalanceAfter int64      `db:"balance_after"`
	Type         string     `db:"type"`
	Reason       string     `db:"reason"`
	ReferenceID  *string    `db:"reference_id"`
	ExpiresAt    *time.Time `db:"expires_at"`
	Processed    bool       `db:"processed"`
	CreatedAt    time.Time  `db:"created_at"`
}

type LedgerEntryInput struct {
	ID           string
	UserID       string
	Kind         string
	Amount       int64
	BalanceAfter int64
	Type         string
	Reason       string
	ReferenceID  *string
	ExpiresAt    *time.Time
}

func NewLedgerStore(db DB) *LedgerStore {
	return &LedgerStore{db: db}
}

func (s *LedgerStore) Insert(ctx context.Context, tx Execer, entry LedgerEntryInput) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO ledger_entries (id, user_id, kind, amount, balance_after, type, reason, reference_id, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, entry.ID, entry.UserID, entry.Kind, entry.Amount, entry.BalanceAfter, entry.Type, entry.Reason, entry.ReferenceID, entry.ExpiresAt)
	return err
}

func (s *LedgerStore) ListByUser(ctx context.Context, userID string, limit int) ([]LedgerEntry, error) {
	var rows []LedgerEntry
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, user_id, kind, amount, balance_after, type, reason, reference_id, expires_at, processed, created_at
		FROM ledger_entries
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// SelectExpiredForUpdate locks one user's unprocessed expired credits so a
// concurrent sweep cannot double-debit them.
func (s *LedgerStore) SelectExpiredForUpdate(ctx context.Context, tx Selecter, userID string, now time.Time) ([]LedgerEntry, error) {
	var rows []LedgerEntry
	err := tx.SelectContext(ctx, &rows, `
		SELECT id, user_id, kind, amount, balance_after, type, reason, reference_id, expires_at, processed, created_at
		FROM ledger_entries
		WHERE user_id = $1
		  AND amount > 0
		  AND expires_at IS NOT NULL
		  AND expires_at <= $2
		  AND NOT processed
		ORDER BY created_at
		FOR UPDATE
	`, userID, now)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *LedgerStore) MarkProcessed(ctx context.Context, tx Execer, ids []string) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE ledger_entries SET processed = TRUE WHERE id = ANY($1)
	`, pq.Array(ids))
	return err
}

// UsersWithExpired pages the distinct users that still have unprocessed
// expired credits. Offset skips users that failed in the current sweep.
func (s *LedgerStore) UsersWithExpired(ctx context.Context, now time.Time, limit, offset int) ([]string, error) {
	var users []string
	err := s.db.SelectContext(ctx, &users, `
		SELECT user_id
		FROM ledger_entries
		WHERE amount > 0
		  AND expires_at IS NOT NULL
		  AND expires_at <= $1
		  AND NOT processed
		GROUP BY user_id
		ORDER BY user_id
		LIMIT $2 OFFSET $3
	`, now, limit, offset)
	if err != nil {
		return nil, err
	}
	return users, nil
}

func (s *LedgerStore) SumByUser(ctx context.Context, userID, kind string) (int64, error) {
	var sum int64
	err := s.db.GetContext(ctx, &sum, `
		SELECT COALESCE(SUM(amount), 0)
		FROM ledger_entries
		WHERE user_id = $1 AND kind = $2
	`, userID, kind)
	return sum, err
}

func (s *LedgerStore) DeleteByUser(ctx context.Context, tx Execer, userID string) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM ledger_entries WHERE user_id = $1`, userID)
	return err
}
