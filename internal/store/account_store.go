package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// AccountStore persists per-user balances keyed by (user_id, kind).
// Rows are created lazily on first mutation and never deleted outside
// the privacy erase path.
type AccountStore struct {
	db DB
}

type Account struct {
	UserID    string    `db:"user_id"`
	Kind      string    `db:"kind"`
	Balance   int64     `db:"balance"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

type BalanceSummary struct {
	UserID            string `db:"user_id"`
	Kind              string `db:"kind"`
	StoredBalance     int64  `db:"stored_balance"`
	CalculatedBalance int64  `db:"calculated_balance"`
	Difference        int64  `db:"difference"`
}

func NewAccountStore(db DB) *AccountStore {
	return &AccountStore{db: db}
}

func (s *AccountStore) Ensure(ctx context.Context, tx Execer, userID, kind string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO accounts (user_id, kind, balance)
		VALUES ($1, $2, 0)
		ON CONFLICT (user_id, kind) DO NOTHING
	`, userID, kind)
	return err
}

func (s *AccountStore) GetForUpdate(ctx context.Context, tx Getter, userID, kind string) (Account, error) {
	var row Account
	err := tx.GetContext(ctx, &row, `
		SELECT user_id, kind, balance
		FROM accounts
		WHERE user_id = $1 AND kind = $2
		FOR UPDATE
	`, userID, kind)
	if err != nil {
		return Account{}, err
	}
	return row, nil
}

// GetBalance is the unlocked display read. A missing account reads as zero.
func (s *AccountStore) GetBalance(ctx context.Context, userID, kind string) (int64, error) {
	var balance int64
	err := s.db.GetContext(ctx, &balance, `
		SELECT balance FROM accounts WHERE user_id = $1 AND kind = $2
	`, userID, kind)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return balance, nil
}

func (s *AccountStore) UpdateBalance(ctx context.Context, tx Execer, userID, kind string, balance int64) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE accounts
		SET balance = $1, updated_at = NOW()
		WHERE user_id = $2 AND kind = $3
	`, balance, userID, kind)
	return err
}

// Summaries joins stored balances against the ledger sum for the audit
// reconciliation report.
func (s *AccountStore) Summaries(ctx context.Context) ([]BalanceSummary, error) {
	var rows []BalanceSummary
	err := s.db.SelectContext(ctx, &rows, `
		SELECT a.user_id,
		       a.kind,
		       a.balance AS stored_balance,
		       COALESCE(SUM(l.amount), 0) AS calculated_balance,
		       (a.balance - COALESCE(SUM(l.amount), 0)) AS difference
		FROM accounts a
		LEFT JOIN ledger_entries l ON l.user_id = a.user_id AND l.kind = a.kind
		GROUP BY a.user_id, a.kind, a.balance
		ORDER BY a.user_id, a.kind
	`)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *AccountStore) DeleteByUser(ctx context.Context, tx Execer, userID string) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM accounts WHERE user_id = $1`, userID)
	return err
}
