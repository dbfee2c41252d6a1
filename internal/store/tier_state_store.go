package store

import (
	"context"
	"time"
)

// TierStateStore persists the per-user derived tier state, including the
// grace-period pin and the once-only warning checkpoint flags.
type TierStateStore struct {
	db DB
}

type TierState struct {
	UserID        string     `db:"user_id"`
	CurrentTier   string     `db:"current_tier"`
	GraceUntil    *time.Time `db:"grace_until"`
	GraceFromTier *string    `db:"grace_from_tier"`
	Warned15      bool       `db:"warned_15"`
	Warned7       bool       `db:"warned_7"`
	Warned1       bool       `db:"warned_1"`
	UpdatedAt     time.Time  `db:"updated_at"`
}

func NewTierStateStore(db DB) *TierStateStore {
	return &TierStateStore{db: db}
}

func (s *TierStateStore) Ensure(ctx context.Context, tx Execer, userID string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO user_tier_states (user_id)
		VALUES ($1)
		ON CONFLICT (user_id) DO NOTHING
	`, userID)
	return err
}

// GetForUpdate serializes tier recalculation per user; two concurrent
// recalculations must not interleave their read-decide-write cycles.
func (s *TierStateStore) GetForUpdate(ctx context.Context, tx Getter, userID string) (TierState, error) {
	var row TierState
	err := tx.GetContext(ctx, &row, `
		SELECT user_id, current_tier, grace_until, grace_from_tier, warned_15, warned_7, warned_1, updated_at
		FROM user_tier_states
		WHERE user_id = $1
		FOR UPDATE
	`, userID)
	if err != nil {
		return TierState{}, err
	}
	return row, nil
}

func (s *TierStateStore) Get(ctx context.Context, userID string) (TierState, error) {
	var row TierState
	err := s.db.GetContext(ctx, &row, `
		SELECT user_id, current_tier, grace_until, grace_from_tier, warned_15, warned_7, warned_1, updated_at
		FROM user_tier_states
		WHERE user_id = $1
	`, userID)
	if err != nil {
		return TierState{}, err
	}
	return row, nil
}

func (s *TierStateStore) Update(ctx context.Context, tx Execer, state TierState) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE user_tier_states
		SET current_tier = $1,
		    grace_until = $2,
		    grace_from_tier = $3,
		    warned_15 = $4,
		    warned_7 = $5,
		    warned_1 = $6,
		    updated_at = NOW()
		WHERE user_id = $7
	`, state.CurrentTier, state.GraceUntil, state.GraceFromTier, state.Warned15, state.Warned7, state.Warned1, state.UserID)
	return err
}

// ListElevated pages every user holding a tier above the bottom or an open
// grace window, keyed on user_id so sweeps that rewrite rows mid-walk never
// skip anyone.
func (s *TierStateStore) ListElevated(ctx context.Context, afterUserID string, limit int) ([]TierState, error) {
	var rows []TierState
	err := s.db.SelectContext(ctx, &rows, `
		SELECT user_id, current_tier, grace_until, grace_from_tier, warned_15, warned_7, warned_1, updated_at
		FROM user_tier_states
		WHERE (current_tier <> 'none' OR grace_until IS NOT NULL)
		  AND user_id::text > $1
		ORDER BY user_id::text
		LIMIT $2
	`, afterUserID, limit)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *TierStateStore) DeleteByUser(ctx context.Context, tx Execer, userID string) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM user_tier_states WHERE user_id = $1`, userID)
	return err
}
