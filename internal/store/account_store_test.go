package store

import (
	"context"
	"database/sql"
	"strings"
	"testing"
)

func TestAccountGetBalanceMissingRowReadsZero(t *testing.T) {
	s := NewAccountStore(stubDB{
		getFn: func(context.Context, any, string, ...any) error {
			return sql.ErrNoRows
		},
	})
	balance, err := s.GetBalance(context.Background(), "user-1", "credit")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if balance != 0 {
		t.Fatalf("expected zero balance, got %d", balance)
	}
}

func TestAccountGetForUpdateLocksRow(t *testing.T) {
	var gotQuery string
	s := NewAccountStore(stubDB{})
	_, err := s.GetForUpdate(context.Background(), stubDB{
		getFn: func(_ context.Context, dest any, query string, args ...any) error {
			gotQuery = query
			if args[0] != "user-1" || args[1] != "xp" {
				t.Fatalf("unexpected args: %v", args)
			}
			return nil
		},
	}, "user-1", "xp")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(gotQuery, "FOR UPDATE") {
		t.Fatalf("expected locking read, got: %s", gotQuery)
	}
}

func TestAccountEnsureIsIdempotent(t *testing.T) {
	var gotQuery string
	s := NewAccountStore(stubDB{})
	err := s.Ensure(context.Background(), stubExecer{
		execFn: func(_ context.Context, query string, args ...any) (sql.Result, error) {
			gotQuery = query
			return stubResult{}, nil
		},
	}, "user-1", "credit")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(gotQuery, "ON CONFLICT (user_id, kind) DO NOTHING") {
		t.Fatalf("expected conflict-tolerant insert, got: %s", gotQuery)
	}
}
