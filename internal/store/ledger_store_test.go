package store

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"
)

func TestLedgerSelectExpiredFiltersUnprocessedPositives(t *testing.T) {
	var gotQuery string
	s := NewLedgerStore(stubDB{})
	now := time.Now()
	_, err := s.SelectExpiredForUpdate(context.Background(), stubDB{
		selectFn: func(_ context.Context, dest any, query string, args ...any) error {
			gotQuery = query
			if args[0] != "user-1" {
				t.Fatalf("unexpected args: %v", args)
			}
			return nil
		},
	}, "user-1", now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, fragment := range []string{"amount > 0", "NOT processed", "FOR UPDATE"} {
		if !strings.Contains(gotQuery, fragment) {
			t.Fatalf("query missing %q: %s", fragment, gotQuery)
		}
	}
}

func TestLedgerMarkProcessedUsesArrayBind(t *testing.T) {
	var gotArgs []any
	s := NewLedgerStore(stubDB{})
	err := s.MarkProcessed(context.Background(), stubExecer{
		execFn: func(_ context.Context, query string, args ...any) (sql.Result, error) {
			gotArgs = args
			return stubResult{rows: 2}, nil
		},
	}, []string{"id-1", "id-2"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(gotArgs) != 1 {
		t.Fatalf("expected single array argument, got %d", len(gotArgs))
	}
}
