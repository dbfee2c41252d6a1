package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"loyalty/internal/auth"
)

type stubAdminChecker struct {
	isAdminFn func(ctx context.Context, userID string) (bool, error)
}

func (s stubAdminChecker) IsAdmin(ctx context.Context, userID string) (bool, error) {
	if s.isAdminFn == nil {
		return false, nil
	}
	return s.isAdminFn(ctx, userID)
}

func requireAdminStatus(t *testing.T, checker AdminChecker, userID string) int {
	t.Helper()
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	token, err := auth.GenerateToken("secret", userID, time.Minute)
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	Auth("secret")(RequireAdmin(checker)(handler)).ServeHTTP(rr, req)
	return rr.Code
}

func TestRequireAdminForbidsRegularUsers(t *testing.T) {
	checker := stubAdminChecker{
		isAdminFn: func(_ context.Context, _ string) (bool, error) { return false, nil },
	}
	if code := requireAdminStatus(t, checker, "u1"); code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", code)
	}
}

func TestRequireAdminAllowsAdmins(t *testing.T) {
	checker := stubAdminChecker{
		isAdminFn: func(_ context.Context, _ string) (bool, error) { return true, nil },
	}
	if code := requireAdminStatus(t, checker, "admin"); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
}

func TestRequireAdminLookupFailure(t *testing.T) {
	checker := stubAdminChecker{
		isAdminFn: func(_ context.Context, _ string) (bool, error) { return false, errors.New("db down") },
	}
	if code := requireAdminStatus(t, checker, "u1"); code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", code)
	}
}
