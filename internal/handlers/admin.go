package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"loyalty/internal/auth"
	"loyalty/internal/ledger"
	"loyalty/internal/money"
	"loyalty/internal/store"
	"loyalty/internal/websocket"

	"github.com/go-chi/chi/v5"
	"github.com/jmoiron/sqlx"
)

type adminAdjustRequest struct {
	UserID     string `json:"user_id"`
	Kind       string `json:"kind"`
	Delta      int64  `json:"delta"`
	Reason     string `json:"reason"`
	ExpiryDays int    `json:"expiry_days"`
}

func (h *Handler) AdminAdjust(w http.ResponseWriter, r *http.Request) {
	var req adminAdjustRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	kind, ok := parseKind(req.Kind)
	if !ok {
		respondError(w, http.StatusBadRequest, "unknown balance kind")
		return
	}
	balance, err := h.ledger.Adjust(r.Context(), ledger.AdjustRequest{
		UserID:    req.UserID,
		Kind:      kind,
		Delta:     req.Delta,
		Type:      ledger.TypeManual,
		Reason:    req.Reason,
		ExpiresIn: time.Duration(req.ExpiryDays) * 24 * time.Hour,
	})
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrInvalidAmount), errors.Is(err, ledger.ErrUnknownKind):
			respondError(w, http.StatusBadRequest, err.Error())
		default:
			respondError(w, http.StatusInternalServerError, "adjustment failed")
		}
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"balance": balance})
}

func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	mismatched, err := h.ledger.Reconcile(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "reconciliation failed")
		return
	}
	normalized := normalizeSummaries(mismatched)
	respondJSON(w, http.StatusOK, map[string]any{
		"mismatched": normalized,
		"clean":      len(normalized) == 0,
	})
}

// ReconcileUser audits a single user's accounts against the ledger sum,
// reporting every kind rather than just mismatches.
func (h *Handler) ReconcileUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")
	if userID == "" {
		respondError(w, http.StatusBadRequest, "user id required")
		return
	}
	summaries, err := h.ledger.ReconcileUser(r.Context(), userID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "reconciliation failed")
		return
	}
	clean := true
	for _, row := range summaries {
		if row.Difference != 0 {
			clean = false
		}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"accounts": normalizeSummaries(summaries),
		"clean":    clean,
	})
}

func normalizeSummaries(rows []store.BalanceSummary) []map[string]any {
	normalized := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		entry := map[string]any{
			"user_id":    row.UserID,
			"kind":       row.Kind,
			"stored":     row.StoredBalance,
			"calculated": row.CalculatedBalance,
			"difference": row.Difference,
		}
		if row.Kind == string(ledger.KindCredit) {
			entry["difference_formatted"] = money.FormatMinor(row.Difference)
		}
		normalized = append(normalized, entry)
	}
	return normalized
}

func (h *Handler) SweepExpiry(w http.ResponseWriter, r *http.Request) {
	result, err := h.sweeper.Sweep(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "expiry sweep failed")
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (h *Handler) SweepGrace(w http.ResponseWriter, r *http.Request) {
	if err := h.tiers.GraceSweep(r.Context(), time.Now()); err != nil {
		respondError(w, http.StatusInternalServerError, "grace sweep failed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type grantSpinsRequest struct {
	UserID string `json:"user_id"`
	Count  int64  `json:"count"`
	Reason string `json:"reason"`
}

func (h *Handler) GrantSpins(w http.ResponseWriter, r *http.Request) {
	var req grantSpinsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if req.Count <= 0 {
		respondError(w, http.StatusBadRequest, "count must be positive")
		return
	}
	balance, err := h.prizes.GrantSpins(r.Context(), req.UserID, req.Count, req.Reason)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "grant failed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"spins": balance})
}

// EraseUserData hard-deletes every loyalty row for one user. Orders stay;
// they belong to the commerce system, not the loyalty program.
func (h *Handler) EraseUserData(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")
	if userID == "" {
		respondError(w, http.StatusBadRequest, "user id required")
		return
	}
	if err := h.ledger.EraseUser(r.Context(), userID); err != nil {
		respondError(w, http.StatusInternalServerError, "erase failed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "erased"})
}

type promoteRequest struct {
	UserID string `json:"user_id"`
}

func (h *Handler) PromoteAdmin(w http.ResponseWriter, r *http.Request) {
	var req promoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	err := h.txRunner.WithTx(r.Context(), func(tx *sqlx.Tx) error {
		return h.users.PromoteAdmin(r.Context(), tx, req.UserID)
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, "promote failed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// WSEvents upgrades to the per-user event feed. Browsers cannot set headers
// on websocket dials, so a token query parameter is accepted as well.
func (h *Handler) WSEvents(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		authHeader := r.Header.Get("Authorization")
		if strings.HasPrefix(authHeader, "Bearer ") {
			token = strings.TrimPrefix(authHeader, "Bearer ")
		}
	}
	if token == "" {
		respondError(w, http.StatusUnauthorized, "missing token")
		return
	}
	claims, err := auth.ParseToken(h.cfg.JWTSecret, token)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "invalid token")
		return
	}
	websocket.ServeWS(w, r, h.hub, claims.UserID)
}
