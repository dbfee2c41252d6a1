package handlers

import (
	"net/http"
	"strconv"

	"loyalty/internal/ledger"
	"loyalty/internal/middleware"
	"loyalty/internal/money"

	"github.com/go-chi/chi/v5"
)

func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	kind, ok := parseKind(chi.URLParam(r, "kind"))
	if !ok {
		respondError(w, http.StatusBadRequest, "unknown balance kind")
		return
	}
	balance, err := h.ledger.Balance(r.Context(), userID, kind)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load balance")
		return
	}
	payload := map[string]any{
		"kind":    string(kind),
		"balance": balance,
	}
	if kind == ledger.KindCredit {
		payload["formatted"] = money.FormatMinor(balance)
	}
	respondJSON(w, http.StatusOK, payload)
}

func (h *Handler) ListLedger(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := h.ledger.Entries(r.Context(), userID, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load ledger")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (h *Handler) ListCoupons(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	coupons, err := h.coupons.ListByUser(r.Context(), userID, 50)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load coupons")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"coupons": coupons})
}
