package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
)

type orderRequest struct {
	UserID string `json:"user_id"`
	Total  string `json:"total"`
}

// CreateOrder records a completed shop order and recomputes the buyer's
// tier. In production the shop calls this on order completion; it is the
// trigger that keeps tier placement close to real time.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req orderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if req.UserID == "" {
		respondError(w, http.StatusBadRequest, "user_id required")
		return
	}
	total, err := parseAmountMinor(req.Total)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid total")
		return
	}
	now := time.Now()
	orderID := uuid.NewString()
	if err := h.orders.Create(r.Context(), orderID, req.UserID, total, "completed", &now); err != nil {
		respondError(w, http.StatusInternalServerError, "unable to record order")
		return
	}
	h.invalidator.Invalidate(r.Context(), req.UserID)
	if err := h.tiers.Recalculate(r.Context(), req.UserID); err != nil {
		// The order is recorded; the nightly sweep will catch the tier up.
		respondJSON(w, http.StatusOK, map[string]string{"id": orderID, "tier": "pending"})
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{"id": orderID})
}
