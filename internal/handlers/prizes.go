package handlers

import (
	"errors"
	"net/http"

	"loyalty/internal/middleware"
	"loyalty/internal/prize"

	"github.com/go-chi/chi/v5"
)

func (h *Handler) DrawPrize(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	won, err := h.prizes.Draw(r.Context(), userID)
	if err != nil {
		if errors.Is(err, prize.ErrNoSpins) {
			respondError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, "draw failed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"label": won.Label,
		"type":  won.Type,
		"value": won.Value,
	})
}

func (h *Handler) ListRewards(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"rewards": h.prizes.Rewards()})
}

func (h *Handler) RedeemReward(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	code, err := h.prizes.Redeem(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		switch {
		case errors.Is(err, prize.ErrRewardNotFound):
			respondError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, prize.ErrInsufficientXP):
			respondError(w, http.StatusUnprocessableEntity, err.Error())
		default:
			respondError(w, http.StatusInternalServerError, "redeem failed")
		}
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"coupon_code": code})
}
