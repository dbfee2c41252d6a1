package handlers

import (
	"net/http"

	"loyalty/internal/middleware"
)

func (h *Handler) GetTier(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	status, err := h.tiers.Effective(r.Context(), userID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to resolve tier")
		return
	}
	respondJSON(w, http.StatusOK, status)
}

func (h *Handler) GetTierNext(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	info, err := h.tiers.Next(r.Context(), userID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to resolve tier progress")
		return
	}
	respondJSON(w, http.StatusOK, info)
}
