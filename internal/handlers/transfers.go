package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"loyalty/internal/ledger"
	"loyalty/internal/middleware"
	"loyalty/internal/transfer"
)

type transferRequest struct {
	Recipient string `json:"recipient"`
	Amount    string `json:"amount"`
	Reason    string `json:"reason"`
}

func (h *Handler) CreateTransfer(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req transferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	amount, err := parseAmountMinor(req.Amount)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid amount")
		return
	}
	err = h.transfers.Send(r.Context(), transfer.Request{
		SenderID:          userID,
		RecipientUsername: req.Recipient,
		Amount:            amount,
		Reason:            req.Reason,
	})
	if err != nil {
		respondTransferError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "sent"})
}

func respondTransferError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, transfer.ErrDisabled):
		respondError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, transfer.ErrUnknownRecipient):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, transfer.ErrSelfTransfer),
		errors.Is(err, transfer.ErrInvalidAmount),
		errors.Is(err, transfer.ErrBelowMinimum):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, transfer.ErrDailyLimitExceeded):
		respondError(w, http.StatusTooManyRequests, err.Error())
	case errors.Is(err, ledger.ErrInsufficientBalance):
		respondError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, "transfer failed")
	}
}
