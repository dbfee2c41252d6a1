package handlers

import (
	"encoding/json"
	"net/http"

	"loyalty/internal/ledger"
)

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

func parseKind(raw string) (ledger.Kind, bool) {
	switch ledger.Kind(raw) {
	case ledger.KindCredit, ledger.KindXP, ledger.KindSpins:
		return ledger.Kind(raw), true
	}
	return "", false
}
