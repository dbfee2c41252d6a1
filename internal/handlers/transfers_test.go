package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"loyalty/internal/transfer"
)

func postTransfer(t *testing.T, h *Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/transfers", strings.NewReader(body))
	return serveWithAuth(t, h.Routes(), req, "sender-1")
}

func TestCreateTransferParsesAmount(t *testing.T) {
	var got transfer.Request
	h := newTestHandler(handlerDeps{
		transfers: stubTransferService{
			sendFn: func(_ context.Context, req transfer.Request) error {
				got = req
				return nil
			},
		},
	})
	rr := postTransfer(t, h, `{"recipient":"bob","amount":"12.50","reason":"gift"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if got.SenderID != "sender-1" || got.RecipientUsername != "bob" || got.Amount != 1250 {
		t.Fatalf("unexpected request: %+v", got)
	}
}

func TestCreateTransferInvalidAmount(t *testing.T) {
	h := newTestHandler(handlerDeps{})
	rr := postTransfer(t, h, `{"recipient":"bob","amount":"-3"}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestCreateTransferErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{transfer.ErrDisabled, http.StatusForbidden},
		{transfer.ErrUnknownRecipient, http.StatusNotFound},
		{transfer.ErrSelfTransfer, http.StatusBadRequest},
		{transfer.ErrBelowMinimum, http.StatusBadRequest},
		{transfer.ErrDailyLimitExceeded, http.StatusTooManyRequests},
	}
	for _, tc := range cases {
		h := newTestHandler(handlerDeps{
			transfers: stubTransferService{
				sendFn: func(context.Context, transfer.Request) error { return tc.err },
			},
		})
		rr := postTransfer(t, h, `{"recipient":"bob","amount":"10.00"}`)
		if rr.Code != tc.code {
			t.Errorf("%v: expected %d, got %d", tc.err, tc.code, rr.Code)
		}
	}
}
