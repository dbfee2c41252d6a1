package handlers

import (
	"net/http"

	"loyalty/internal/config"
	"loyalty/internal/db"
	"loyalty/internal/middleware"
	"loyalty/internal/websocket"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

type Handler struct {
	cfg         config.Config
	txRunner    db.TxRunner
	users       UserStore
	ledger      LedgerService
	tiers       TierService
	transfers   TransferService
	prizes      PrizeService
	sweeper     ExpirySweeper
	orders      OrderStore
	coupons     CouponStore
	invalidator SpendingInvalidator
	hub         *websocket.Hub
}

func New(cfg config.Config, txRunner db.TxRunner, users UserStore, ledgerService LedgerService, tiers TierService, transfers TransferService, prizes PrizeService, sweeper ExpirySweeper, orders OrderStore, coupons CouponStore, invalidator SpendingInvalidator, hub *websocket.Hub) *Handler {
	return &Handler{
		cfg:         cfg,
		txRunner:    txRunner,
		users:       users,
		ledger:      ledgerService,
		tiers:       tiers,
		transfers:   transfers,
		prizes:      prizes,
		sweeper:     sweeper,
		orders:      orders,
		coupons:     coupons,
		invalidator: invalidator,
		hub:         hub,
	}
}

func (h *Handler) Routes() http.Handler {
	router := chi.NewRouter()
	router.Use(chimiddleware.Logger)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{h.cfg.AllowedOrigins},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	router.Route("/auth", func(r chi.Router) {
		r.Post("/register", h.Register)
		r.Post("/login", h.Login)
		r.With(middleware.Auth(h.cfg.JWTSecret)).Get("/me", h.Me)
	})
	router.Group(func(r chi.Router) {
		r.Use(middleware.Auth(h.cfg.JWTSecret))
		r.Get("/balances/{kind}", h.GetBalance)
		r.Get("/ledger", h.ListLedger)
		r.Get("/coupons", h.ListCoupons)
		r.Get("/tier", h.GetTier)
		r.Get("/tier/next", h.GetTierNext)
		r.Post("/transfers", h.CreateTransfer)
		r.Post("/spins/draw", h.DrawPrize)
		r.Get("/rewards", h.ListRewards)
		r.Post("/rewards/{id}/redeem", h.RedeemReward)
	})
	router.With(middleware.Auth(h.cfg.JWTSecret), middleware.RequireAdmin(h.users)).Post("/orders", h.CreateOrder)
	router.Get("/ws/events", h.WSEvents)

	router.Route("/admin", func(r chi.Router) {
		r.Use(middleware.Auth(h.cfg.JWTSecret))
		r.Use(middleware.RequireAdmin(h.users))
		r.Post("/adjust", h.AdminAdjust)
		r.Get("/reconcile", h.Reconcile)
		r.Get("/reconcile/{id}", h.ReconcileUser)
		r.Post("/sweeps/expiry", h.SweepExpiry)
		r.Post("/sweeps/grace", h.SweepGrace)
		r.Post("/spins/grant", h.GrantSpins)
		r.Post("/promote", h.PromoteAdmin)
		r.Delete("/users/{id}/data", h.EraseUserData)
	})

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return router
}
