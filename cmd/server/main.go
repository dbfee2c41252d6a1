package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"loyalty/internal/config"
	"loyalty/internal/db"
	"loyalty/internal/events"
	"loyalty/internal/expiry"
	"loyalty/internal/handlers"
	"loyalty/internal/ledger"
	"loyalty/internal/logger"
	"loyalty/internal/prize"
	"loyalty/internal/scheduler"
	"loyalty/internal/store"
	"loyalty/internal/tier"
	"loyalty/internal/transfer"
	"loyalty/internal/websocket"

	"github.com/go-redis/redis/v8"
)

func main() {
	log := logger.New(os.Stdout)
	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}
	database, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		log.WithError(err).Fatal("failed to connect database")
	}
	defer database.Close()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()

	users := store.NewUserStore(database)
	accounts := store.NewAccountStore(database)
	entries := store.NewLedgerStore(database)
	tierStates := store.NewTierStateStore(database)
	quotas := store.NewQuotaStore(database)
	orders := store.NewOrderStore(database)
	coupons := store.NewCouponStore(database)
	txRunner := db.NewTxRunner(database)

	bus := events.NewBus()
	hub := websocket.NewHub()
	hub.Attach(bus)

	ledgerService := ledger.NewService(txRunner, accounts, entries, bus, log).
		WithCleanup(tierStates, quotas, coupons)
	spending := tier.NewCachedSpending(
		tier.NewWindowedSpending(orders, cfg.Loyalty.SpendingWindowDays),
		rdb, cfg.Loyalty.SpendingCacheTTL, log,
	)
	tierEngine := tier.NewEngine(txRunner, tierStates, spending, cfg.Loyalty, bus, log)
	transferService := transfer.NewService(cfg.Loyalty.Transfer, ledgerService, &usernameResolver{users: users}, quotas, log)
	prizeService := prize.NewService(ledgerService, coupons, cfg.Loyalty, bus, log)
	expiryEngine := expiry.NewEngine(ledgerService, entries, log)

	runCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sweeps := scheduler.New(cfg.Loyalty.SweepInterval, log,
		scheduler.Job{Name: "expiry_sweep", Run: func(ctx context.Context) error {
			_, err := expiryEngine.Sweep(ctx)
			return err
		}},
		scheduler.Job{Name: "grace_sweep", Run: func(ctx context.Context) error {
			return tierEngine.GraceSweep(ctx, time.Now())
		}},
	)
	go sweeps.Run(runCtx)

	handler := handlers.New(cfg, txRunner, users, ledgerService, tierEngine, transferService, prizeService, expiryEngine, orders, coupons, spending, hub)
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler.Routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.WithField("addr", server.Addr).Info("loyalty API listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("server error")
		}
	}()

	<-runCtx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Fatal("shutdown error")
	}
}

// usernameResolver adapts the user store to the transfer service.
type usernameResolver struct {
	users *store.UserStore
}

func (r *usernameResolver) ResolveUsername(ctx context.Context, username string) (string, error) {
	user, err := r.users.GetByUsername(ctx, username)
	if err != nil {
		return "", err
	}
	return user.ID, nil
}
