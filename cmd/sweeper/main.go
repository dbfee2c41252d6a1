package main

import (
	"context"
	"os"
	"time"

	"loyalty/internal/config"
	"loyalty/internal/db"
	"loyalty/internal/events"
	"loyalty/internal/expiry"
	"loyalty/internal/ledger"
	"loyalty/internal/logger"
	"loyalty/internal/store"
	"loyalty/internal/tier"
)

// One-shot sweep runner for cron-driven deployments that do not keep the
// API process running.
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

	accounts := store.NewAccountStore(database)
	entries := store.NewLedgerStore(database)
	tierStates := store.NewTierStateStore(database)
	orders := store.NewOrderStore(database)
	txRunner := db.NewTxRunner(database)
	bus := events.NewBus()

	ledgerService := ledger.NewService(txRunner, accounts, entries, bus, log)
	spending := tier.NewWindowedSpending(orders, cfg.Loyalty.SpendingWindowDays)
	tierEngine := tier.NewEngine(txRunner, tierStates, spending, cfg.Loyalty, bus, log)
	expiryEngine := expiry.NewEngine(ledgerService, entries, log)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	result, err := expiryEngine.Sweep(ctx)
	if err != nil {
		log.WithError(err).Fatal("expiry sweep failed")
	}
	log.WithField("debited", result.Debited).Info("expiry sweep done")

	if err := tierEngine.GraceSweep(ctx, time.Now()); err != nil {
		log.WithError(err).Fatal("grace sweep failed")
	}
	log.Info("grace sweep done")
}
