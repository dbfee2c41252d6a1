package ledger

import (
	"context"
	"errors"
	"time"

	"loyalty/internal/db"
	"loyalty/internal/events"
	"loyalty/internal/store"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
)

// Kind discriminates the parallel balances managed by the same mechanism.
type Kind string

const (
	KindCredit Kind = "credit"
	KindXP     Kind = "xp"
	KindSpins  Kind = "spins"
)

// Ledger entry types. Entries are immutable once written; the expiry sweep's
// processed flag is the single exception.
const (
	TypeCredit      = "credit"
	TypeDebit       = "debit"
	TypeReferral    = "referral"
	TypeManual      = "manual"
	TypeExpired     = "expired"
	TypeRefund      = "refund"
	TypeTransferIn  = "transfer_in"
	TypeTransferOut = "transfer_out"
	TypeSpin        = "spin"
	TypeShop        = "shop"
	TypeChallenge   = "challenge"
)

var (
	ErrUnknownKind         = errors.New("unknown balance kind")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrSelfTransfer        = errors.New("cannot transfer to self")
)

const lockWait = 3 * time.Second

type AccountStore interface {
	Ensure(ctx context.Context, tx store.Execer, userID, kind string) error
	GetForUpdate(ctx context.Context, tx store.Getter, userID, kind string) (store.Account, error)
	GetBalance(ctx context.Context, userID, kind string) (int64, error)
	UpdateBalance(ctx context.Context, tx store.Execer, userID, kind string, balance int64) error
	Summaries(ctx context.Context) ([]store.BalanceSummary, error)
	DeleteByUser(ctx context.Context, tx store.Execer, userID string) error
}

type LedgerStore interface {
	Insert(ctx context.Context, tx store.Execer, entry store.LedgerEntryInput) error
	ListByUser(ctx context.Context, userID string, limit int) ([]store.LedgerEntry, error)
	SelectExpiredForUpdate(ctx context.Context, tx store.Selecter, userID string, now time.Time) ([]store.LedgerEntry, error)
	MarkProcessed(ctx context.Context, tx store.Execer, ids []string) error
	SumByUser(ctx context.Context, userID, kind string) (int64, error)
	DeleteByUser(ctx context.Context, tx store.Execer, userID string) error
}

type CleanupStore interface {
	DeleteByUser(ctx context.Context, tx store.Execer, userID string) error
}

// Service owns every balance mutation. Components never touch a balance
// column except through this lock-and-log path.
type Service struct {
	txRunner db.TxRunner
	accounts AccountStore
	entries  LedgerStore
	cleanup  []CleanupStore
	bus      events.Publisher
	log      *logrus.Entry
	now      func() time.Time
}

func NewService(txRunner db.TxRunner, accounts AccountStore, entries LedgerStore, bus events.Publisher, log *logrus.Logger) *Service {
	return &Service{
		txRunner: txRunner,
		accounts: accounts,
		entries:  entries,
		bus:      bus,
		log:      log.WithField("component", "ledger"),
		now:      time.Now,
	}
}

// WithCleanup registers extra per-user stores erased by EraseUser.
func (s *Service) WithCleanup(stores ...CleanupStore) *Service {
	s.cleanup = append(s.cleanup, stores...)
	return s
}

type AdjustRequest struct {
	UserID      string
	Kind        Kind
	Delta       int64
	Type        string
	Reason      string
	ReferenceID *string
	// ExpiresIn forward-dates the credited amount for the expiry sweep.
	// Only meaningful for positive deltas.
	ExpiresIn time.Duration
}

func validKind(kind Kind) bool {
	return kind == KindCredit || kind == KindXP || kind == KindSpins
}

// Adjust applies a signed delta to one account. The balance read, the new
// balance write and the ledger append are a single transaction serialized
// by a row lock; a debit past zero clamps the balance at zero rather than
// failing. Exactly one ledger entry is written per call.
func (s *Service) Adjust(ctx context.Context, req AdjustRequest) (int64, error) {
	if !validKind(req.Kind) {
		return 0, ErrUnknownKind
	}
	if req.Delta == 0 {
		return 0, ErrInvalidAmount
	}
	var newBalance int64
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := db.SetLockTimeout(ctx, tx, lockWait); err != nil {
			return err
		}
		if err := s.accounts.Ensure(ctx, tx, req.UserID, string(req.Kind)); err != nil {
			return err
		}
		account, err := s.accounts.GetForUpdate(ctx, tx, req.UserID, string(req.Kind))
		if err != nil {
			return err
		}
		newBalance = account.Balance + req.Delta
		if newBalance < 0 {
			s.log.WithFields(logrus.Fields{
				"user": req.UserID, "kind": req.Kind, "balance": account.Balance, "delta": req.Delta,
			}).Debug("debit clamped at zero")
			newBalance = 0
		}
		if err := s.accounts.UpdateBalance(ctx, tx, req.UserID, string(req.Kind), newBalance); err != nil {
			return err
		}
		return s.entries.Insert(ctx, tx, store.LedgerEntryInput{
			ID:           uuid.NewString(),
			UserID:       req.UserID,
			Kind:         string(req.Kind),
			Amount:       req.Delta,
			BalanceAfter: newBalance,
			Type:         req.Type,
			Reason:       req.Reason,
			ReferenceID:  req.ReferenceID,
			ExpiresAt:    s.expiryFor(req),
		})
	})
	if err != nil {
		return 0, err
	}
	s.bus.Publish(events.BalanceAdjusted{
		UserID:  req.UserID,
		Kind:    string(req.Kind),
		Delta:   req.Delta,
		Balance: newBalance,
		Type:    req.Type,
		Reason:  req.Reason,
	})
	return newBalance, nil
}

// Spend is the exact-debit variant: it fails with ErrInsufficientBalance
// inside the lock instead of clamping. Used where partial consumption is
// not acceptable (spins, shop redemptions).
func (s *Service) Spend(ctx context.Context, userID string, kind Kind, amount int64, entryType, reason string, referenceID *string) (int64, error) {
	if !validKind(kind) {
		return 0, ErrUnknownKind
	}
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	var newBalance int64
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := db.SetLockTimeout(ctx, tx, lockWait); err != nil {
			return err
		}
		if err := s.accounts.Ensure(ctx, tx, userID, string(kind)); err != nil {
			return err
		}
		account, err := s.accounts.GetForUpdate(ctx, tx, userID, string(kind))
		if err != nil {
			return err
		}
		if account.Balance < amount {
			return ErrInsufficientBalance
		}
		newBalance = account.Balance - amount
		if err := s.accounts.UpdateBalance(ctx, tx, userID, string(kind), newBalance); err != nil {
			return err
		}
		return s.entries.Insert(ctx, tx, store.LedgerEntryInput{
			ID:           uuid.NewString(),
			UserID:       userID,
			Kind:         string(kind),
			Amount:       -amount,
			BalanceAfter: newBalance,
			Type:         entryType,
			Reason:       reason,
			ReferenceID:  referenceID,
		})
	})
	if err != nil {
		return 0, err
	}
	s.bus.Publish(events.BalanceAdjusted{
		UserID:  userID,
		Kind:    string(kind),
		Delta:   -amount,
		Balance: newBalance,
		Type:    entryType,
		Reason:  reason,
	})
	return newBalance, nil
}

// Transfer moves amount between two users atomically. Both account rows are
// locked in deterministic order to avoid deadlock, the sender balance is
// re-checked inside the lock, and both ledger entries commit with the
// balance writes or not at all.
func (s *Service) Transfer(ctx context.Context, senderID, recipientID string, kind Kind, amount int64, reason string) error {
	if !validKind(kind) {
		return ErrUnknownKind
	}
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if senderID == recipientID {
		return ErrSelfTransfer
	}
	var senderAfter, recipientAfter int64
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := db.SetLockTimeout(ctx, tx, lockWait); err != nil {
			return err
		}
		firstID, secondID := senderID, recipientID
		if secondID < firstID {
			firstID, secondID = secondID, firstID
		}
		for _, userID := range []string{firstID, secondID} {
			if err := s.accounts.Ensure(ctx, tx, userID, string(kind)); err != nil {
				return err
			}
		}
		first, err := s.accounts.GetForUpdate(ctx, tx, firstID, string(kind))
		if err != nil {
			return err
		}
		second, err := s.accounts.GetForUpdate(ctx, tx, secondID, string(kind))
		if err != nil {
			return err
		}
		sender, recipient := first, second
		if sender.UserID != senderID {
			sender, recipient = second, first
		}
		if sender.Balance < amount {
			return ErrInsufficientBalance
		}
		senderAfter = sender.Balance - amount
		recipientAfter = recipient.Balance + amount
		if err := s.accounts.UpdateBalance(ctx, tx, senderID, string(kind), senderAfter); err != nil {
			return err
		}
		if err := s.accounts.UpdateBalance(ctx, tx, recipientID, string(kind), recipientAfter); err != nil {
			return err
		}
		if err := s.entries.Insert(ctx, tx, store.LedgerEntryInput{
			ID:           uuid.NewString(),
			UserID:       senderID,
			Kind:         string(kind),
			Amount:       -amount,
			BalanceAfter: senderAfter,
			Type:         TypeTransferOut,
			Reason:       reason,
			ReferenceID:  &recipientID,
		}); err != nil {
			return err
		}
		return s.entries.Insert(ctx, tx, store.LedgerEntryInput{
			ID:           uuid.NewString(),
			UserID:       recipientID,
			Kind:         string(kind),
			Amount:       amount,
			BalanceAfter: recipientAfter,
			Type:         TypeTransferIn,
			Reason:       reason,
			ReferenceID:  &senderID,
		})
	})
	if err != nil {
		return err
	}
	s.bus.Publish(events.BalanceAdjusted{
		UserID: senderID, Kind: string(kind), Delta: -amount, Balance: senderAfter, Type: TypeTransferOut, Reason: reason,
	})
	s.bus.Publish(events.BalanceAdjusted{
		UserID: recipientID, Kind: string(kind), Delta: amount, Balance: recipientAfter, Type: TypeTransferIn, Reason: reason,
	})
	return nil
}

// Balance is the unlocked display read. Decisions that need exactness go
// through Adjust/Spend/Transfer, which re-read under the lock.
func (s *Service) Balance(ctx context.Context, userID string, kind Kind) (int64, error) {
	if !validKind(kind) {
		return 0, ErrUnknownKind
	}
	return s.accounts.GetBalance(ctx, userID, string(kind))
}

func (s *Service) Entries(ctx context.Context, userID string, limit int) ([]store.LedgerEntry, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.entries.ListByUser(ctx, userID, limit)
}

// ProcessExpired debits one user's expired credits exactly once. The locked
// select, the clamped debit, the expired entry and the processed-flag
// rewrite share one transaction, so a crash at any point either leaves the
// entries untouched or fully swept. Returns the amount debited.
func (s *Service) ProcessExpired(ctx context.Context, userID string, now time.Time) (int64, error) {
	var debited int64
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		debited = 0
		if err := db.SetLockTimeout(ctx, tx, lockWait); err != nil {
			return err
		}
		expired, err := s.entries.SelectExpiredForUpdate(ctx, tx, userID, now)
		if err != nil {
			return err
		}
		if len(expired) == 0 {
			return nil
		}
		byKind := make(map[string]int64)
		ids := make([]string, 0, len(expired))
		for _, entry := range expired {
			byKind[entry.Kind] += entry.Amount
			ids = append(ids, entry.ID)
		}
		for kind, total := range byKind {
			if err := s.accounts.Ensure(ctx, tx, userID, kind); err != nil {
				return err
			}
			account, err := s.accounts.GetForUpdate(ctx, tx, userID, kind)
			if err != nil {
				return err
			}
			newBalance := account.Balance - total
			if newBalance < 0 {
				newBalance = 0
			}
			if err := s.accounts.UpdateBalance(ctx, tx, userID, kind, newBalance); err != nil {
				return err
			}
			if err := s.entries.Insert(ctx, tx, store.LedgerEntryInput{
				ID:           uuid.NewString(),
				UserID:       userID,
				Kind:         kind,
				Amount:       -total,
				BalanceAfter: newBalance,
				Type:         TypeExpired,
				Reason:       "credit expiry sweep",
			}); err != nil {
				return err
			}
			debited += total
		}
		return s.entries.MarkProcessed(ctx, tx, ids)
	})
	if err != nil {
		return 0, err
	}
	return debited, nil
}

// Reconcile returns accounts whose stored balance disagrees with the ledger
// sum. The ledger is the audit source; the stored balance is the live read.
func (s *Service) Reconcile(ctx context.Context) ([]store.BalanceSummary, error) {
	summaries, err := s.accounts.Summaries(ctx)
	if err != nil {
		return nil, err
	}
	mismatched := make([]store.BalanceSummary, 0)
	for _, summary := range summaries {
		if summary.Difference != 0 {
			mismatched = append(mismatched, summary)
		}
	}
	return mismatched, nil
}

// ReconcileUser rebuilds one user's balances from the ledger and compares
// them to the stored rows, one summary per kind. Covers support cases that
// question a single account without scanning the whole table.
func (s *Service) ReconcileUser(ctx context.Context, userID string) ([]store.BalanceSummary, error) {
	kinds := []Kind{KindCredit, KindXP, KindSpins}
	summaries := make([]store.BalanceSummary, 0, len(kinds))
	for _, kind := range kinds {
		stored, err := s.accounts.GetBalance(ctx, userID, string(kind))
		if err != nil {
			return nil, err
		}
		calculated, err := s.entries.SumByUser(ctx, userID, string(kind))
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, store.BalanceSummary{
			UserID:            userID,
			Kind:              string(kind),
			StoredBalance:     stored,
			CalculatedBalance: calculated,
			Difference:        stored - calculated,
		})
	}
	return summaries, nil
}

// EraseUser hard-deletes all per-user rows for a data-subject deletion
// request. This is the single exemption from the append-only invariant.
func (s *Service) EraseUser(ctx context.Context, userID string) error {
	return s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.entries.DeleteByUser(ctx, tx, userID); err != nil {
			return err
		}
		if err := s.accounts.DeleteByUser(ctx, tx, userID); err != nil {
			return err
		}
		for _, cleanupStore := range s.cleanup {
			if err := cleanupStore.DeleteByUser(ctx, tx, userID); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Service) expiryFor(req AdjustRequest) *time.Time {
	if req.Delta <= 0 || req.ExpiresIn <= 0 {
		return nil
	}
	expiresAt := s.now().Add(req.ExpiresIn)
	return &expiresAt
}
