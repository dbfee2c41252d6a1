package transfer

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"loyalty/internal/config"
	"loyalty/internal/ledger"

	"github.com/sirupsen/logrus"
)

// Precondition failures carry distinct errors so callers can tell the user
// exactly which rule blocked the transfer.
var (
	ErrDisabled           = errors.New("transfers are disabled")
	ErrUnknownRecipient   = errors.New("unknown recipient")
	ErrSelfTransfer       = errors.New("cannot transfer to self")
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrBelowMinimum       = errors.New("amount below transfer minimum")
	ErrDailyLimitExceeded = errors.New("daily transfer limit exceeded")
)

// Mover is the atomic two-account move the ledger service provides.
type Mover interface {
	Transfer(ctx context.Context, senderID, recipientID string, kind ledger.Kind, amount int64, reason string) error
}

// RecipientResolver maps a username to a user id.
type RecipientResolver interface {
	ResolveUsername(ctx context.Context, username string) (string, error)
}

// QuotaCounter tracks cumulative transferred amount per sender per day.
type QuotaCounter interface {
	TotalForDay(ctx context.Context, userID string, day time.Time) (int64, error)
	Add(ctx context.Context, userID string, day time.Time, amount int64) error
}

// Service validates transfer preconditions in a fixed order, then delegates
// the money movement to the ledger. The daily quota is read before and
// incremented after the monetary transaction, so it is a soft limit: two
// racing transfers may both pass the check. The monetary invariants never
// depend on it.
type Service struct {
	cfg      config.Transfer
	mover    Mover
	resolver RecipientResolver
	quotas   QuotaCounter
	log      *logrus.Entry
	now      func() time.Time
}

func NewService(cfg config.Transfer, mover Mover, resolver RecipientResolver, quotas QuotaCounter, log *logrus.Logger) *Service {
	return &Service{
		cfg:      cfg,
		mover:    mover,
		resolver: resolver,
		quotas:   quotas,
		log:      log.WithField("component", "transfer"),
		now:      time.Now,
	}
}

type Request struct {
	SenderID          string
	RecipientUsername string
	Amount            int64
	Reason            string
}

// Send executes a credit transfer. Precondition order: enabled, recipient
// resolvable and distinct from sender, amount positive, amount at or above
// the minimum, daily quota not exhausted.
func (s *Service) Send(ctx context.Context, req Request) error {
	if !s.cfg.Enabled {
		return ErrDisabled
	}
	recipientID, err := s.resolver.ResolveUsername(ctx, req.RecipientUsername)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrUnknownRecipient
		}
		return err
	}
	if recipientID == req.SenderID {
		return ErrSelfTransfer
	}
	if req.Amount <= 0 {
		return ErrInvalidAmount
	}
	if req.Amount < s.cfg.Minimum {
		return ErrBelowMinimum
	}
	today := s.now().Truncate(24 * time.Hour)
	used, err := s.quotas.TotalForDay(ctx, req.SenderID, today)
	if err != nil {
		return err
	}
	if used+req.Amount > s.cfg.DailyLimit {
		return ErrDailyLimitExceeded
	}

	if err := s.mover.Transfer(ctx, req.SenderID, recipientID, ledger.KindCredit, req.Amount, req.Reason); err != nil {
		return err
	}
	if err := s.quotas.Add(ctx, req.SenderID, today, req.Amount); err != nil {
		// The transfer itself committed; losing the counter only loosens
		// the soft limit until the day rolls over.
		s.log.WithError(err).WithField("user", req.SenderID).Warn("quota increment failed")
	}
	return nil
}
