package prize

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"loyalty/internal/config"
	"loyalty/internal/events"
	"loyalty/internal/ledger"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var (
	ErrNoSpins        = errors.New("no spins left")
	ErrInsufficientXP = errors.New("insufficient xp")
	ErrRewardNotFound = errors.New("unknown reward")
)

// Wallet is the slice of the ledger service the prize flows use.
type Wallet interface {
	Adjust(ctx context.Context, req ledger.AdjustRequest) (int64, error)
	Spend(ctx context.Context, userID string, kind ledger.Kind, amount int64, entryType, reason string, referenceID *string) (int64, error)
}

type CouponIssuer interface {
	Issue(ctx context.Context, code, userID, kind string, value int64) error
}

// Service runs the spin-to-win draw and the XP reward shop. Both flows share
// the same shape: an atomic exact-debit of the entitlement, then best-effort
// fulfillment. Fulfillment failures after the debit committed are logged and
// not refunded.
type Service struct {
	wallet  Wallet
	coupons CouponIssuer
	prizes  []config.Prize
	rewards []config.Reward
	bus     events.Publisher
	log     *logrus.Entry
	// roll returns a value in [0, n). Swappable for deterministic tests.
	roll func(n int) int
}

func NewService(wallet Wallet, coupons CouponIssuer, cfg config.Loyalty, bus events.Publisher, log *logrus.Logger) *Service {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	return &Service{
		wallet:  wallet,
		coupons: coupons,
		prizes:  cfg.Prizes,
		rewards: cfg.Rewards,
		bus:     bus,
		log:     log.WithField("component", "prize"),
		roll:    rng.Intn,
	}
}

// Draw consumes one spin and picks a prize by cumulative weight walk over
// the configured table. The spin debit is atomic; once it commits the user
// has spent the spin regardless of fulfillment outcome.
func (s *Service) Draw(ctx context.Context, userID string) (config.Prize, error) {
	_, err := s.wallet.Spend(ctx, userID, ledger.KindSpins, 1, ledger.TypeSpin, "prize draw", nil)
	if err != nil {
		if errors.Is(err, ledger.ErrInsufficientBalance) {
			return config.Prize{}, ErrNoSpins
		}
		return config.Prize{}, err
	}

	won := s.pick()
	s.fulfill(ctx, userID, won)
	s.bus.Publish(events.PrizeWon{
		UserID: userID,
		Label:  won.Label,
		Type:   won.Type,
		Value:  won.Value,
	})
	return won, nil
}

// pick walks the cumulative weight line. Table order breaks ties; validation
// floors every weight at 1, so the total is always positive.
func (s *Service) pick() config.Prize {
	total := 0
	for _, prize := range s.prizes {
		total += prize.Weight
	}
	point := s.roll(total)
	cumulative := 0
	for _, prize := range s.prizes {
		cumulative += prize.Weight
		if point < cumulative {
			return prize
		}
	}
	return s.prizes[len(s.prizes)-1]
}

func (s *Service) fulfill(ctx context.Context, userID string, won config.Prize) {
	var err error
	switch won.Type {
	case "credit":
		_, err = s.wallet.Adjust(ctx, ledger.AdjustRequest{
			UserID: userID, Kind: ledger.KindCredit, Delta: won.Value,
			Type: ledger.TypeCredit, Reason: "prize: " + won.Label,
		})
	case "xp":
		_, err = s.wallet.Adjust(ctx, ledger.AdjustRequest{
			UserID: userID, Kind: ledger.KindXP, Delta: won.Value,
			Type: ledger.TypeCredit, Reason: "prize: " + won.Label,
		})
	case "coupon":
		err = s.coupons.Issue(ctx, uuid.NewString(), userID, "prize", won.Value)
	case "none":
		// Nothing to deliver.
	}
	if err != nil {
		// The spin is already spent; surface loudly for manual follow-up.
		s.log.WithError(err).WithFields(logrus.Fields{
			"user": userID, "prize": won.Label,
		}).Error("prize fulfillment failed after spin debit")
	}
}

// Redeem exchanges XP for a configured shop reward. The XP debit is exact
// and atomic; coupon issuance afterwards is best-effort like Draw.
func (s *Service) Redeem(ctx context.Context, userID, rewardID string) (string, error) {
	var reward config.Reward
	found := false
	for _, candidate := range s.rewards {
		if candidate.ID == rewardID {
			reward = candidate
			found = true
			break
		}
	}
	if !found {
		return "", ErrRewardNotFound
	}
	_, err := s.wallet.Spend(ctx, userID, ledger.KindXP, reward.CostXP, ledger.TypeShop, "reward: "+reward.Label, &reward.ID)
	if err != nil {
		if errors.Is(err, ledger.ErrInsufficientBalance) {
			return "", ErrInsufficientXP
		}
		return "", err
	}
	code := uuid.NewString()
	if err := s.coupons.Issue(ctx, code, userID, "reward", reward.CouponValue); err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{
			"user": userID, "reward": reward.ID,
		}).Error("coupon issuance failed after xp debit")
	}
	return code, nil
}

// GrantSpins credits the spins counter through the regular ledger path.
func (s *Service) GrantSpins(ctx context.Context, userID string, n int64, reason string) (int64, error) {
	return s.wallet.Adjust(ctx, ledger.AdjustRequest{
		UserID: userID, Kind: ledger.KindSpins, Delta: n,
		Type: ledger.TypeManual, Reason: reason,
	})
}

// Rewards lists the configured shop catalog.
func (s *Service) Rewards() []config.Reward {
	return s.rewards
}
