package tier

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"loyalty/internal/config"
	"loyalty/internal/db"
	"loyalty/internal/events"
	"loyalty/internal/store"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// TierNone is the implicit bottom tier for users below the first threshold.
const TierNone = "none"

const sweepBatchSize = 100

var warningCheckpoints = [...]int{15, 7, 1}

type StateStore interface {
	Ensure(ctx context.Context, tx store.Execer, userID string) error
	GetForUpdate(ctx context.Context, tx store.Getter, userID string) (store.TierState, error)
	Get(ctx context.Context, userID string) (store.TierState, error)
	Update(ctx context.Context, tx store.Execer, state store.TierState) error
	ListElevated(ctx context.Context, afterUserID string, limit int) ([]store.TierState, error)
}

// Engine places users on the configured tier ladder from their rolling
// spending, with downgrade hysteresis: upgrades apply immediately, downgrades
// are pinned for a grace period and only commit once it lapses.
type Engine struct {
	txRunner  db.TxRunner
	states    StateStore
	spending  Source
	tiers     []config.Tier
	graceDays int
	bus       events.Publisher
	log       *logrus.Entry
	now       func() time.Time
}

func NewEngine(txRunner db.TxRunner, states StateStore, spending Source, cfg config.Loyalty, bus events.Publisher, log *logrus.Logger) *Engine {
	return &Engine{
		txRunner:  txRunner,
		states:    states,
		spending:  spending,
		tiers:     cfg.Tiers,
		graceDays: cfg.GraceDays,
		bus:       bus,
		log:       log.WithField("component", "tier"),
		now:       time.Now,
	}
}

// rawTier is the pure staircase placement: the highest tier whose threshold
// the spending meets. Ties qualify.
func (e *Engine) rawTier(spending int64) string {
	current := TierNone
	for _, tier := range e.tiers {
		if spending >= tier.MinSpending {
			current = tier.Key
		}
	}
	return current
}

// rank orders tier keys for comparison. TierNone ranks below everything.
func (e *Engine) rank(key string) int {
	for i, tier := range e.tiers {
		if tier.Key == key {
			return i + 1
		}
	}
	return 0
}

func (e *Engine) tierByKey(key string) (config.Tier, bool) {
	for _, tier := range e.tiers {
		if tier.Key == key {
			return tier, true
		}
	}
	return config.Tier{}, false
}

type Status struct {
	Tier       string     `json:"tier"`
	Label      string     `json:"label,omitempty"`
	Spending   int64      `json:"spending"`
	InGrace    bool       `json:"in_grace"`
	GraceUntil *time.Time `json:"grace_until,omitempty"`
}

// Effective resolves the tier a user is entitled to right now: the staircase
// placement, except that a grace pin holds the higher tier until it lapses.
func (e *Engine) Effective(ctx context.Context, userID string) (Status, error) {
	spending, err := e.spending.Spending(ctx, userID)
	if err != nil {
		return Status{}, err
	}
	status := Status{Tier: e.rawTier(spending), Spending: spending}
	state, err := e.states.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			e.fillLabel(&status)
			return status, nil
		}
		return Status{}, err
	}
	if e.rank(state.CurrentTier) > e.rank(status.Tier) {
		switch {
		case state.GraceUntil == nil:
			// Spending decayed with no order event to trigger a
			// recalculation. Hold the stored tier; the daily sweep opens
			// the grace window and takes it from there.
			status.Tier = state.CurrentTier
		case e.now().Before(*state.GraceUntil):
			status.Tier = state.CurrentTier
			status.InGrace = true
			status.GraceUntil = state.GraceUntil
		}
	}
	e.fillLabel(&status)
	return status, nil
}

func (e *Engine) fillLabel(status *Status) {
	if tier, ok := e.tierByKey(status.Tier); ok {
		status.Label = tier.Label
	}
}

type NextInfo struct {
	Current     string          `json:"current"`
	Next        string          `json:"next,omitempty"`
	NextLabel   string          `json:"next_label,omitempty"`
	Remaining   int64           `json:"remaining"`
	ProgressPct decimal.Decimal `json:"progress_pct"`
}

// Next reports the next tier up and how far along the user is toward it.
// At the top of the ladder it reports 100 percent and no next tier.
func (e *Engine) Next(ctx context.Context, userID string) (NextInfo, error) {
	spending, err := e.spending.Spending(ctx, userID)
	if err != nil {
		return NextInfo{}, err
	}
	info := NextInfo{Current: e.rawTier(spending)}
	for _, tier := range e.tiers {
		if spending < tier.MinSpending {
			info.Next = tier.Key
			info.NextLabel = tier.Label
			info.Remaining = tier.MinSpending - spending
			info.ProgressPct = decimal.NewFromInt(spending).
				Div(decimal.NewFromInt(tier.MinSpending)).
				Mul(decimal.NewFromInt(100)).
				Round(1)
			return info, nil
		}
	}
	info.ProgressPct = decimal.NewFromInt(100)
	return info, nil
}

// Recalculate replaces the stored tier from current spending. The tier-state
// row lock serializes concurrent recalculations for the same user. Upgrades
// apply at once and clear any pending grace; a detected downgrade opens a
// grace window instead of committing, unless hysteresis is disabled.
func (e *Engine) Recalculate(ctx context.Context, userID string) error {
	spending, err := e.spending.Spending(ctx, userID)
	if err != nil {
		return err
	}
	raw := e.rawTier(spending)
	var emitted []events.Event
	err = e.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		emitted = emitted[:0]
		if err := db.SetLockTimeout(ctx, tx, 3*time.Second); err != nil {
			return err
		}
		if err := e.states.Ensure(ctx, tx, userID); err != nil {
			return err
		}
		state, err := e.states.GetForUpdate(ctx, tx, userID)
		if err != nil {
			return err
		}
		if state.CurrentTier == "" {
			state.CurrentTier = TierNone
		}
		rawRank, currentRank := e.rank(raw), e.rank(state.CurrentTier)
		switch {
		case rawRank > currentRank:
			emitted = append(emitted, events.TierUpgraded{UserID: userID, From: state.CurrentTier, To: raw})
			state.CurrentTier = raw
			clearGrace(&state)
		case rawRank == currentRank:
			if state.GraceUntil != nil {
				// Recovered to the pinned tier before the grace lapsed.
				clearGrace(&state)
			}
		default:
			if e.graceDays == 0 {
				emitted = append(emitted, events.TierDowngraded{UserID: userID, From: state.CurrentTier, To: raw})
				state.CurrentTier = raw
				clearGrace(&state)
				break
			}
			if state.GraceUntil == nil {
				until := e.now().Add(time.Duration(e.graceDays) * 24 * time.Hour)
				pinned := state.CurrentTier
				state.GraceUntil = &until
				state.GraceFromTier = &pinned
				state.Warned15, state.Warned7, state.Warned1 = false, false, false
			}
			// An open grace window keeps its original deadline.
		}
		return e.states.Update(ctx, tx, state)
	})
	if err != nil {
		return err
	}
	for _, event := range emitted {
		e.bus.Publish(event)
	}
	return nil
}

// GraceSweep walks every user holding a tier above the bottom or an open
// grace window. Spending can decay purely from orders rolling out of the
// window, which fires no event, so the sweep is what detects those
// downgrades and opens their grace windows. Recovered users keep their tier
// and drop the pin, lapsed windows commit the downgrade, and open windows
// fire remaining-day warnings at most once per checkpoint.
func (e *Engine) GraceSweep(ctx context.Context, now time.Time) error {
	after := ""
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		batch, err := e.states.ListElevated(ctx, after, sweepBatchSize)
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			return nil
		}
		for _, state := range batch {
			if err := e.sweepOne(ctx, state.UserID, now); err != nil {
				e.log.WithError(err).WithField("user", state.UserID).Warn("grace sweep failed for user")
			}
		}
		after = batch[len(batch)-1].UserID
	}
}

// sweepOne handles a single user in its own transaction.
func (e *Engine) sweepOne(ctx context.Context, userID string, now time.Time) error {
	spending, err := e.spending.Spending(ctx, userID)
	if err != nil {
		return err
	}
	raw := e.rawTier(spending)
	var emitted []events.Event
	err = e.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		emitted = emitted[:0]
		if err := db.SetLockTimeout(ctx, tx, 3*time.Second); err != nil {
			return err
		}
		state, err := e.states.GetForUpdate(ctx, tx, userID)
		if err != nil {
			return err
		}
		if state.GraceUntil == nil {
			if e.rank(raw) >= e.rank(state.CurrentTier) {
				return nil
			}
			// Undetected downgrade: spending fell below the stored tier
			// without a recalculation noticing.
			if e.graceDays == 0 {
				emitted = append(emitted, events.TierDowngraded{UserID: userID, From: state.CurrentTier, To: raw})
				state.CurrentTier = raw
				clearGrace(&state)
				return e.states.Update(ctx, tx, state)
			}
			until := now.Add(time.Duration(e.graceDays) * 24 * time.Hour)
			pinned := state.CurrentTier
			state.GraceUntil = &until
			state.GraceFromTier = &pinned
			state.Warned15, state.Warned7, state.Warned1 = false, false, false
			return e.states.Update(ctx, tx, state)
		}
		switch {
		case e.rank(raw) >= e.rank(state.CurrentTier):
			clearGrace(&state)
		case now.After(*state.GraceUntil):
			emitted = append(emitted, events.TierDowngraded{UserID: userID, From: state.CurrentTier, To: raw})
			state.CurrentTier = raw
			clearGrace(&state)
		default:
			daysLeft := int(state.GraceUntil.Sub(now).Hours()/24) + 1
			if warn := crossCheckpoints(&state, daysLeft); warn {
				emitted = append(emitted, events.TierDowngradeWarning{
					UserID:   userID,
					Tier:     state.CurrentTier,
					DaysLeft: daysLeft,
				})
			}
		}
		return e.states.Update(ctx, tx, state)
	})
	if err != nil {
		return err
	}
	for _, event := range emitted {
		e.bus.Publish(event)
	}
	return nil
}

func clearGrace(state *store.TierState) {
	state.GraceUntil = nil
	state.GraceFromTier = nil
	state.Warned15, state.Warned7, state.Warned1 = false, false, false
}

// crossCheckpoints marks every checkpoint the remaining days have passed and
// reports whether any was newly crossed, so each fires at most once.
func crossCheckpoints(state *store.TierState, daysLeft int) bool {
	crossed := false
	for _, checkpoint := range warningCheckpoints {
		if daysLeft > checkpoint {
			continue
		}
		switch checkpoint {
		case 15:
			if !state.Warned15 {
				state.Warned15 = true
				crossed = true
			}
		case 7:
			if !state.Warned7 {
				state.Warned7 = true
				crossed = true
			}
		case 1:
			if !state.Warned1 {
				state.Warned1 = true
				crossed = true
			}
		}
	}
	return crossed
}
