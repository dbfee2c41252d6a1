package tier

import (
	"context"
	"database/sql"
	"io"
	"sort"
	"sync"
	"testing"
	"time"

	"loyalty/internal/config"
	"loyalty/internal/events"
	"loyalty/internal/logger"
	"loyalty/internal/store"

	"github.com/jmoiron/sqlx"
)

type fakeTxRunner struct {
	mu sync.Mutex
}

func (f *fakeTxRunner) WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return fn(nil)
}

type memStates struct {
	mu     sync.Mutex
	states map[string]store.TierState
}

func newMemStates() *memStates {
	return &memStates{states: make(map[string]store.TierState)}
}

func (m *memStates) Ensure(_ context.Context, _ store.Execer, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.states[userID]; !ok {
		m.states[userID] = store.TierState{UserID: userID, CurrentTier: TierNone}
	}
	return nil
}

func (m *memStates) GetForUpdate(_ context.Context, _ store.Getter, userID string) (store.TierState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, ok := m.states[userID]
	if !ok {
		return store.TierState{}, sql.ErrNoRows
	}
	return state, nil
}

func (m *memStates) Get(_ context.Context, userID string) (store.TierState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, ok := m.states[userID]
	if !ok {
		return store.TierState{}, sql.ErrNoRows
	}
	return state, nil
}

func (m *memStates) Update(_ context.Context, _ store.Execer, state store.TierState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[state.UserID] = state
	return nil
}

func (m *memStates) ListElevated(_ context.Context, afterUserID string, limit int) ([]store.TierState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var elevated []store.TierState
	for _, state := range m.states {
		if state.UserID > afterUserID && (state.CurrentTier != TierNone || state.GraceUntil != nil) {
			elevated = append(elevated, state)
		}
	}
	sort.Slice(elevated, func(i, j int) bool { return elevated[i].UserID < elevated[j].UserID })
	if len(elevated) > limit {
		elevated = elevated[:limit]
	}
	return elevated, nil
}

type mapSpending struct {
	mu     sync.Mutex
	totals map[string]int64
}

func (m *mapSpending) Spending(_ context.Context, userID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.totals[userID], nil
}

func (m *mapSpending) set(userID string, total int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.totals[userID] = total
}

type recordingBus struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recordingBus) Publish(event events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingBus) named(name string) []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []events.Event
	for _, event := range r.events {
		if event.Name() == name {
			out = append(out, event)
		}
	}
	return out
}

func testConfig(graceDays int) config.Loyalty {
	return config.Loyalty{
		GraceDays: graceDays,
		Tiers: []config.Tier{
			{Key: "silver", Label: "Silver", MinSpending: 1000},
			{Key: "gold", Label: "Gold", MinSpending: 5000},
		},
	}
}

func newTestEngine(graceDays int) (*Engine, *memStates, *mapSpending, *recordingBus) {
	states := newMemStates()
	spending := &mapSpending{totals: make(map[string]int64)}
	bus := &recordingBus{}
	engine := NewEngine(&fakeTxRunner{}, states, spending, testConfig(graceDays), bus, logger.New(io.Discard))
	return engine, states, spending, bus
}

func TestRawTierStaircase(t *testing.T) {
	engine, _, _, _ := newTestEngine(7)
	cases := []struct {
		spending int64
		want     string
	}{
		{0, TierNone},
		{999, TierNone},
		{1000, "silver"},
		{4999, "silver"},
		{5000, "gold"},
		{90000, "gold"},
	}
	for _, tc := range cases {
		if got := engine.rawTier(tc.spending); got != tc.want {
			t.Errorf("rawTier(%d) = %q, want %q", tc.spending, got, tc.want)
		}
	}
}

func TestRecalculateUpgradesImmediately(t *testing.T) {
	engine, states, spending, bus := newTestEngine(7)
	ctx := context.Background()
	spending.set("u", 6000)

	if err := engine.Recalculate(ctx, "u"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if states.states["u"].CurrentTier != "gold" {
		t.Fatalf("expected gold, got %q", states.states["u"].CurrentTier)
	}
	upgrades := bus.named("tier_upgraded")
	if len(upgrades) != 1 {
		t.Fatalf("expected 1 upgrade event, got %d", len(upgrades))
	}
	status, err := engine.Effective(ctx, "u")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status.Tier != "gold" || status.InGrace {
		t.Fatalf("unexpected status: %+v", status)
	}
}

func TestDowngradeOpensGraceAndPinsTier(t *testing.T) {
	engine, states, spending, bus := newTestEngine(7)
	ctx := context.Background()

	spending.set("u", 6000)
	if err := engine.Recalculate(ctx, "u"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	spending.set("u", 800)
	if err := engine.Recalculate(ctx, "u"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	state := states.states["u"]
	if state.CurrentTier != "gold" || state.GraceUntil == nil {
		t.Fatalf("expected pinned gold with open grace, got %+v", state)
	}
	if len(bus.named("tier_downgraded")) != 0 {
		t.Fatal("downgrade must not commit while grace is open")
	}
	status, err := engine.Effective(ctx, "u")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status.Tier != "gold" || !status.InGrace {
		t.Fatalf("effective tier must stay pinned during grace: %+v", status)
	}

	// A second recalculation keeps the original deadline.
	deadline := *state.GraceUntil
	if err := engine.Recalculate(ctx, "u"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !states.states["u"].GraceUntil.Equal(deadline) {
		t.Fatal("open grace window must keep its deadline")
	}
}

func TestRecoveryDuringGraceClearsPin(t *testing.T) {
	engine, states, spending, _ := newTestEngine(7)
	ctx := context.Background()

	spending.set("u", 6000)
	_ = engine.Recalculate(ctx, "u")
	spending.set("u", 800)
	_ = engine.Recalculate(ctx, "u")
	spending.set("u", 5200)
	if err := engine.Recalculate(ctx, "u"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	state := states.states["u"]
	if state.CurrentTier != "gold" || state.GraceUntil != nil {
		t.Fatalf("expected recovered gold without grace, got %+v", state)
	}
}

func TestGraceSweepCommitsLapsedDowngrade(t *testing.T) {
	engine, states, spending, bus := newTestEngine(7)
	ctx := context.Background()

	spending.set("u", 6000)
	_ = engine.Recalculate(ctx, "u")
	spending.set("u", 800)
	_ = engine.Recalculate(ctx, "u")

	afterGrace := time.Now().Add(8 * 24 * time.Hour)
	if err := engine.GraceSweep(ctx, afterGrace); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	state := states.states["u"]
	if state.CurrentTier != TierNone || state.GraceUntil != nil {
		t.Fatalf("expected committed downgrade, got %+v", state)
	}
	if len(bus.named("tier_downgraded")) != 1 {
		t.Fatal("expected a tier_downgraded event")
	}
}

func TestGraceSweepRecoveryBeatsDeadline(t *testing.T) {
	engine, states, spending, bus := newTestEngine(7)
	ctx := context.Background()

	spending.set("u", 6000)
	_ = engine.Recalculate(ctx, "u")
	spending.set("u", 800)
	_ = engine.Recalculate(ctx, "u")
	spending.set("u", 7000)

	if err := engine.GraceSweep(ctx, time.Now()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	state := states.states["u"]
	if state.CurrentTier != "gold" || state.GraceUntil != nil {
		t.Fatalf("expected retained gold, got %+v", state)
	}
	if len(bus.named("tier_downgraded")) != 0 {
		t.Fatal("recovery must not emit a downgrade")
	}
}

func TestGraceSweepWarnsOncePerCheckpoint(t *testing.T) {
	engine, states, spending, bus := newTestEngine(7)
	ctx := context.Background()

	spending.set("u", 6000)
	_ = engine.Recalculate(ctx, "u")
	spending.set("u", 800)
	_ = engine.Recalculate(ctx, "u")

	// Six days before the deadline crosses the 7-day checkpoint.
	sixDaysLeft := states.states["u"].GraceUntil.Add(-6 * 24 * time.Hour)
	if err := engine.GraceSweep(ctx, sixDaysLeft); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(bus.named("tier_downgrade_warning")) != 1 {
		t.Fatalf("expected 1 warning, got %d", len(bus.named("tier_downgrade_warning")))
	}
	// Re-running at the same point fires nothing new.
	if err := engine.GraceSweep(ctx, sixDaysLeft); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(bus.named("tier_downgrade_warning")) != 1 {
		t.Fatal("checkpoint warning fired twice")
	}
	// Crossing the 1-day checkpoint fires once more.
	hoursLeft := states.states["u"].GraceUntil.Add(-10 * time.Hour)
	if err := engine.GraceSweep(ctx, hoursLeft); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(bus.named("tier_downgrade_warning")) != 2 {
		t.Fatalf("expected 2 warnings total, got %d", len(bus.named("tier_downgrade_warning")))
	}
}

func TestEffectiveHoldsTierAfterSilentSpendingDecay(t *testing.T) {
	engine, _, spending, _ := newTestEngine(7)
	ctx := context.Background()

	spending.set("u", 6000)
	_ = engine.Recalculate(ctx, "u")
	// Orders roll out of the spending window; no event fires, nothing
	// recalculates.
	spending.set("u", 800)

	status, err := engine.Effective(ctx, "u")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status.Tier != "gold" {
		t.Fatalf("decayed spending must not drop the tier before grace: got %q", status.Tier)
	}
}

func TestGraceSweepOpensWindowForSilentDecay(t *testing.T) {
	engine, states, spending, bus := newTestEngine(7)
	ctx := context.Background()

	spending.set("u", 6000)
	_ = engine.Recalculate(ctx, "u")
	spending.set("u", 800)

	now := time.Now()
	if err := engine.GraceSweep(ctx, now); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	state := states.states["u"]
	if state.CurrentTier != "gold" || state.GraceUntil == nil {
		t.Fatalf("expected the sweep to pin gold and open grace, got %+v", state)
	}
	if len(bus.named("tier_downgraded")) != 0 {
		t.Fatal("opening the window must not commit the downgrade")
	}
	status, err := engine.Effective(ctx, "u")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status.Tier != "gold" || !status.InGrace {
		t.Fatalf("expected pinned gold in grace, got %+v", status)
	}

	// The window opened by the sweep lapses like any other.
	if err := engine.GraceSweep(ctx, now.Add(8*24*time.Hour)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	state = states.states["u"]
	if state.CurrentTier != TierNone || state.GraceUntil != nil {
		t.Fatalf("expected committed downgrade, got %+v", state)
	}
	if len(bus.named("tier_downgraded")) != 1 {
		t.Fatal("expected a tier_downgraded event")
	}
}

func TestGraceSweepZeroGraceDaysCommitsSilentDecay(t *testing.T) {
	engine, states, spending, bus := newTestEngine(0)
	ctx := context.Background()

	spending.set("u", 6000)
	_ = engine.Recalculate(ctx, "u")
	spending.set("u", 800)

	if err := engine.GraceSweep(ctx, time.Now()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	state := states.states["u"]
	if state.CurrentTier != TierNone || state.GraceUntil != nil {
		t.Fatalf("expected immediate downgrade, got %+v", state)
	}
	if len(bus.named("tier_downgraded")) != 1 {
		t.Fatal("expected a tier_downgraded event")
	}
}

func TestZeroGraceDaysDisablesHysteresis(t *testing.T) {
	engine, states, spending, bus := newTestEngine(0)
	ctx := context.Background()

	spending.set("u", 6000)
	_ = engine.Recalculate(ctx, "u")
	spending.set("u", 800)
	if err := engine.Recalculate(ctx, "u"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	state := states.states["u"]
	if state.CurrentTier != TierNone || state.GraceUntil != nil {
		t.Fatalf("expected immediate downgrade, got %+v", state)
	}
	if len(bus.named("tier_downgraded")) != 1 {
		t.Fatal("expected a tier_downgraded event")
	}
}

func TestNextReportsRemainingAndProgress(t *testing.T) {
	engine, _, spending, _ := newTestEngine(7)
	ctx := context.Background()

	spending.set("u", 2500)
	info, err := engine.Next(ctx, "u")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if info.Current != "silver" || info.Next != "gold" || info.Remaining != 2500 {
		t.Fatalf("unexpected next info: %+v", info)
	}
	if info.ProgressPct.String() != "50" {
		t.Fatalf("expected 50 percent, got %s", info.ProgressPct)
	}

	spending.set("top", 9000)
	info, err = engine.Next(ctx, "top")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if info.Next != "" || info.ProgressPct.String() != "100" {
		t.Fatalf("top of ladder should report 100 percent: %+v", info)
	}
}
