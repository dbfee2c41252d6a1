package events

// Event is a domain notification emitted after the corresponding mutation
// has committed. Delivery to subscribers is at-least-once; subscribers run
// outside the originating transaction and cannot roll it back.
type Event interface {
	Name() string
	User() string
}

type BalanceAdjusted struct {
	UserID  string `json:"user_id"`
	Kind    string `json:"kind"`
	Delta   int64  `json:"delta"`
	Balance int64  `json:"balance"`
	Type    string `json:"type"`
	Reason  string `json:"reason"`
}

func (BalanceAdjusted) Name() string { return "balance_adjusted" }
func (e BalanceAdjusted) User() string { return e.UserID }

type TierUpgraded struct {
	UserID string `json:"user_id"`
	From   string `json:"from"`
	To     string `json:"to"`
}

func (TierUpgraded) Name() string { return "tier_upgraded" }
func (e TierUpgraded) User() string { return e.UserID }

type TierDowngraded struct {
	UserID string `json:"user_id"`
	From   string `json:"from"`
	To     string `json:"to"`
}

func (TierDowngraded) Name() string { return "tier_downgraded" }
func (e TierDowngraded) User() string { return e.UserID }

// TierDowngradeWarning fires at fixed remaining-day checkpoints while a user
// is in the grace period, at most once per checkpoint.
type TierDowngradeWarning struct {
	UserID   string `json:"user_id"`
	Tier     string `json:"tier"`
	DaysLeft int    `json:"days_left"`
}

func (TierDowngradeWarning) Name() string { return "tier_downgrade_warning" }
func (e TierDowngradeWarning) User() string { return e.UserID }

type PrizeWon struct {
	UserID string `json:"user_id"`
	Label  string `json:"label"`
	Type   string `json:"type"`
	Value  int64  `json:"value"`
}

func (PrizeWon) Name() string { return "prize_won" }
func (e PrizeWon) User() string { return e.UserID }
