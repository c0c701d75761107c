package models

import "time"

// FailurePolicy selects what happens after too many consecutive losses.
type FailurePolicy string

const (
	// PolicyCooldown suspends trading for a fixed period, then auto-clears.
	PolicyCooldown FailurePolicy = "cooldown"
	// PolicyAdapt suspends trading until the operator acknowledges.
	PolicyAdapt FailurePolicy = "adapt"
)

// RiskState is the rolling per-worker risk ledger. Mutated only by the
// guardian's RegisterTrade; everything else reads copies.
type RiskState struct {
	ConsecutiveLosses int       `json:"consecutive_losses"`
	SessionPnl        float64   `json:"session_pnl"`
	CooldownUntil     time.Time `json:"cooldown_until,omitempty"`
	AdaptPending      bool      `json:"adapt_pending,omitempty"`
}

// RiskVerdict is the answer to canTrade.
type RiskVerdict struct {
	Allowed bool   `json:"allowed"`
	Mode    string `json:"mode,omitempty"` // "drawdown", "cooldown", "adapt"
	Reason  string `json:"reason,omitempty"`
}
