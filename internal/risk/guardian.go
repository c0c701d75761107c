// Package risk implements the per-worker trade gate: a rolling ledger of
// consecutive losses and session P&L that decides whether a new trade may
// open.
package risk

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/BinqQarenYu/AlgoTrade-Navigator-sub000/internal/domain/models"
)

// Guardian gates one worker. Not shared between workers.
type Guardian struct {
	initialCapital float64
	maxLosses      int
	drawdownLimit  float64 // percent of initial capital
	policy         models.FailurePolicy
	cooldownPeriod time.Duration

	mu    sync.Mutex
	state models.RiskState
	now   func() time.Time
}

func NewGuardian(cfg *models.BotConfig) *Guardian {
	return &Guardian{
		initialCapital: cfg.InitialCapital,
		maxLosses:      cfg.MaxConsecutiveLosses,
		drawdownLimit:  cfg.DailyDrawdownLimit,
		policy:         cfg.FailurePolicy,
		cooldownPeriod: cfg.CooldownPeriod,
		now:            time.Now,
	}
}

// RegisterTrade folds one closed trade into the ledger. A losing trade
// increments the consecutive-loss counter; a winning or flat one resets it.
func (g *Guardian) RegisterTrade(pnl float64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.state.SessionPnl += pnl
	if pnl < 0 {
		g.state.ConsecutiveLosses++
	} else {
		g.state.ConsecutiveLosses = 0
	}

	if g.state.ConsecutiveLosses >= g.maxLosses {
		switch g.policy {
		case models.PolicyAdapt:
			g.state.AdaptPending = true
		default:
			g.state.CooldownUntil = g.now().Add(g.cooldownPeriod)
		}
	}
}

// CanTrade reports whether a new trade may open. The drawdown hard stop wins
// over everything and never auto-recovers within the session; the
// consecutive-loss gate clears by timer (cooldown policy) or by operator
// acknowledgement (adapt policy).
func (g *Guardian) CanTrade() models.RiskVerdict {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state.SessionPnl < 0 && g.initialCapital > 0 {
		ddPct := math.Abs(g.state.SessionPnl) / g.initialCapital * 100
		if ddPct >= g.drawdownLimit {
			return models.RiskVerdict{
				Allowed: false,
				Mode:    "drawdown",
				Reason:  fmt.Sprintf("session drawdown %.1f%% reached limit %.1f%%", ddPct, g.drawdownLimit),
			}
		}
	}

	if g.state.AdaptPending {
		return models.RiskVerdict{
			Allowed: false,
			Mode:    string(models.PolicyAdapt),
			Reason:  fmt.Sprintf("%d consecutive losses: strategy adaptation pending acknowledgement", g.state.ConsecutiveLosses),
		}
	}

	if !g.state.CooldownUntil.IsZero() {
		if g.now().Before(g.state.CooldownUntil) {
			return models.RiskVerdict{
				Allowed: false,
				Mode:    string(models.PolicyCooldown),
				Reason:  fmt.Sprintf("cooling down until %s", g.state.CooldownUntil.Format(time.RFC3339)),
			}
		}
		// Cooldown elapsed: clear it and start a fresh loss streak.
		g.state.CooldownUntil = time.Time{}
		g.state.ConsecutiveLosses = 0
	}

	return models.RiskVerdict{Allowed: true}
}

// Acknowledge clears a pending adapt recommendation and resets the loss
// counter. Operator command.
func (g *Guardian) Acknowledge() {
	g.mu.Lock()
	g.state.AdaptPending = false
	g.state.ConsecutiveLosses = 0
	g.mu.Unlock()
}

// State returns a copy of the ledger for snapshots and the API.
func (g *Guardian) State() models.RiskState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Restore hydrates the ledger from a persisted snapshot.
func (g *Guardian) Restore(st models.RiskState) {
	g.mu.Lock()
	g.state = st
	g.mu.Unlock()
}
