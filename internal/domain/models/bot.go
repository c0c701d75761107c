package models

import (
	"encoding/json"
	"time"
)

// BotStatus is the worker state machine state.
type BotStatus string

const (
	StatusStopped      BotStatus = "stopped"
	StatusIdle         BotStatus = "idle"
	StatusAnalyzing    BotStatus = "analyzing"
	StatusPositionOpen BotStatus = "position_open"
	StatusCooldown     BotStatus = "cooldown"
	StatusError        BotStatus = "error"
)

// BotConfig is the immutable description of one worker. Changing it requires
// stop + restart; nothing mutates it after the worker starts.
type BotConfig struct {
	ID             string          `json:"id"`
	Symbol         string          `json:"symbol" validate:"required"`
	Interval       string          `json:"interval" validate:"required"`
	Strategy       string          `json:"strategy" validate:"required"`
	StrategyParams json.RawMessage `json:"strategy_params,omitempty"`
	InitialCapital float64         `json:"initial_capital" validate:"gt=0"`
	Leverage       float64         `json:"leverage" validate:"gte=1"`
	TakeProfitPct  float64         `json:"take_profit_pct" validate:"gt=0"`
	StopLossPct    float64         `json:"stop_loss_pct" validate:"gt=0"`
	UseAI          bool            `json:"use_ai"`
	Manual         bool            `json:"manual"` // manual mode: signals reported, never executed

	// Risk gate settings, per worker.
	MaxConsecutiveLosses int           `json:"max_consecutive_losses" default:"3" validate:"gte=1"`
	DailyDrawdownLimit   float64       `json:"daily_drawdown_limit" default:"10" validate:"gt=0,lte=100"`
	FailurePolicy        FailurePolicy `json:"failure_policy" default:"cooldown" validate:"oneof=cooldown adapt"`
	CooldownPeriod       time.Duration `json:"cooldown_period" default:"30m"`

	// Pipeline knobs. SignalMaxAgeBars bounds signal staleness; RecheckInterval
	// drives the timer tick and is deliberately independent of it.
	MinBars          int           `json:"min_bars" default:"50" validate:"gte=10"`
	SignalMaxAgeBars int           `json:"signal_max_age_bars" default:"3" validate:"gte=1"`
	RecheckInterval  time.Duration `json:"recheck_interval" default:"1m"`
}

// LogEntry is one line of a worker's bounded log.
type LogEntry struct {
	Time    time.Time `json:"time"`
	Level   string    `json:"level"`
	Message string    `json:"message"`
}

// RuntimeSnapshot is the read-only projection of a worker's mutable state,
// handed to the health monitor, the API layer and the snapshot store. The
// worker owns the live state; nothing outside sees it by reference.
type RuntimeSnapshot struct {
	Status       BotStatus  `json:"status"`
	Position     *Position  `json:"position,omitempty"`
	Logs         []LogEntry `json:"logs,omitempty"`
	LastActivity time.Time  `json:"last_activity"`
}
