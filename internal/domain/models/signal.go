package models

import (
	"fmt"
	"time"
)

// SignalAction is the direction of a trade proposal.
type SignalAction string

const (
	ActionUp   SignalAction = "UP"
	ActionDown SignalAction = "DOWN"
)

// TradeSignal is a directional trade proposal pending acceptance. It flows
// once through the pipeline to the worker and is then discarded.
type TradeSignal struct {
	ID         string       `json:"id"`
	BotID      string       `json:"bot_id"`
	Symbol     string       `json:"symbol"`
	Action     SignalAction `json:"action"`
	EntryPrice float64      `json:"entry_price"`
	StopLoss   float64      `json:"stop_loss"`
	TakeProfit float64      `json:"take_profit"`
	Confidence float64      `json:"confidence"`
	Strategy   string       `json:"strategy"`
	Reason     string       `json:"reason,omitempty"`
	CreatedAt  time.Time    `json:"created_at"`
}

// Validate enforces the price-ordering invariant: for UP stop < entry < target,
// for DOWN target < entry < stop.
func (s *TradeSignal) Validate() error {
	if s.EntryPrice <= 0 {
		return fmt.Errorf("signal %s: entry price must be positive", s.Symbol)
	}
	switch s.Action {
	case ActionUp:
		if s.StopLoss >= s.EntryPrice {
			return fmt.Errorf("signal %s UP: stop %.8f must be below entry %.8f", s.Symbol, s.StopLoss, s.EntryPrice)
		}
		if s.TakeProfit <= s.EntryPrice {
			return fmt.Errorf("signal %s UP: target %.8f must be above entry %.8f", s.Symbol, s.TakeProfit, s.EntryPrice)
		}
	case ActionDown:
		if s.StopLoss <= s.EntryPrice {
			return fmt.Errorf("signal %s DOWN: stop %.8f must be above entry %.8f", s.Symbol, s.StopLoss, s.EntryPrice)
		}
		if s.TakeProfit >= s.EntryPrice {
			return fmt.Errorf("signal %s DOWN: target %.8f must be below entry %.8f", s.Symbol, s.TakeProfit, s.EntryPrice)
		}
	default:
		return fmt.Errorf("signal %s: unknown action %q", s.Symbol, s.Action)
	}
	return nil
}
