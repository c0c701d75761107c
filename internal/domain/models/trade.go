package models

import "time"

// CloseReason explains why a position was closed.
type CloseReason string

const (
	CloseTakeProfit CloseReason = "take_profit"
	CloseStopLoss   CloseReason = "stop_loss"
	CloseReversal   CloseReason = "reversal"
	CloseManual     CloseReason = "manual"
	CloseEmergency  CloseReason = "emergency"
)

// OrderFill is the result of a gateway placeOrder call.
type OrderFill struct {
	OrderID        string    `json:"order_id"`
	FillPrice      float64   `json:"fill_price"`
	FilledQuantity float64   `json:"filled_quantity"`
	Timestamp      time.Time `json:"timestamp"`
}

// Position is the open exposure derived from an accepted signal. A worker
// holds at most one.
type Position struct {
	ID           string       `json:"id"`
	BotID        string       `json:"bot_id"`
	Symbol       string       `json:"symbol"`
	Side         SignalAction `json:"side"`
	EntryPrice   float64      `json:"entry_price"`
	Quantity     float64      `json:"quantity"`
	StopLoss     float64      `json:"stop_loss"`
	TakeProfit   float64      `json:"take_profit"`
	Strategy     string       `json:"strategy"`
	OpenedAt     time.Time    `json:"opened_at"`
	CurrentPrice float64      `json:"current_price"`
}

// UnrealizedPnl returns the open P&L at price p.
func (p *Position) UnrealizedPnl(price float64) float64 {
	if p.Side == ActionDown {
		return (p.EntryPrice - price) * p.Quantity
	}
	return (price - p.EntryPrice) * p.Quantity
}

// ShouldClose reports whether price has crossed the stop or target and, if
// so, which side was hit.
func (p *Position) ShouldClose(price float64) (CloseReason, bool) {
	if p.Side == ActionUp {
		if price >= p.TakeProfit {
			return CloseTakeProfit, true
		}
		if price <= p.StopLoss {
			return CloseStopLoss, true
		}
		return "", false
	}
	if price <= p.TakeProfit {
		return CloseTakeProfit, true
	}
	if price >= p.StopLoss {
		return CloseStopLoss, true
	}
	return "", false
}

// TradeRecord is the immutable outcome of a closed position, consumed by the
// health monitor, the risk guardian and the trade archive.
type TradeRecord struct {
	ID         string       `json:"id"`
	BotID      string       `json:"bot_id"`
	Symbol     string       `json:"symbol"`
	Side       SignalAction `json:"side"`
	Strategy   string       `json:"strategy"`
	EntryPrice float64      `json:"entry_price"`
	ExitPrice  float64      `json:"exit_price"`
	Quantity   float64      `json:"quantity"`
	Pnl        float64      `json:"pnl"`
	PnlPct     float64      `json:"pnl_pct"`
	OpenedAt   time.Time    `json:"opened_at"`
	ClosedAt   time.Time    `json:"closed_at"`
	Reason     CloseReason  `json:"reason"`
}
