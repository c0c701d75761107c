package models

import "time"

// TriggerKind classifies what fired the emergency stop.
type TriggerKind string

const (
	TriggerManual   TriggerKind = "manual"
	TriggerDrawdown TriggerKind = "drawdown"
	TriggerErrors   TriggerKind = "errors"
	TriggerAnomaly  TriggerKind = "anomaly"
)

// ErrorCategory buckets failures for the per-category consecutive counters.
type ErrorCategory string

const (
	ErrCatNetwork ErrorCategory = "network"
	ErrCatAPI     ErrorCategory = "api"
	ErrCatGeneric ErrorCategory = "generic"
)

// EmergencyEvent is one append-only entry in the emergency log. Only the
// Resolved flag flips after creation.
type EmergencyEvent struct {
	ID          string      `json:"id"`
	Kind        TriggerKind `json:"kind"`
	Message     string      `json:"message"`
	BotIDs      []string    `json:"bot_ids,omitempty"` // empty means all
	Resolved    bool        `json:"resolved"`
	TriggeredAt time.Time   `json:"triggered_at"`
	ResolvedAt  time.Time   `json:"resolved_at,omitempty"`
}
