package models

import "time"

// HealthStatus is the classification of one worker's health.
type HealthStatus string

const (
	HealthHealthy  HealthStatus = "healthy"
	HealthWarning  HealthStatus = "warning"
	HealthCritical HealthStatus = "critical"
	HealthOffline  HealthStatus = "offline"
)

// BotHealth is the rolling health view of one worker.
type BotHealth struct {
	BotID        string        `json:"bot_id"`
	Status       HealthStatus  `json:"status"`
	WinRate      float64       `json:"win_rate"`
	SampleSize   int           `json:"sample_size"`
	AvgLatency   time.Duration `json:"avg_latency"`
	RecentErrors int           `json:"recent_errors"`
	Connected    bool          `json:"connected"`
	LastActivity time.Time     `json:"last_activity"`
}

// AlertKind names the health events the monitor emits.
type AlertKind string

const (
	AlertStatusChange    AlertKind = "status_change"
	AlertStalePosition   AlertKind = "stale_position"
	AlertSlowExecution   AlertKind = "slow_execution"
	AlertHighFailureRate AlertKind = "high_failure_rate"
)

// Alert is one health notification delivered on the monitor's channel bus.
type Alert struct {
	ID      string       `json:"id"`
	BotID   string       `json:"bot_id"`
	Kind    AlertKind    `json:"kind"`
	Status  HealthStatus `json:"status,omitempty"`
	Message string       `json:"message"`
	At      time.Time    `json:"at"`
}
