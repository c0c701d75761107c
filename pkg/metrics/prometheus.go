package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/BinqQarenYu/AlgoTrade-Navigator-sub000/internal/domain/models"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	tradesTotal     *prometheus.CounterVec
	tradePnl        *prometheus.CounterVec
	errorsTotal     *prometheus.CounterVec
	analysisSeconds *prometheus.HistogramVec
	botStatus       *prometheus.GaugeVec
	breakerState    *prometheus.GaugeVec
	emergencyActive prometheus.Gauge
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		tradesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "navigator_trades_total",
				Help: "Total number of closed trades",
			},
			[]string{"bot", "symbol", "outcome"},
		),
		tradePnl: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "navigator_trade_pnl_total",
				Help: "Cumulative realized P&L per bot",
			},
			[]string{"bot"},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "navigator_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		analysisSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "navigator_analysis_duration_seconds",
				Help:    "Duration of analysis cycles in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"bot"},
		),
		botStatus: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "navigator_bot_status",
				Help: "Worker state machine state (0=stopped 1=idle 2=analyzing 3=position_open 4=cooldown 5=error)",
			},
			[]string{"bot"},
		),
		breakerState: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "navigator_breaker_state",
				Help: "Circuit breaker state (0=closed 1=open 2=half-open)",
			},
			[]string{"name"},
		),
		emergencyActive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "navigator_emergency_active",
				Help: "1 while the global emergency stop is active",
			},
		),
	}
}

// RecordTrade records a closed trade outcome.
func (r *Recorder) RecordTrade(botID, symbol string, pnl float64) {
	outcome := "win"
	if pnl < 0 {
		outcome = "loss"
	}
	r.tradesTotal.WithLabelValues(botID, symbol, outcome).Inc()
	r.tradePnl.WithLabelValues(botID).Add(pnl)
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordAnalysis records the duration of one analysis cycle.
func (r *Recorder) RecordAnalysis(botID string, seconds float64) {
	r.analysisSeconds.WithLabelValues(botID).Observe(seconds)
}

// RecordBotStatus records a worker state transition.
func (r *Recorder) RecordBotStatus(botID string, status models.BotStatus) {
	r.botStatus.WithLabelValues(botID).Set(statusValue(status))
}

// RecordBreakerState records a circuit breaker transition.
func (r *Recorder) RecordBreakerState(name string, state int) {
	r.breakerState.WithLabelValues(name).Set(float64(state))
}

// RecordEmergencyActive flips the emergency gauge.
func (r *Recorder) RecordEmergencyActive(active bool) {
	if active {
		r.emergencyActive.Set(1)
		return
	}
	r.emergencyActive.Set(0)
}

func statusValue(s models.BotStatus) float64 {
	switch s {
	case models.StatusStopped:
		return 0
	case models.StatusIdle:
		return 1
	case models.StatusAnalyzing:
		return 2
	case models.StatusPositionOpen:
		return 3
	case models.StatusCooldown:
		return 4
	case models.StatusError:
		return 5
	default:
		return -1
	}
}

// Noop is a metrics recorder that discards everything; used in tests.
type Noop struct{}

func (Noop) RecordTrade(string, string, float64)      {}
func (Noop) RecordError(string)                       {}
func (Noop) RecordAnalysis(string, float64)           {}
func (Noop) RecordBotStatus(string, models.BotStatus) {}
func (Noop) RecordBreakerState(string, int)           {}
func (Noop) RecordEmergencyActive(bool)               {}
