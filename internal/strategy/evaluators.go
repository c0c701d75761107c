package strategy

import (
	"fmt"

	"github.com/BinqQarenYu/AlgoTrade-Navigator-sub000/internal/domain/models"
	"github.com/BinqQarenYu/AlgoTrade-Navigator-sub000/internal/domain/repository"
)

// SMACrossParams configures the moving-average crossover evaluator.
type SMACrossParams struct {
	Fast int `json:"fast" default:"9" validate:"gte=2"`
	Slow int `json:"slow" default:"21" validate:"gte=3"`
}

type smaCross struct {
	params SMACrossParams
}

func (s *smaCross) Name() string { return "sma-cross" }

func (s *smaCross) Evaluate(bars []models.Bar) ([]repository.Evaluated, error) {
	if len(bars) <= s.params.Slow {
		return nil, fmt.Errorf("sma-cross: need more than %d bars, got %d", s.params.Slow, len(bars))
	}

	fast := sma(bars, s.params.Fast)
	slow := sma(bars, s.params.Slow)

	out := make([]repository.Evaluated, len(bars))
	for i, b := range bars {
		ev := repository.Evaluated{Bar: b, Indicators: map[string]float64{
			"sma_fast": fast[i],
			"sma_slow": slow[i],
		}}
		if i > 0 && fast[i-1] != 0 && slow[i-1] != 0 {
			crossedUp := fast[i-1] <= slow[i-1] && fast[i] > slow[i]
			crossedDown := fast[i-1] >= slow[i-1] && fast[i] < slow[i]
			if crossedUp {
				ev.BuySignal = b.Close
			} else if crossedDown {
				ev.SellSignal = b.Close
			}
		}
		out[i] = ev
	}
	return out, nil
}

// sma returns the simple moving average per bar; zero until the window fills.
func sma(bars []models.Bar, period int) []float64 {
	out := make([]float64, len(bars))
	var sum float64
	for i, b := range bars {
		sum += b.Close
		if i >= period {
			sum -= bars[i-period].Close
		}
		if i >= period-1 {
			out[i] = sum / float64(period)
		}
	}
	return out
}

// MomentumParams configures the rate-of-change evaluator.
type MomentumParams struct {
	Lookback  int     `json:"lookback" default:"12" validate:"gte=2"`
	Threshold float64 `json:"threshold" default:"1.5" validate:"gt=0"` // percent
}

type momentum struct {
	params MomentumParams
}

func (m *momentum) Name() string { return "momentum" }

func (m *momentum) Evaluate(bars []models.Bar) ([]repository.Evaluated, error) {
	if len(bars) <= m.params.Lookback {
		return nil, fmt.Errorf("momentum: need more than %d bars, got %d", m.params.Lookback, len(bars))
	}

	out := make([]repository.Evaluated, len(bars))
	for i, b := range bars {
		ev := repository.Evaluated{Bar: b, Indicators: map[string]float64{}}
		if i >= m.params.Lookback {
			ref := bars[i-m.params.Lookback].Close
			if ref > 0 {
				roc := (b.Close - ref) / ref * 100
				ev.Indicators["roc"] = roc
				if roc >= m.params.Threshold {
					ev.BuySignal = b.Close
				} else if roc <= -m.params.Threshold {
					ev.SellSignal = b.Close
				}
			}
		}
		out[i] = ev
	}
	return out, nil
}
