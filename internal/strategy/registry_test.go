package strategy

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/BinqQarenYu/AlgoTrade-Navigator-sub000/internal/domain/models"
)

func closes(vals ...float64) []models.Bar {
	bars := make([]models.Bar, len(vals))
	for i, v := range vals {
		bars[i] = models.Bar{Time: time.Unix(int64(i)*300, 0), Open: v, High: v, Low: v, Close: v, Volume: 1}
	}
	return bars
}

func TestBuildUnknownStrategy(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Build("does-not-exist", nil); err == nil {
		t.Fatalf("unknown strategy must fail")
	}
}

func TestBuildAppliesDefaults(t *testing.T) {
	r := NewRegistry()
	s, err := r.Build("sma-cross", nil)
	if err != nil {
		t.Fatalf("build with defaults: %v", err)
	}
	if s.Name() != "sma-cross" {
		t.Fatalf("unexpected name %q", s.Name())
	}
}

func TestBuildRejectsBadParams(t *testing.T) {
	r := NewRegistry()
	cases := []struct {
		name string
		raw  string
	}{
		{"sma-cross", `{"fast": 30, "slow": 10}`},
		{"sma-cross", `{"fast": 1}`},
		{"momentum", `{"threshold": -2}`},
		{"momentum", `not json`},
	}
	for _, c := range cases {
		if _, err := r.Build(c.name, json.RawMessage(c.raw)); err == nil {
			t.Fatalf("%s with params %s must fail validation", c.name, c.raw)
		}
	}
}

func TestSMACrossMarksCrossover(t *testing.T) {
	r := NewRegistry()
	s, err := r.Build("sma-cross", json.RawMessage(`{"fast": 2, "slow": 3}`))
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	// Downtrend then sharp reversal: the fast average crosses above the slow.
	bars := closes(10, 9, 8, 7, 6, 5, 9, 12)
	evs, err := s.Evaluate(bars)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	var sawBuy bool
	for _, ev := range evs {
		if ev.BuySignal > 0 {
			sawBuy = true
		}
	}
	if !sawBuy {
		t.Fatalf("expected a buy marker after the reversal")
	}
}

func TestMomentumThreshold(t *testing.T) {
	r := NewRegistry()
	s, err := r.Build("momentum", json.RawMessage(`{"lookback": 2, "threshold": 5}`))
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	bars := closes(100, 100, 100, 120, 120, 90)
	evs, err := s.Evaluate(bars)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if evs[3].BuySignal == 0 {
		t.Fatalf("+20%% move must mark a buy")
	}
	if evs[5].SellSignal == 0 {
		t.Fatalf("-25%% move must mark a sell")
	}
}

func TestEvaluateNeedsEnoughBars(t *testing.T) {
	r := NewRegistry()
	s, _ := r.Build("sma-cross", nil)
	if _, err := s.Evaluate(closes(1, 2, 3)); err == nil {
		t.Fatalf("short history must error")
	}
}
