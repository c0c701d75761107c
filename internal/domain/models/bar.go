package models

import "time"

// Bar represents a single OHLCV candle for one symbol/interval.
type Bar struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// BarEvent is a live feed update. IsClosed marks the final update of a candle;
// intermediate updates carry the in-progress bar.
type BarEvent struct {
	Symbol   string `json:"symbol"`
	Interval string `json:"interval"`
	Bar      Bar    `json:"bar"`
	IsClosed bool   `json:"is_closed"`
}

// BarSeries is a bounded, owned candle history for one worker. Live updates
// are merged by timestamp: an update to the in-progress bar replaces the last
// entry, a new timestamp appends and trims the front.
type BarSeries struct {
	bars []Bar
	max  int
}

func NewBarSeries(max int) *BarSeries {
	if max <= 0 {
		max = 500
	}
	return &BarSeries{bars: make([]Bar, 0, max), max: max}
}

// Seed replaces the whole series with historical bars, keeping at most max.
func (s *BarSeries) Seed(bars []Bar) {
	if len(bars) > s.max {
		bars = bars[len(bars)-s.max:]
	}
	s.bars = append(s.bars[:0], bars...)
}

// Apply merges one live bar into the series.
func (s *BarSeries) Apply(b Bar) {
	n := len(s.bars)
	if n > 0 && s.bars[n-1].Time.Equal(b.Time) {
		s.bars[n-1] = b
		return
	}
	s.bars = append(s.bars, b)
	if len(s.bars) > s.max {
		copy(s.bars, s.bars[len(s.bars)-s.max:])
		s.bars = s.bars[:s.max]
	}
}

// Bars returns a copy of the series, oldest first.
func (s *BarSeries) Bars() []Bar {
	out := make([]Bar, len(s.bars))
	copy(out, s.bars)
	return out
}

func (s *BarSeries) Len() int { return len(s.bars) }

// Last returns the most recent bar, if any.
func (s *BarSeries) Last() (Bar, bool) {
	if len(s.bars) == 0 {
		return Bar{}, false
	}
	return s.bars[len(s.bars)-1], true
}
