package models

import (
	"testing"
	"time"
)

func mkBar(ts int64, close float64) Bar {
	return Bar{Time: time.Unix(ts, 0), Open: close, High: close, Low: close, Close: close, Volume: 1}
}

func TestBarSeriesReplacesInProgressBar(t *testing.T) {
	s := NewBarSeries(10)
	s.Apply(mkBar(60, 100))
	s.Apply(mkBar(60, 101))
	s.Apply(mkBar(60, 102))
	if s.Len() != 1 {
		t.Fatalf("same-timestamp updates must replace, got len %d", s.Len())
	}
	last, _ := s.Last()
	if last.Close != 102 {
		t.Fatalf("expected latest update 102, got %v", last.Close)
	}
}

func TestBarSeriesAppendsNewTimestamp(t *testing.T) {
	s := NewBarSeries(10)
	s.Apply(mkBar(60, 100))
	s.Apply(mkBar(120, 101))
	if s.Len() != 2 {
		t.Fatalf("new timestamp must append, got len %d", s.Len())
	}
}

func TestBarSeriesBounded(t *testing.T) {
	s := NewBarSeries(3)
	for i := int64(0); i < 10; i++ {
		s.Apply(mkBar(60*i, float64(i)))
	}
	if s.Len() != 3 {
		t.Fatalf("series must trim to max, got len %d", s.Len())
	}
	bars := s.Bars()
	if bars[0].Close != 7 || bars[2].Close != 9 {
		t.Fatalf("series must keep newest bars, got %v..%v", bars[0].Close, bars[2].Close)
	}
}

func TestPositionShouldClose(t *testing.T) {
	long := &Position{Side: ActionUp, EntryPrice: 100, StopLoss: 95, TakeProfit: 110}
	if r, ok := long.ShouldClose(110); !ok || r != CloseTakeProfit {
		t.Fatalf("long at target must close with take_profit, got %v %v", r, ok)
	}
	if r, ok := long.ShouldClose(94); !ok || r != CloseStopLoss {
		t.Fatalf("long under stop must close with stop_loss, got %v %v", r, ok)
	}
	if _, ok := long.ShouldClose(100); ok {
		t.Fatalf("long inside band must stay open")
	}

	short := &Position{Side: ActionDown, EntryPrice: 100, StopLoss: 105, TakeProfit: 90}
	if r, ok := short.ShouldClose(90); !ok || r != CloseTakeProfit {
		t.Fatalf("short at target must close with take_profit, got %v %v", r, ok)
	}
	if r, ok := short.ShouldClose(106); !ok || r != CloseStopLoss {
		t.Fatalf("short above stop must close with stop_loss, got %v %v", r, ok)
	}
}
