package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/BinqQarenYu/AlgoTrade-Navigator-sub000/internal/domain/models"
	"github.com/BinqQarenYu/AlgoTrade-Navigator-sub000/internal/domain/repository"
)

// Dialer opens one kline WebSocket stream per call. Reconnect policy lives
// in the stream layer above; a dialer only establishes a single feed.
type Dialer struct {
	wsURL        string
	pingInterval time.Duration
}

func NewDialer(wsURL string) *Dialer {
	return &Dialer{wsURL: wsURL, pingInterval: 30 * time.Second}
}

var _ repository.FeedDialer = (*Dialer)(nil)

// Dial subscribes to the kline stream for symbol/interval.
func (d *Dialer) Dial(ctx context.Context, symbol, interval string) (repository.BarFeed, error) {
	if !repository.IsValidInterval(interval) {
		return nil, fmt.Errorf("invalid interval %q", interval)
	}
	u := fmt.Sprintf("%s/ws/%s@kline_%s", d.wsURL, strings.ToLower(symbol), interval)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", u, err)
	}

	f := &feed{
		conn:     conn,
		symbol:   symbol,
		interval: interval,
		events:   make(chan models.BarEvent, 256),
		errs:     make(chan error, 1),
		done:     make(chan struct{}),
	}
	go f.pingLoop(d.pingInterval)
	go f.readLoop()
	return f, nil
}

type feed struct {
	conn     *websocket.Conn
	symbol   string
	interval string
	events   chan models.BarEvent
	errs     chan error
	done     chan struct{}
}

func (f *feed) Events() <-chan models.BarEvent { return f.events }
func (f *feed) Err() <-chan error              { return f.errs }

func (f *feed) Close() error {
	select {
	case <-f.done:
		return nil
	default:
	}
	close(f.done)
	return f.conn.Close()
}

func (f *feed) pingLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-f.done:
			return
		case <-ticker.C:
			_ = f.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
		}
	}
}

type klineFrame struct {
	Event string `json:"e"`
	Kline struct {
		OpenTime int64  `json:"t"`
		Open     string `json:"o"`
		High     string `json:"h"`
		Low      string `json:"l"`
		Close    string `json:"c"`
		Volume   string `json:"v"`
		IsClosed bool   `json:"x"`
	} `json:"k"`
}

func (f *feed) readLoop() {
	defer close(f.events)
	defer close(f.errs)
	for {
		_, b, err := f.conn.ReadMessage()
		if err != nil {
			select {
			case <-f.done:
				// Intentional close, not a feed failure.
			default:
				f.errs <- fmt.Errorf("read %s@%s: %w", f.symbol, f.interval, err)
			}
			return
		}
		var frame klineFrame
		if err := json.Unmarshal(b, &frame); err != nil || frame.Event != "kline" {
			continue
		}
		bar, err := frame.bar()
		if err != nil {
			continue
		}
		ev := models.BarEvent{
			Symbol:   f.symbol,
			Interval: f.interval,
			Bar:      bar,
			IsClosed: frame.Kline.IsClosed,
		}
		select {
		case f.events <- ev:
		case <-f.done:
			return
		}
	}
}

func (fr *klineFrame) bar() (models.Bar, error) {
	vals := make([]float64, 5)
	for i, s := range []string{fr.Kline.Open, fr.Kline.High, fr.Kline.Low, fr.Kline.Close, fr.Kline.Volume} {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return models.Bar{}, err
		}
		vals[i] = v
	}
	return models.Bar{
		Time:   time.UnixMilli(fr.Kline.OpenTime).UTC(),
		Open:   vals[0],
		High:   vals[1],
		Low:    vals[2],
		Close:  vals[3],
		Volume: vals[4],
	}, nil
}
