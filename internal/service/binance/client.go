// Package binance implements the market data port: historical klines over
// REST and live candle feeds over WebSocket.
package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/BinqQarenYu/AlgoTrade-Navigator-sub000/internal/domain/models"
	"github.com/BinqQarenYu/AlgoTrade-Navigator-sub000/internal/domain/repository"
	httpclient "github.com/BinqQarenYu/AlgoTrade-Navigator-sub000/pkg/http"
	"github.com/BinqQarenYu/AlgoTrade-Navigator-sub000/pkg/retry"
)

// Client fetches historical klines from the exchange REST API.
type Client struct {
	baseURL string
	http    *httpclient.Client
}

// NewClient creates a REST market data client.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		http:    httpclient.NewClient(httpclient.WithTimeout(timeout)),
	}
}

var _ repository.MarketData = (*Client)(nil)

// FetchBars loads up to limit closed candles, oldest first.
func (c *Client) FetchBars(ctx context.Context, symbol, interval string, limit int) ([]models.Bar, error) {
	if !repository.IsValidInterval(interval) {
		return nil, retry.Validation(fmt.Errorf("invalid interval %q", interval))
	}
	resp, err := c.http.SendRequest(ctx, &httpclient.RequestOptions{
		Method: httpclient.MethodGet,
		URL:    c.baseURL + "/api/v3/klines",
		QueryParams: map[string][]string{
			"symbol":   {symbol},
			"interval": {interval},
			"limit":    {strconv.Itoa(limit)},
		},
	})
	if err != nil {
		return nil, retry.Transient(fmt.Errorf("klines %s/%s: %w", symbol, interval, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, classifyStatus(resp.StatusCode, fmt.Errorf("klines %s: status %d: %s", symbol, resp.StatusCode, body))
	}

	var raw [][]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, retry.Transient(fmt.Errorf("decode klines: %w", err))
	}

	bars := make([]models.Bar, 0, len(raw))
	for _, k := range raw {
		bar, err := parseKline(k)
		if err != nil {
			return nil, retry.Validation(fmt.Errorf("parse kline: %w", err))
		}
		bars = append(bars, bar)
	}
	return bars, nil
}

// Kline rows are [openTime, open, high, low, close, volume, closeTime, ...]
// with prices quoted as strings.
func parseKline(k []json.RawMessage) (models.Bar, error) {
	if len(k) < 6 {
		return models.Bar{}, fmt.Errorf("short row: %d fields", len(k))
	}
	var openMs int64
	if err := json.Unmarshal(k[0], &openMs); err != nil {
		return models.Bar{}, fmt.Errorf("open time: %w", err)
	}
	vals := make([]float64, 5)
	for i := 1; i <= 5; i++ {
		var s string
		if err := json.Unmarshal(k[i], &s); err != nil {
			return models.Bar{}, fmt.Errorf("field %d: %w", i, err)
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return models.Bar{}, fmt.Errorf("field %d: %w", i, err)
		}
		vals[i-1] = v
	}
	return models.Bar{
		Time:   time.UnixMilli(openMs).UTC(),
		Open:   vals[0],
		High:   vals[1],
		Low:    vals[2],
		Close:  vals[3],
		Volume: vals[4],
	}, nil
}

func classifyStatus(status int, err error) error {
	switch {
	case status == 401 || status == 403:
		return retry.Auth(err)
	case status == 418 || status == 429:
		return retry.Quota(err)
	default:
		return retry.Transient(err)
	}
}
