// Package oracle implements the AI confirmation collaborator over HTTP.
// Responses are cached per symbol and candle, and outbound calls are paced
// by a local token bucket so the upstream quota is spent deliberately.
package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/BinqQarenYu/AlgoTrade-Navigator-sub000/internal/domain/models"
	"github.com/BinqQarenYu/AlgoTrade-Navigator-sub000/internal/domain/repository"
	"github.com/BinqQarenYu/AlgoTrade-Navigator-sub000/internal/service/cache"
	"github.com/BinqQarenYu/AlgoTrade-Navigator-sub000/internal/service/ratelimit"
	httpclient "github.com/BinqQarenYu/AlgoTrade-Navigator-sub000/pkg/http"
	"github.com/BinqQarenYu/AlgoTrade-Navigator-sub000/pkg/logger"
	"github.com/BinqQarenYu/AlgoTrade-Navigator-sub000/pkg/retry"
)

// Config tunes the oracle client.
type Config struct {
	BaseURL      string
	APIKey       string
	Timeout      time.Duration
	CacheTTL     time.Duration
	RateCapacity float64
	RatePerSec   float64
	RecentBars   int
}

// Client calls the confirmation endpoint. Implements repository.Oracle.
type Client struct {
	cfg     Config
	http    *httpclient.Client
	cache   *cache.TTLCache
	limiter *ratelimit.Limiter
	log     *logger.Logger
}

func NewClient(cfg Config, log *logger.Logger) *Client {
	if cfg.RecentBars <= 0 {
		cfg.RecentBars = 50
	}
	return &Client{
		cfg:     cfg,
		http:    httpclient.NewClient(httpclient.WithTimeout(cfg.Timeout)),
		cache:   cache.NewTTLCache(),
		limiter: ratelimit.New(cfg.RateCapacity, cfg.RatePerSec),
		log:     log.With("component", "oracle"),
	}
}

var _ repository.Oracle = (*Client)(nil)

type confirmRequest struct {
	Symbol   string       `json:"symbol"`
	Proposed string       `json:"proposed"`
	Bars     []models.Bar `json:"bars"`
}

type confirmResponse struct {
	Direction  string  `json:"direction"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// Confirm asks the oracle for a directional opinion on the proposed action.
// A cache hit or a locally exhausted bucket never touches the network; the
// latter returns an Unavailable confirmation rather than an error.
func (c *Client) Confirm(ctx context.Context, symbol string, recent []models.Bar, proposed models.SignalAction) (*repository.Confirmation, error) {
	if len(recent) > c.cfg.RecentBars {
		recent = recent[len(recent)-c.cfg.RecentBars:]
	}
	key := cacheKey(symbol, recent, proposed)
	if v, ok := c.cache.Get(key); ok {
		return v.(*repository.Confirmation), nil
	}

	if !c.limiter.Allow(symbol) {
		c.log.Warn("local rate budget exhausted", logger.String("symbol", symbol))
		return &repository.Confirmation{Unavailable: true}, nil
	}

	resp, err := c.http.SendRequest(ctx, &httpclient.RequestOptions{
		Method: httpclient.MethodPost,
		URL:    c.cfg.BaseURL + "/v1/confirm",
		Headers: map[string]string{
			"Authorization": "Bearer " + c.cfg.APIKey,
		},
		Body: &confirmRequest{Symbol: symbol, Proposed: string(proposed), Bars: recent},
	})
	if err != nil {
		return nil, retry.Transient(fmt.Errorf("oracle confirm %s: %w", symbol, err))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == 429:
		return nil, retry.Quota(fmt.Errorf("oracle quota: status 429"))
	case resp.StatusCode == 401 || resp.StatusCode == 403:
		return nil, retry.Auth(fmt.Errorf("oracle auth: status %d", resp.StatusCode))
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, retry.Transient(fmt.Errorf("oracle status %d: %s", resp.StatusCode, body))
	}

	var out confirmResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, retry.Transient(fmt.Errorf("oracle decode: %w", err))
	}

	conf := &repository.Confirmation{
		Direction:  models.SignalAction(out.Direction),
		Confidence: out.Confidence,
		Reasoning:  out.Reasoning,
	}
	c.cache.Set(key, conf, c.cfg.CacheTTL)
	return conf, nil
}

func cacheKey(symbol string, recent []models.Bar, proposed models.SignalAction) string {
	var last int64
	if len(recent) > 0 {
		last = recent[len(recent)-1].Time.Unix()
	}
	return fmt.Sprintf("%s:%d:%s", symbol, last, proposed)
}
