// Package gateway implements the order execution port against the exchange
// trading API.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/BinqQarenYu/AlgoTrade-Navigator-sub000/internal/domain/models"
	"github.com/BinqQarenYu/AlgoTrade-Navigator-sub000/internal/domain/repository"
	httpclient "github.com/BinqQarenYu/AlgoTrade-Navigator-sub000/pkg/http"
	"github.com/BinqQarenYu/AlgoTrade-Navigator-sub000/pkg/retry"
)

// Config tunes the gateway client.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client places and closes market orders. Implements repository.OrderGateway.
type Client struct {
	cfg  Config
	http *httpclient.Client
}

func NewClient(cfg Config) *Client {
	return &Client{cfg: cfg, http: httpclient.NewClient(httpclient.WithTimeout(cfg.Timeout))}
}

var _ repository.OrderGateway = (*Client)(nil)

type orderRequest struct {
	Symbol   string  `json:"symbol"`
	Side     string  `json:"side"`
	Quantity float64 `json:"quantity"`
}

type orderResponse struct {
	OrderID    string  `json:"order_id"`
	Price      float64 `json:"price"`
	Quantity   float64 `json:"quantity"`
	Commission float64 `json:"commission"`
	FilledAt   int64   `json:"filled_at"` // unix ms
}

// PlaceOrder opens a market position.
func (c *Client) PlaceOrder(ctx context.Context, symbol string, side models.SignalAction, quantity float64) (*models.OrderFill, error) {
	return c.submit(ctx, "/api/v1/orders", symbol, side, quantity)
}

// CloseOrder closes an open position. Side is the direction of the position
// being closed, not of the closing order.
func (c *Client) CloseOrder(ctx context.Context, symbol string, side models.SignalAction, quantity float64) (*models.OrderFill, error) {
	return c.submit(ctx, "/api/v1/orders/close", symbol, side, quantity)
}

func (c *Client) submit(ctx context.Context, path, symbol string, side models.SignalAction, quantity float64) (*models.OrderFill, error) {
	if quantity <= 0 {
		return nil, retry.Validation(fmt.Errorf("order %s: quantity must be positive, got %v", symbol, quantity))
	}
	resp, err := c.http.SendRequest(ctx, &httpclient.RequestOptions{
		Method:  httpclient.MethodPost,
		URL:     c.cfg.BaseURL + path,
		Headers: map[string]string{"X-API-Key": c.cfg.APIKey},
		Body:    &orderRequest{Symbol: symbol, Side: string(side), Quantity: quantity},
	})
	if err != nil {
		return nil, retry.Transient(fmt.Errorf("order %s: %w", symbol, err))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == 401 || resp.StatusCode == 403:
		return nil, retry.Auth(fmt.Errorf("order %s: status %d", symbol, resp.StatusCode))
	case resp.StatusCode == 429:
		return nil, retry.Quota(fmt.Errorf("order %s: status 429", symbol))
	case resp.StatusCode == 400 || resp.StatusCode == 422:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, retry.Validation(fmt.Errorf("order %s rejected: %s", symbol, body))
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, retry.Transient(fmt.Errorf("order %s: status %d: %s", symbol, resp.StatusCode, body))
	}

	var out orderResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, retry.Transient(fmt.Errorf("order %s: decode: %w", symbol, err))
	}
	return &models.OrderFill{
		OrderID:        out.OrderID,
		FillPrice:      out.Price,
		FilledQuantity: out.Quantity,
		Timestamp:      time.UnixMilli(out.FilledAt).UTC(),
	}, nil
}
