// Package clob is the Polymarket CLOB trading client: balances, positions,
// orderbooks, trade history, and order execution.
package clob

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
)

// OrderRequest describes one market order. IdempotencyKey is derived from
// the run ID and decision content so a re-sent order is deduplicated
// server-side.
type OrderRequest struct {
	TokenID        string          `json:"token_id"`
	Side           string          `json:"side"` // BUY or SELL
	Size           decimal.Decimal `json:"size"`
	IdempotencyKey string          `json:"-"`
}

// OrderResponse is the execution receipt recorded into workflow state.
type OrderResponse struct {
	OrderID       string            `json:"order_id"`
	Status        string            `json:"status"`
	FilledAmounts map[string]string `json:"filled_amounts,omitempty"`
	TxHashes      []string          `json:"tx_hashes,omitempty"`
	ErrorMsg      string            `json:"error,omitempty"`
}

// Level is one price level of an orderbook side.
type Level struct {
	Price decimal.Decimal `json:"price"`
	Size  decimal.Decimal `json:"size"`
}

// Orderbook is the current book for one token.
type Orderbook struct {
	TokenID string  `json:"asset_id"`
	Bids    []Level `json:"bids"`
	Asks    []Level `json:"asks"`
}

// Trade is one executed trade from the public trade feed.
type Trade struct {
	ID        string          `json:"id"`
	TokenID   string          `json:"asset_id"`
	Side      string          `json:"side"`
	Price     decimal.Decimal `json:"price"`
	Size      decimal.Decimal `json:"size"`
	Timestamp int64           `json:"timestamp"`
}

// PricePoint is one sample of the price history series.
type PricePoint struct {
	Timestamp int64           `json:"t"`
	Price     decimal.Decimal `json:"p"`
}

// Client talks to the CLOB REST API. Safe for concurrent use by multiple
// workflow runs; resty keeps a shared connection pool underneath.
type Client struct {
	http *resty.Client
}

func NewClient(host, apiKey string) *Client {
	client := resty.New()
	client.SetBaseURL(host)
	client.SetTimeout(30 * time.Second)
	client.SetHeader("Accept", "application/json")
	if apiKey != "" {
		client.SetHeader("Authorization", "Bearer "+apiKey)
	}

	return &Client{http: client}
}

type balanceResponse struct {
	Balance decimal.Decimal `json:"balance"`
}

// Balance returns the available USDC balance.
func (c *Client) Balance(ctx context.Context) (decimal.Decimal, error) {
	var out balanceResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		Get("/balance")
	if err != nil {
		return decimal.Zero, fmt.Errorf("fetch balance: %w", err)
	}
	if resp.IsError() {
		return decimal.Zero, fmt.Errorf("fetch balance: clob returned %s", resp.Status())
	}
	return out.Balance, nil
}

type positionEntry struct {
	TokenID string          `json:"token_id"`
	Size    decimal.Decimal `json:"size"`
}

// Positions returns the held size per token.
func (c *Client) Positions(ctx context.Context) (map[string]decimal.Decimal, error) {
	var out []positionEntry
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		Get("/positions")
	if err != nil {
		return nil, fmt.Errorf("fetch positions: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("fetch positions: clob returned %s", resp.Status())
	}

	positions := make(map[string]decimal.Decimal, len(out))
	for _, p := range out {
		positions[p.TokenID] = p.Size
	}
	return positions, nil
}

// GetOrderbook returns the current book for one token.
func (c *Client) GetOrderbook(ctx context.Context, tokenID string) (*Orderbook, error) {
	if strings.TrimSpace(tokenID) == "" {
		return nil, fmt.Errorf("token id is required")
	}

	var book Orderbook
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("token_id", tokenID).
		SetResult(&book).
		Get("/book")
	if err != nil {
		return nil, fmt.Errorf("fetch orderbook for %s: %w", tokenID, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("fetch orderbook for %s: clob returned %s", tokenID, resp.Status())
	}
	return &book, nil
}

// GetTrades returns recent trades for one token, newest first.
func (c *Client) GetTrades(ctx context.Context, tokenID string, limit int) ([]Trade, error) {
	if limit <= 0 {
		limit = 50
	}

	var trades []Trade
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"token_id": tokenID,
			"limit":    fmt.Sprintf("%d", limit),
		}).
		SetResult(&trades).
		Get("/trades")
	if err != nil {
		return nil, fmt.Errorf("fetch trades for %s: %w", tokenID, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("fetch trades for %s: clob returned %s", tokenID, resp.Status())
	}
	return trades, nil
}

type historyResponse struct {
	History []PricePoint `json:"history"`
}

// GetPriceHistory returns the sampled price series for one token.
func (c *Client) GetPriceHistory(ctx context.Context, tokenID string, interval string) ([]PricePoint, error) {
	if interval == "" {
		interval = "1d"
	}

	var out historyResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"market":   tokenID,
			"interval": interval,
		}).
		SetResult(&out).
		Get("/prices-history")
	if err != nil {
		return nil, fmt.Errorf("fetch price history for %s: %w", tokenID, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("fetch price history for %s: clob returned %s", tokenID, resp.Status())
	}
	return out.History, nil
}

// ExecuteOrder places a market order. Called only after the suspension
// boundary has been confirmed.
func (c *Client) ExecuteOrder(ctx context.Context, req OrderRequest) (*OrderResponse, error) {
	if req.TokenID == "" {
		return nil, fmt.Errorf("token id is required")
	}
	if req.Side != "BUY" && req.Side != "SELL" {
		return nil, fmt.Errorf("invalid order side %q", req.Side)
	}
	if !req.Size.IsPositive() {
		return nil, fmt.Errorf("order size must be positive, got %s", req.Size)
	}

	r := c.http.R().
		SetContext(ctx).
		SetBody(req)
	if req.IdempotencyKey != "" {
		r.SetHeader("Idempotency-Key", req.IdempotencyKey)
	}

	var out OrderResponse
	resp, err := r.SetResult(&out).Post("/order")
	if err != nil {
		return nil, fmt.Errorf("execute order: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("execute order: clob returned %s: %s", resp.Status(), resp.String())
	}
	return &out, nil
}
