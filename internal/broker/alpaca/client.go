// Package alpaca implements the brokerage contract against Alpaca's
// v2 trading REST API. Extended-hours orders must be DAY limit orders;
// the exchange rejects market orders outside regular hours.
package alpaca

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tradeworks/nightfade/internal/broker"
)

const (
	liveBaseURL  = "https://api.alpaca.markets"
	paperBaseURL = "https://paper-api.alpaca.markets"
)

// Config holds credentials and connection settings.
type Config struct {
	APIKey    string
	APISecret string
	Paper     bool
	// BaseURL overrides the paper/live endpoint, used by tests.
	BaseURL string
	Timeout time.Duration
}

// Client talks to the Alpaca trading API.
type Client struct {
	baseURL string
	key     string
	secret  string
	http    *http.Client
}

// NewClient builds a trading client. Paper accounts hit the paper
// endpoint unless BaseURL overrides it.
func NewClient(cfg Config) *Client {
	base := cfg.BaseURL
	if base == "" {
		if cfg.Paper {
			base = paperBaseURL
		} else {
			base = liveBaseURL
		}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: base,
		key:     cfg.APIKey,
		secret:  cfg.APISecret,
		http:    &http.Client{Timeout: timeout},
	}
}

// GetAccount returns equity and non-marginable cash.
func (c *Client) GetAccount(ctx context.Context) (broker.Account, error) {
	var raw apiAccount
	if err := c.do(ctx, http.MethodGet, "/v2/account", nil, &raw); err != nil {
		return broker.Account{}, err
	}
	return broker.Account{
		Equity:      parseFloat(raw.Equity),
		Cash:        parseFloat(raw.NonMarginableBuyingPower),
		BuyingPower: parseFloat(raw.BuyingPower),
	}, nil
}

// GetOpenPositions returns all live positions on the account.
func (c *Client) GetOpenPositions(ctx context.Context) ([]broker.Position, error) {
	var raw []apiPosition
	if err := c.do(ctx, http.MethodGet, "/v2/positions", nil, &raw); err != nil {
		return nil, err
	}
	out := make([]broker.Position, 0, len(raw))
	for _, p := range raw {
		qty := parseFloat(p.Qty)
		if qty < 0 {
			qty = -qty
		}
		out = append(out, broker.Position{
			Symbol:        p.Symbol,
			Qty:           qty,
			Side:          p.Side,
			AvgEntryPrice: parseFloat(p.AvgEntryPrice),
			MarketValue:   parseFloat(p.MarketValue),
		})
	}
	return out, nil
}

// GetOrderStatus fetches one order by brokerage id.
func (c *Client) GetOrderStatus(ctx context.Context, id string) (broker.Order, error) {
	var raw apiOrder
	if err := c.do(ctx, http.MethodGet, "/v2/orders/"+url.PathEscape(id), nil, &raw); err != nil {
		return broker.Order{}, err
	}
	return raw.toOrder(), nil
}

// FindOrderByClientID fetches one order by client order id.
func (c *Client) FindOrderByClientID(ctx context.Context, clientOrderID string) (broker.Order, error) {
	path := "/v2/orders:by_client_order_id?client_order_id=" + url.QueryEscape(clientOrderID)
	var raw apiOrder
	if err := c.do(ctx, http.MethodGet, path, nil, &raw); err != nil {
		return broker.Order{}, err
	}
	return raw.toOrder(), nil
}

// SubmitExtendedHoursLimitOrder places a DAY limit order with extended
// hours enabled.
func (c *Client) SubmitExtendedHoursLimitOrder(ctx context.Context, req broker.OrderRequest) (broker.Order, error) {
	if req.Qty <= 0 {
		return broker.Order{}, fmt.Errorf("alpaca: order qty must be positive, got %d", req.Qty)
	}
	body := orderPayload{
		Symbol:        req.Symbol,
		Qty:           strconv.FormatInt(req.Qty, 10),
		Side:          string(req.Side),
		Type:          "limit",
		TimeInForce:   "day",
		LimitPrice:    strconv.FormatFloat(req.LimitPrice, 'f', 2, 64),
		ExtendedHours: true,
		ClientOrderID: req.ClientOrderID,
	}
	var raw apiOrder
	if err := c.do(ctx, http.MethodPost, "/v2/orders", body, &raw); err != nil {
		return broker.Order{}, err
	}
	order := raw.toOrder()
	log.Info().
		Str("symbol", req.Symbol).
		Str("side", string(req.Side)).
		Int64("qty", req.Qty).
		Float64("limit", req.LimitPrice).
		Str("order_id", order.ID).
		Msg("extended-hours limit order submitted")
	return order, nil
}

// ClosePosition flattens a position in either direction. The brokerage
// responds with the generated close order.
func (c *Client) ClosePosition(ctx context.Context, symbol string) (broker.Order, error) {
	var raw apiOrder
	if err := c.do(ctx, http.MethodDelete, "/v2/positions/"+url.PathEscape(symbol), nil, &raw); err != nil {
		return broker.Order{}, err
	}
	log.Info().Str("symbol", symbol).Str("order_id", raw.ID).Msg("position close submitted")
	return raw.toOrder(), nil
}

// CancelOrder cancels a working order. The API answers 204 on success.
func (c *Client) CancelOrder(ctx context.Context, id string) error {
	if err := c.do(ctx, http.MethodDelete, "/v2/orders/"+url.PathEscape(id), nil, nil); err != nil {
		return err
	}
	log.Info().Str("order_id", id).Msg("order canceled")
	return nil
}

// ListOpenOrders returns all working orders.
func (c *Client) ListOpenOrders(ctx context.Context) ([]broker.Order, error) {
	var raw []apiOrder
	if err := c.do(ctx, http.MethodGet, "/v2/orders?status=open&limit=500", nil, &raw); err != nil {
		return nil, err
	}
	out := make([]broker.Order, 0, len(raw))
	for _, o := range raw {
		out = append(out, o.toOrder())
	}
	return out, nil
}

// GetClock returns the exchange calendar snapshot.
func (c *Client) GetClock(ctx context.Context) (broker.Clock, error) {
	var raw apiClock
	if err := c.do(ctx, http.MethodGet, "/v2/clock", nil, &raw); err != nil {
		return broker.Clock{}, err
	}
	return broker.Clock{
		Timestamp: raw.Timestamp,
		IsOpen:    raw.IsOpen,
		NextOpen:  raw.NextOpen,
		NextClose: raw.NextClose,
	}, nil
}

// do performs one authenticated API call, decoding into out when it is
// non-nil.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("alpaca: encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("alpaca: build request: %w", err)
	}
	req.Header.Set("APCA-API-KEY-ID", c.key)
	req.Header.Set("APCA-API-SECRET-KEY", c.secret)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("alpaca: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.apiError(resp, method, path)
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("alpaca: decode %s %s: %w", method, path, err)
	}
	return nil
}

func (c *Client) apiError(resp *http.Response, method, path string) error {
	var apiErr struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode == http.StatusNotFound && strings.HasPrefix(path, "/v2/orders") {
		return fmt.Errorf("alpaca: %s %s: %w", method, path, broker.ErrOrderNotFound)
	}
	if err := json.Unmarshal(raw, &apiErr); err == nil && apiErr.Message != "" {
		return fmt.Errorf("alpaca: %s %s: HTTP %d: %s", method, path, resp.StatusCode, apiErr.Message)
	}
	return fmt.Errorf("alpaca: %s %s: HTTP %d", method, path, resp.StatusCode)
}

// The API serializes numbers as strings; tolerate empty values.
func parseFloat(s string) float64 {
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

type apiAccount struct {
	Equity                   string `json:"equity"`
	Cash                     string `json:"cash"`
	BuyingPower              string `json:"buying_power"`
	NonMarginableBuyingPower string `json:"non_marginable_buying_power"`
	Status                   string `json:"status"`
}

type apiPosition struct {
	Symbol        string `json:"symbol"`
	Qty           string `json:"qty"`
	Side          string `json:"side"`
	AvgEntryPrice string `json:"avg_entry_price"`
	MarketValue   string `json:"market_value"`
}

type orderPayload struct {
	Symbol        string `json:"symbol"`
	Qty           string `json:"qty"`
	Side          string `json:"side"`
	Type          string `json:"type"`
	TimeInForce   string `json:"time_in_force"`
	LimitPrice    string `json:"limit_price"`
	ExtendedHours bool   `json:"extended_hours"`
	ClientOrderID string `json:"client_order_id,omitempty"`
}

type apiOrder struct {
	ID             string     `json:"id"`
	ClientOrderID  string     `json:"client_order_id"`
	Symbol         string     `json:"symbol"`
	Side           string     `json:"side"`
	Qty            string     `json:"qty"`
	LimitPrice     string     `json:"limit_price"`
	Status         string     `json:"status"`
	FilledQty      string     `json:"filled_qty"`
	FilledAvgPrice string     `json:"filled_avg_price"`
	SubmittedAt    time.Time  `json:"submitted_at"`
	FilledAt       *time.Time `json:"filled_at"`
}

func (o apiOrder) toOrder() broker.Order {
	order := broker.Order{
		ID:             o.ID,
		ClientOrderID:  o.ClientOrderID,
		Symbol:         o.Symbol,
		Side:           broker.OrderSide(o.Side),
		Qty:            parseFloat(o.Qty),
		LimitPrice:     parseFloat(o.LimitPrice),
		Status:         broker.OrderStatus(o.Status),
		FilledQty:      parseFloat(o.FilledQty),
		FilledAvgPrice: parseFloat(o.FilledAvgPrice),
		SubmittedAt:    o.SubmittedAt,
	}
	if o.FilledAt != nil {
		order.FilledAt = *o.FilledAt
	}
	return order
}

type apiClock struct {
	Timestamp time.Time `json:"timestamp"`
	IsOpen    bool      `json:"is_open"`
	NextOpen  time.Time `json:"next_open"`
	NextClose time.Time `json:"next_close"`
}
