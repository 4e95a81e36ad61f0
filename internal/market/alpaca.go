package market

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	defaultAlpacaDataURL = "https://data.alpaca.markets"

	// Alpaca accepts long symbol lists but oversized query strings get
	// rejected by intermediaries, so batches stay bounded.
	alpacaBatchSize = 100
)

// AlpacaConfig configures the Alpaca market-data source.
type AlpacaConfig struct {
	APIKey    string
	APISecret string
	BaseURL   string // override for tests
	Feed      string // "iex" or "sip"
	Timeout   time.Duration
}

// AlpacaData serves quotes and snapshots from the Alpaca data API. It
// shares credentials with the trading API but talks to a different
// host.
type AlpacaData struct {
	baseURL string
	key     string
	secret  string
	feed    string
	http    *http.Client
}

// NewAlpacaData creates the primary market-data provider.
func NewAlpacaData(cfg AlpacaConfig) *AlpacaData {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultAlpacaDataURL
	}
	feed := cfg.Feed
	if feed == "" {
		feed = "iex"
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &AlpacaData{
		baseURL: strings.TrimRight(baseURL, "/"),
		key:     cfg.APIKey,
		secret:  cfg.APISecret,
		feed:    feed,
		http:    &http.Client{Timeout: timeout},
	}
}

func (a *AlpacaData) Name() string { return "alpaca" }

// LatestQuotes fetches the most recent trade print per symbol. After
// hours the trade tape is the only continuously updating price, so
// this is the scan-phase source.
func (a *AlpacaData) LatestQuotes(ctx context.Context, symbols []string) (map[string]Quote, error) {
	quotes := make(map[string]Quote, len(symbols))
	for _, chunk := range chunkSymbols(symbols, alpacaBatchSize) {
		var resp latestTradesResponse
		if err := a.get(ctx, "/v2/stocks/trades/latest", chunk, &resp); err != nil {
			return nil, err
		}
		for symbol, trade := range resp.Trades {
			if trade.Price <= 0 {
				continue
			}
			quotes[symbol] = Quote{
				Symbol:    symbol,
				Price:     trade.Price,
				Timestamp: trade.Timestamp,
			}
		}
	}
	return quotes, nil
}

// Snapshots fetches trade price plus quote spread and last-minute
// volume, which the overnight exit rules use to judge liquidity.
func (a *AlpacaData) Snapshots(ctx context.Context, symbols []string) (map[string]Quote, error) {
	quotes := make(map[string]Quote, len(symbols))
	for _, chunk := range chunkSymbols(symbols, alpacaBatchSize) {
		resp := make(map[string]apiSnapshot, len(chunk))
		if err := a.get(ctx, "/v2/stocks/snapshots", chunk, &resp); err != nil {
			return nil, err
		}
		for symbol, snap := range resp {
			if snap.LatestTrade == nil || snap.LatestTrade.Price <= 0 {
				continue
			}
			q := Quote{
				Symbol:    symbol,
				Price:     snap.LatestTrade.Price,
				Timestamp: snap.LatestTrade.Timestamp,
			}
			if spread, ok := spreadFraction(snap.LatestQuote); ok {
				q.HasSpread = true
				q.SpreadPct = spread
			}
			if snap.MinuteBar != nil {
				q.HasVolume = true
				q.RecentVolume = snap.MinuteBar.Volume
			}
			quotes[symbol] = q
		}
	}
	return quotes, nil
}

// OfficialCloses reads the daily bar close out of each snapshot. A bar
// stamped with a different trading day is dropped so a stale weekend
// bar can never anchor a session.
func (a *AlpacaData) OfficialCloses(ctx context.Context, symbols []string, date string) (map[string]float64, error) {
	closes := make(map[string]float64, len(symbols))
	for _, chunk := range chunkSymbols(symbols, alpacaBatchSize) {
		resp := make(map[string]apiSnapshot, len(chunk))
		if err := a.get(ctx, "/v2/stocks/snapshots", chunk, &resp); err != nil {
			return nil, err
		}
		for symbol, snap := range resp {
			bar := snap.DailyBar
			if bar == nil || bar.Close <= 0 {
				continue
			}
			if barDate := bar.Timestamp.UTC().Format("2006-01-02"); barDate != date {
				log.Warn().Str("symbol", symbol).Str("bar_date", barDate).Str("want", date).
					Msg("stale daily bar, skipping close")
				continue
			}
			closes[symbol] = bar.Close
		}
	}
	return closes, nil
}

func (a *AlpacaData) get(ctx context.Context, path string, symbols []string, out any) error {
	params := url.Values{}
	params.Set("symbols", strings.Join(symbols, ","))
	params.Set("feed", a.feed)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("alpaca data: build request: %w", err)
	}
	req.Header.Set("APCA-API-KEY-ID", a.key)
	req.Header.Set("APCA-API-SECRET-KEY", a.secret)

	resp, err := a.http.Do(req)
	if err != nil {
		return fmt.Errorf("alpaca data: %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("alpaca data: %s: HTTP %d: %s", path, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("alpaca data: %s: decode: %w", path, err)
	}
	return nil
}

// spreadFraction converts a bid/ask pair into a spread fraction of the
// midpoint. Crossed or one-sided books report unknown rather than a
// nonsense number.
func spreadFraction(q *apiNBBO) (float64, bool) {
	if q == nil || q.BidPrice <= 0 || q.AskPrice <= 0 || q.AskPrice < q.BidPrice {
		return 0, false
	}
	mid := (q.BidPrice + q.AskPrice) / 2
	return (q.AskPrice - q.BidPrice) / mid, true
}

func chunkSymbols(symbols []string, size int) [][]string {
	var chunks [][]string
	for start := 0; start < len(symbols); start += size {
		end := start + size
		if end > len(symbols) {
			end = len(symbols)
		}
		chunks = append(chunks, symbols[start:end])
	}
	return chunks
}

type latestTradesResponse struct {
	Trades map[string]apiTradePrint `json:"trades"`
}

type apiTradePrint struct {
	Timestamp time.Time `json:"t"`
	Price     float64   `json:"p"`
	Size      int64     `json:"s"`
}

type apiNBBO struct {
	Timestamp time.Time `json:"t"`
	BidPrice  float64   `json:"bp"`
	BidSize   int64     `json:"bs"`
	AskPrice  float64   `json:"ap"`
	AskSize   int64     `json:"as"`
}

type apiBar struct {
	Timestamp time.Time `json:"t"`
	Open      float64   `json:"o"`
	High      float64   `json:"h"`
	Low       float64   `json:"l"`
	Close     float64   `json:"c"`
	Volume    int64     `json:"v"`
}

type apiSnapshot struct {
	LatestTrade *apiTradePrint `json:"latestTrade"`
	LatestQuote *apiNBBO       `json:"latestQuote"`
	MinuteBar   *apiBar        `json:"minuteBar"`
	DailyBar    *apiBar        `json:"dailyBar"`
}
