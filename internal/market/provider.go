// Package market fetches equity prices from external data sources and
// hides the primary/fallback selection behind a single facade. Callers
// see a best-effort quote or an error, never which source produced it.
package market

import (
	"context"
	"errors"
	"time"
)

// ErrNoData is returned when every configured provider failed or
// returned an empty result for a request.
var ErrNoData = errors.New("market: no provider returned data")

// Quote is one symbol's observation. HasSpread/HasVolume stay false
// when the source does not publish microstructure (the CSV fallback
// only carries delayed prices); consumers treat those fields as
// unknown rather than zero.
type Quote struct {
	Symbol       string    `json:"symbol"`
	Price        float64   `json:"price"`
	HasSpread    bool      `json:"has_spread"`
	SpreadPct    float64   `json:"spread_pct"`
	HasVolume    bool      `json:"has_volume"`
	RecentVolume int64     `json:"recent_volume"`
	Timestamp    time.Time `json:"timestamp"`
}

// Provider is a single upstream data source. Batch methods return a
// map keyed by symbol; a symbol the source cannot price is simply
// absent from the map. An empty map is treated as a provider failure
// by the chain so a half-dead source still trips its breaker.
type Provider interface {
	Name() string

	// LatestQuotes returns the freshest trade price per symbol.
	LatestQuotes(ctx context.Context, symbols []string) (map[string]Quote, error)

	// Snapshots returns price plus bid/ask spread and recent volume
	// where the source publishes them.
	Snapshots(ctx context.Context, symbols []string) (map[string]Quote, error)

	// OfficialCloses returns the regular-session close per symbol for
	// the given trading day ("2006-01-02"). Closes belonging to a
	// different day are omitted, not substituted.
	OfficialCloses(ctx context.Context, symbols []string, date string) (map[string]float64, error)
}
