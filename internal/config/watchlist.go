package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Watchlist is the ordered universe of tickers eligible this session.
// Order matters: entries are evaluated and slot-limited in this order,
// which keeps concurrency-capped entry selection deterministic.
type Watchlist struct {
	Symbols []string `yaml:"symbols"`
}

// LoadWatchlist reads and validates the watchlist file. Symbols must be
// plain uppercase tickers; duplicates and empty entries are Boot errors,
// not mid-session surprises.
func LoadWatchlist(path string) (*Watchlist, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read watchlist: %w", err)
	}
	var wl Watchlist
	if err := yaml.Unmarshal(b, &wl); err != nil {
		return nil, fmt.Errorf("failed to unmarshal watchlist: %w", err)
	}
	if err := wl.Validate(); err != nil {
		return nil, fmt.Errorf("watchlist validation failed: %w", err)
	}
	return &wl, nil
}

// Validate checks every symbol and rejects duplicates.
func (w *Watchlist) Validate() error {
	if len(w.Symbols) == 0 {
		return fmt.Errorf("watchlist is empty")
	}
	seen := make(map[string]bool, len(w.Symbols))
	for i, sym := range w.Symbols {
		if err := validateSymbol(sym); err != nil {
			return fmt.Errorf("symbol %d (%q): %w", i, sym, err)
		}
		if seen[sym] {
			return fmt.Errorf("duplicate symbol %s", sym)
		}
		seen[sym] = true
	}
	return nil
}

// Contains reports whether sym is in the watchlist.
func (w *Watchlist) Contains(sym string) bool {
	for _, s := range w.Symbols {
		if s == sym {
			return true
		}
	}
	return false
}

func validateSymbol(sym string) error {
	if sym == "" {
		return fmt.Errorf("empty symbol")
	}
	if len(sym) > 6 {
		return fmt.Errorf("symbol longer than 6 characters")
	}
	for _, r := range sym {
		if (r < 'A' || r > 'Z') && r != '.' {
			return fmt.Errorf("invalid character %q", r)
		}
	}
	return nil
}
