package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadWatchlist(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "watchlist.yaml")
	body := `
symbols:
  - AAPL
  - MSFT
  - BRK.B
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	wl, err := LoadWatchlist(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL", "MSFT", "BRK.B"}, wl.Symbols)
	assert.True(t, wl.Contains("MSFT"))
	assert.False(t, wl.Contains("TSLA"))
}

func TestWatchlistValidate(t *testing.T) {
	tests := []struct {
		name    string
		symbols []string
		wantErr string
	}{
		{"empty_list", nil, "watchlist is empty"},
		{"empty_symbol", []string{"AAPL", ""}, "empty symbol"},
		{"lowercase", []string{"aapl"}, "invalid character"},
		{"too_long", []string{"ABCDEFG"}, "longer than 6"},
		{"duplicate", []string{"AAPL", "MSFT", "AAPL"}, "duplicate symbol AAPL"},
		{"digits", []string{"AB1"}, "invalid character"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wl := &Watchlist{Symbols: tt.symbols}
			err := wl.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	t.Run("valid", func(t *testing.T) {
		wl := &Watchlist{Symbols: []string{"AAPL", "MSFT", "NVDA"}}
		assert.NoError(t, wl.Validate())
	})
}
