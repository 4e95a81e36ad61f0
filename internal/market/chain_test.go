package market

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProvider answers from fixed maps and counts how often it is
// consulted.
type fakeProvider struct {
	name   string
	quotes map[string]Quote
	closes map[string]float64
	err    error
	calls  int
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) LatestQuotes(ctx context.Context, symbols []string) (map[string]Quote, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.quotes, nil
}

func (f *fakeProvider) Snapshots(ctx context.Context, symbols []string) (map[string]Quote, error) {
	return f.LatestQuotes(ctx, symbols)
}

func (f *fakeProvider) OfficialCloses(ctx context.Context, symbols []string, date string) (map[string]float64, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.closes, nil
}

func fastChainConfig() ChainConfig {
	return ChainConfig{
		RPS:      1000,
		Burst:    1000,
		QuoteTTL: time.Minute,
	}
}

func TestChainPrimaryAnswers(t *testing.T) {
	primary := &fakeProvider{name: "primary", quotes: map[string]Quote{
		"AAPL": {Symbol: "AAPL", Price: 187.32},
	}}
	backup := &fakeProvider{name: "backup", quotes: map[string]Quote{
		"AAPL": {Symbol: "AAPL", Price: 187.00},
	}}
	chain := NewChain(fastChainConfig(), nil, primary, backup)

	quotes, err := chain.LatestQuotes(context.Background(), []string{"AAPL"})
	require.NoError(t, err)
	assert.Equal(t, 187.32, quotes["AAPL"].Price)
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 0, backup.calls)
}

func TestChainFallsBackOnError(t *testing.T) {
	primary := &fakeProvider{name: "primary", err: errors.New("boom")}
	backup := &fakeProvider{name: "backup", quotes: map[string]Quote{
		"AAPL": {Symbol: "AAPL", Price: 187.00},
	}}
	chain := NewChain(fastChainConfig(), nil, primary, backup)

	quotes, err := chain.LatestQuotes(context.Background(), []string{"AAPL"})
	require.NoError(t, err)
	assert.Equal(t, 187.00, quotes["AAPL"].Price)
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 1, backup.calls)
}

func TestChainEmptyResultCountsAsFailure(t *testing.T) {
	primary := &fakeProvider{name: "primary", quotes: map[string]Quote{}}
	backup := &fakeProvider{name: "backup", quotes: map[string]Quote{
		"AAPL": {Symbol: "AAPL", Price: 187.00},
	}}
	chain := NewChain(fastChainConfig(), nil, primary, backup)

	quotes, err := chain.LatestQuotes(context.Background(), []string{"AAPL"})
	require.NoError(t, err)
	assert.Equal(t, 187.00, quotes["AAPL"].Price)
	assert.Equal(t, 1, backup.calls)
}

func TestChainAllFailed(t *testing.T) {
	primary := &fakeProvider{name: "primary", err: errors.New("down")}
	backup := &fakeProvider{name: "backup", err: errors.New("also down")}
	chain := NewChain(fastChainConfig(), nil, primary, backup)

	_, err := chain.LatestQuotes(context.Background(), []string{"AAPL"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoData))
}

func TestChainBreakerStopsCallingDeadProvider(t *testing.T) {
	primary := &fakeProvider{name: "primary", err: errors.New("down")}
	backup := &fakeProvider{name: "backup", quotes: map[string]Quote{
		"AAPL": {Symbol: "AAPL", Price: 187.00},
	}}
	cfg := fastChainConfig()
	cfg.Breaker = BreakerConfig{ConsecutiveFailures: 2, OpenTimeout: time.Minute}
	chain := NewChain(cfg, nil, primary, backup)

	for i := 0; i < 3; i++ {
		quotes, err := chain.LatestQuotes(context.Background(), []string{"AAPL"})
		require.NoError(t, err)
		assert.Equal(t, 187.00, quotes["AAPL"].Price)
	}

	// Two failures open the circuit; the third cycle skips the dead
	// primary without touching it.
	assert.Equal(t, 2, primary.calls)
	assert.Equal(t, "open", chain.ProviderStates()["primary"])
}

func TestChainLatestQuoteServedFromCache(t *testing.T) {
	primary := &fakeProvider{name: "primary", quotes: map[string]Quote{
		"AAPL": {Symbol: "AAPL", Price: 187.32},
	}}
	chain := NewChain(fastChainConfig(), nil, primary)

	_, err := chain.LatestQuotes(context.Background(), []string{"AAPL"})
	require.NoError(t, err)

	quote, err := chain.LatestQuote(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 187.32, quote.Price)
	assert.Equal(t, 1, primary.calls)
}

func TestChainOfficialCloses(t *testing.T) {
	primary := &fakeProvider{name: "primary", closes: map[string]float64{
		"AAPL": 227.5,
		"NVDA": 93.41,
	}}
	chain := NewChain(fastChainConfig(), nil, primary)

	closes, err := chain.OfficialCloses(context.Background(), []string{"AAPL", "NVDA"}, "2025-03-10")
	require.NoError(t, err)
	assert.Equal(t, 227.5, closes["AAPL"])
	assert.Equal(t, 93.41, closes["NVDA"])
}
