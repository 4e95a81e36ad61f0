package market

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// ChainConfig tunes the provider chain.
type ChainConfig struct {
	RPS      float64
	Burst    int
	Breaker  BreakerConfig
	QuoteTTL time.Duration
}

// Chain tries each provider in priority order behind its own rate
// limit and circuit breaker, caching whatever it fetches. An open
// breaker fails instantly, so a dead primary costs nothing and the
// fallback answers within the same poll tick.
type Chain struct {
	providers []Provider
	limiter   *Limiter
	breakers  *breakerPool
	cache     QuoteCache
	quoteTTL  time.Duration
}

// NewChain assembles the chain. Providers are consulted in argument
// order; a nil cache falls back to the in-process one.
func NewChain(cfg ChainConfig, cache QuoteCache, providers ...Provider) *Chain {
	if cache == nil {
		cache = NewMemoryQuoteCache()
	}
	ttl := cfg.QuoteTTL
	if ttl == 0 {
		ttl = 30 * time.Second
	}
	return &Chain{
		providers: providers,
		limiter:   NewLimiter(cfg.RPS, cfg.Burst),
		breakers:  newBreakerPool(cfg.Breaker),
		cache:     cache,
		quoteTTL:  ttl,
	}
}

// LatestQuotes returns the freshest price per symbol from the first
// healthy provider.
func (c *Chain) LatestQuotes(ctx context.Context, symbols []string) (map[string]Quote, error) {
	result, err := c.eachProvider(ctx, "latest quotes", func(p Provider) (any, int, error) {
		quotes, err := p.LatestQuotes(ctx, symbols)
		return quotes, len(quotes), err
	})
	if err != nil {
		return nil, err
	}
	quotes := result.(map[string]Quote)
	c.storeQuotes(ctx, quotes)
	return quotes, nil
}

// Snapshots returns price plus whatever microstructure the answering
// provider publishes.
func (c *Chain) Snapshots(ctx context.Context, symbols []string) (map[string]Quote, error) {
	result, err := c.eachProvider(ctx, "snapshots", func(p Provider) (any, int, error) {
		quotes, err := p.Snapshots(ctx, symbols)
		return quotes, len(quotes), err
	})
	if err != nil {
		return nil, err
	}
	quotes := result.(map[string]Quote)
	c.storeQuotes(ctx, quotes)
	return quotes, nil
}

// OfficialCloses returns regular-session closes for the given trading
// day. Not cached: it runs once per session.
func (c *Chain) OfficialCloses(ctx context.Context, symbols []string, date string) (map[string]float64, error) {
	result, err := c.eachProvider(ctx, "official closes", func(p Provider) (any, int, error) {
		closes, err := p.OfficialCloses(ctx, symbols, date)
		return closes, len(closes), err
	})
	if err != nil {
		return nil, err
	}
	return result.(map[string]float64), nil
}

// LatestQuote serves a single symbol, from cache when fresh enough.
func (c *Chain) LatestQuote(ctx context.Context, symbol string) (Quote, error) {
	if quote, ok := c.cache.GetQuote(ctx, symbol); ok {
		return quote, nil
	}
	quotes, err := c.LatestQuotes(ctx, []string{symbol})
	if err != nil {
		return Quote{}, err
	}
	quote, ok := quotes[symbol]
	if !ok {
		return Quote{}, fmt.Errorf("%w: %s", ErrNoData, symbol)
	}
	return quote, nil
}

// ProviderStates reports each provider's circuit state for status
// surfaces.
func (c *Chain) ProviderStates() map[string]string {
	return c.breakers.states()
}

// Close releases the cache connection.
func (c *Chain) Close() error {
	return c.cache.Close()
}

func (c *Chain) eachProvider(ctx context.Context, op string, call func(Provider) (any, int, error)) (any, error) {
	var lastErr error
	for _, provider := range c.providers {
		name := provider.Name()
		if err := c.limiter.Wait(ctx, name); err != nil {
			return nil, fmt.Errorf("market: rate limit wait: %w", err)
		}
		result, err := c.breakers.execute(name, func() (any, error) {
			out, n, err := call(provider)
			if err != nil {
				return nil, err
			}
			// An empty result from a live endpoint is a failure:
			// it must trip the breaker, not satisfy the caller.
			if n == 0 {
				return nil, fmt.Errorf("%s: empty %s result", name, op)
			}
			return out, nil
		})
		if err == nil {
			return result, nil
		}
		lastErr = err
		log.Warn().Err(err).Str("provider", name).Str("op", op).Msg("data provider failed, trying next")
	}
	if lastErr != nil {
		return nil, fmt.Errorf("%w: %s: last error: %v", ErrNoData, op, lastErr)
	}
	return nil, fmt.Errorf("%w: %s", ErrNoData, op)
}

func (c *Chain) storeQuotes(ctx context.Context, quotes map[string]Quote) {
	for _, quote := range quotes {
		c.cache.SetQuote(ctx, quote, c.quoteTTL)
	}
}
