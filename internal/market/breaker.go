package market

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
)

// BreakerConfig tunes the per-provider circuit breakers.
type BreakerConfig struct {
	ConsecutiveFailures uint32
	OpenTimeout         time.Duration
}

// DefaultBreakerConfig trips a provider after three consecutive
// failures and probes it again after a minute. On a five-minute manage
// cadence that means one skipped source, not a stalled session.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		ConsecutiveFailures: 3,
		OpenTimeout:         time.Minute,
	}
}

type breakerPool struct {
	mu       sync.RWMutex
	breakers map[string]*gobreaker.CircuitBreaker
	config   BreakerConfig
}

func newBreakerPool(cfg BreakerConfig) *breakerPool {
	if cfg.ConsecutiveFailures == 0 {
		cfg.ConsecutiveFailures = DefaultBreakerConfig().ConsecutiveFailures
	}
	if cfg.OpenTimeout == 0 {
		cfg.OpenTimeout = DefaultBreakerConfig().OpenTimeout
	}
	return &breakerPool{
		breakers: make(map[string]*gobreaker.CircuitBreaker),
		config:   cfg,
	}
}

func (p *breakerPool) get(name string) *gobreaker.CircuitBreaker {
	p.mu.RLock()
	breaker, exists := p.breakers[name]
	p.mu.RUnlock()
	if exists {
		return breaker
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if breaker, exists := p.breakers[name]; exists {
		return breaker
	}

	threshold := p.config.ConsecutiveFailures
	breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     p.config.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("provider", name).
				Str("from", from.String()).Str("to", to.String()).
				Msg("data provider circuit state change")
		},
	})
	p.breakers[name] = breaker
	return breaker
}

func (p *breakerPool) execute(name string, fn func() (any, error)) (any, error) {
	return p.get(name).Execute(fn)
}

// states reports each provider's current circuit state for status
// surfaces.
func (p *breakerPool) states() map[string]string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[string]string, len(p.breakers))
	for name, breaker := range p.breakers {
		out[name] = breaker.State().String()
	}
	return out
}
