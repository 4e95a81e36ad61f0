package market

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// Limiter applies a token bucket per provider so fallback traffic
// never spends the primary's request budget.
type Limiter struct {
	mu       sync.RWMutex
	limiters map[string]*rate.Limiter
	rps      float64
	burst    int
}

// NewLimiter creates a limiter pool; each provider gets its own bucket
// with the given refill rate and burst capacity.
func NewLimiter(rps float64, burst int) *Limiter {
	if rps <= 0 {
		rps = 1
	}
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		limiters: make(map[string]*rate.Limiter),
		rps:      rps,
		burst:    burst,
	}
}

func (l *Limiter) get(name string) *rate.Limiter {
	l.mu.RLock()
	limiter, exists := l.limiters[name]
	l.mu.RUnlock()
	if exists {
		return limiter
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if limiter, exists := l.limiters[name]; exists {
		return limiter
	}
	limiter = rate.NewLimiter(rate.Limit(l.rps), l.burst)
	l.limiters[name] = limiter
	return limiter
}

// Wait blocks until the provider's bucket grants a token or the
// context is cancelled.
func (l *Limiter) Wait(ctx context.Context, name string) error {
	return l.get(name).Wait(ctx)
}
