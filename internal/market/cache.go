package market

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"
)

const quoteKeyPrefix = "nightfade:quote:"

// QuoteCache holds recent quotes so status queries and repeated reads
// within a poll interval do not spend provider rate budget. Writes are
// best effort: a cache outage degrades to more provider calls, never
// to an error the session has to handle.
type QuoteCache interface {
	GetQuote(ctx context.Context, symbol string) (Quote, bool)
	SetQuote(ctx context.Context, quote Quote, ttl time.Duration)
	Close() error
}

// RedisQuoteCache shares quotes across processes, letting a status CLI
// read prices without its own provider credentials.
type RedisQuoteCache struct {
	client *redis.Client
}

// NewRedisQuoteCache connects to Redis with conservative pool and
// retry settings.
func NewRedisQuoteCache(addr, password string, db int) *RedisQuoteCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,

		PoolSize:     10,
		MinIdleConns: 2,

		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,

		MaxRetries:      3,
		MinRetryBackoff: 100 * time.Millisecond,
		MaxRetryBackoff: 500 * time.Millisecond,
	})
	return &RedisQuoteCache{client: client}
}

// NewRedisQuoteCacheFromClient wraps an existing client.
func NewRedisQuoteCacheFromClient(client *redis.Client) *RedisQuoteCache {
	return &RedisQuoteCache{client: client}
}

func (c *RedisQuoteCache) GetQuote(ctx context.Context, symbol string) (Quote, bool) {
	raw, err := c.client.Get(ctx, quoteKeyPrefix+symbol).Result()
	if err != nil {
		if err != redis.Nil {
			log.Debug().Err(err).Str("symbol", symbol).Msg("quote cache read failed")
		}
		return Quote{}, false
	}
	var quote Quote
	if err := json.Unmarshal([]byte(raw), &quote); err != nil {
		return Quote{}, false
	}
	return quote, true
}

func (c *RedisQuoteCache) SetQuote(ctx context.Context, quote Quote, ttl time.Duration) {
	data, err := json.Marshal(quote)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, quoteKeyPrefix+quote.Symbol, data, ttl).Err(); err != nil {
		log.Debug().Err(err).Str("symbol", quote.Symbol).Msg("quote cache write failed")
	}
}

func (c *RedisQuoteCache) Close() error {
	return c.client.Close()
}

// MemoryQuoteCache is the in-process default when Redis is not
// configured.
type MemoryQuoteCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	quote     Quote
	expiresAt time.Time
}

// NewMemoryQuoteCache creates an empty in-process cache.
func NewMemoryQuoteCache() *MemoryQuoteCache {
	return &MemoryQuoteCache{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (c *MemoryQuoteCache) GetQuote(ctx context.Context, symbol string) (Quote, bool) {
	c.mu.RLock()
	entry, ok := c.entries[symbol]
	c.mu.RUnlock()
	if !ok {
		return Quote{}, false
	}
	if c.now().After(entry.expiresAt) {
		c.mu.Lock()
		delete(c.entries, symbol)
		c.mu.Unlock()
		return Quote{}, false
	}
	return entry.quote, true
}

func (c *MemoryQuoteCache) SetQuote(ctx context.Context, quote Quote, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[quote.Symbol] = memoryEntry{
		quote:     quote,
		expiresAt: c.now().Add(ttl),
	}
}

func (c *MemoryQuoteCache) Close() error { return nil }
