package market

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/go-redis/redismock/v8"
)

func TestMemoryQuoteCache(t *testing.T) {
	ctx := context.Background()
	cache := NewMemoryQuoteCache()

	base := time.Date(2025, 3, 10, 20, 0, 0, 0, time.UTC)
	current := base
	cache.now = func() time.Time { return current }

	quote := Quote{Symbol: "AAPL", Price: 187.32, Timestamp: base}
	cache.SetQuote(ctx, quote, 30*time.Second)

	t.Run("hit before expiry", func(t *testing.T) {
		current = base.Add(29 * time.Second)
		got, ok := cache.GetQuote(ctx, "AAPL")
		if !ok {
			t.Fatal("expected cache hit")
		}
		if got.Price != 187.32 {
			t.Errorf("expected price 187.32, got %v", got.Price)
		}
	})

	t.Run("miss after expiry", func(t *testing.T) {
		current = base.Add(31 * time.Second)
		if _, ok := cache.GetQuote(ctx, "AAPL"); ok {
			t.Error("expected expired entry to miss")
		}
		// The expired entry is evicted, so a rewind cannot revive it.
		current = base
		if _, ok := cache.GetQuote(ctx, "AAPL"); ok {
			t.Error("expected evicted entry to stay gone")
		}
	})

	t.Run("unknown symbol misses", func(t *testing.T) {
		if _, ok := cache.GetQuote(ctx, "MSFT"); ok {
			t.Error("expected miss for unknown symbol")
		}
	})
}

func TestRedisQuoteCache(t *testing.T) {
	ctx := context.Background()

	quote := Quote{
		Symbol:    "AAPL",
		Price:     187.32,
		HasSpread: true,
		SpreadPct: 0.0012,
		Timestamp: time.Date(2025, 3, 10, 20, 6, 0, 0, time.UTC),
	}
	payload, err := json.Marshal(quote)
	if err != nil {
		t.Fatalf("marshal quote: %v", err)
	}

	t.Run("set writes with ttl", func(t *testing.T) {
		db, mock := redismock.NewClientMock()
		cache := NewRedisQuoteCacheFromClient(db)

		mock.ExpectSet("nightfade:quote:AAPL", payload, 30*time.Second).SetVal("OK")
		cache.SetQuote(ctx, quote, 30*time.Second)

		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("redis expectations not met: %v", err)
		}
	})

	t.Run("get returns stored quote", func(t *testing.T) {
		db, mock := redismock.NewClientMock()
		cache := NewRedisQuoteCacheFromClient(db)

		mock.ExpectGet("nightfade:quote:AAPL").SetVal(string(payload))

		got, ok := cache.GetQuote(ctx, "AAPL")
		if !ok {
			t.Fatal("expected cache hit")
		}
		if got.Price != 187.32 || !got.HasSpread || got.SpreadPct != 0.0012 {
			t.Errorf("unexpected quote: %+v", got)
		}
		if !got.Timestamp.Equal(quote.Timestamp) {
			t.Errorf("expected timestamp %v, got %v", quote.Timestamp, got.Timestamp)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("redis expectations not met: %v", err)
		}
	})

	t.Run("miss on redis nil", func(t *testing.T) {
		db, mock := redismock.NewClientMock()
		cache := NewRedisQuoteCacheFromClient(db)

		mock.ExpectGet("nightfade:quote:MSFT").RedisNil()

		if _, ok := cache.GetQuote(ctx, "MSFT"); ok {
			t.Error("expected miss on redis nil")
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("redis expectations not met: %v", err)
		}
	})

	t.Run("miss on redis error", func(t *testing.T) {
		db, mock := redismock.NewClientMock()
		cache := NewRedisQuoteCacheFromClient(db)

		mock.ExpectGet("nightfade:quote:AAPL").SetErr(redis.TxFailedErr)

		if _, ok := cache.GetQuote(ctx, "AAPL"); ok {
			t.Error("expected miss when redis errors")
		}
	})

	t.Run("miss on corrupt payload", func(t *testing.T) {
		db, mock := redismock.NewClientMock()
		cache := NewRedisQuoteCacheFromClient(db)

		mock.ExpectGet("nightfade:quote:AAPL").SetVal("{not json")

		if _, ok := cache.GetQuote(ctx, "AAPL"); ok {
			t.Error("expected miss on corrupt payload")
		}
	})
}
