// File: internal/cache/candles.go
// ============================================
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"

	"github.com/ixarek/o3cripto/pkg/types"
)

const keyPrefix = "o3cripto:candles"

// Source is the market data accessor being cached.
type Source interface {
	GetCandles(ctx context.Context, symbol string, intervalMinutes, limit int) ([]types.Candle, error)
	GetLastPrice(ctx context.Context, symbol string) (float64, error)
	GetInstrumentMeta(ctx context.Context, symbol string) (types.InstrumentMeta, error)
}

type Config struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

func ConfigFromTypes(cfg *types.Config) Config {
	return Config{
		Addr:     cfg.Cache.RedisAddr,
		Password: cfg.Cache.Password,
		DB:       cfg.Cache.DB,
		TTL:      time.Duration(cfg.Cache.TTLSecs) * time.Second,
	}
}

// CandleCache keeps recent candle windows in Redis. Prices and instrument
// metadata pass straight through. Redis failures degrade to the source.
type CandleCache struct {
	client *goredis.Client
	source Source
	ttl    time.Duration
	log    zerolog.Logger
}

// New connects to Redis and pings it.
func New(cfg Config, source Source, log zerolog.Logger) (*CandleCache, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Info().Str("addr", cfg.Addr).Dur("ttl", cfg.TTL).Msg("candle cache connected")
	return NewWithClient(client, source, cfg.TTL, log), nil
}

func NewWithClient(client *goredis.Client, source Source, ttl time.Duration, log zerolog.Logger) *CandleCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &CandleCache{
		client: client,
		source: source,
		ttl:    ttl,
		log:    log.With().Str("component", "candle-cache").Logger(),
	}
}

func Key(symbol string, intervalMinutes, limit int) string {
	return fmt.Sprintf("%s:%s:%d:%d", keyPrefix, symbol, intervalMinutes, limit)
}

func (c *CandleCache) GetCandles(ctx context.Context, symbol string, intervalMinutes, limit int) ([]types.Candle, error) {
	key := Key(symbol, intervalMinutes, limit)

	raw, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var candles []types.Candle
		if jerr := json.Unmarshal(raw, &candles); jerr == nil {
			return candles, nil
		}
		c.log.Warn().Str("key", key).Msg("corrupt cache entry, refetching")
	case errors.Is(err, goredis.Nil):
	default:
		c.log.Warn().Err(err).Str("key", key).Msg("cache read failed")
	}

	candles, err := c.source.GetCandles(ctx, symbol, intervalMinutes, limit)
	if err != nil {
		return nil, err
	}
	if len(candles) == 0 {
		return candles, nil
	}

	data, err := json.Marshal(candles)
	if err != nil {
		return candles, nil
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("cache write failed")
	}
	return candles, nil
}

func (c *CandleCache) GetLastPrice(ctx context.Context, symbol string) (float64, error) {
	return c.source.GetLastPrice(ctx, symbol)
}

func (c *CandleCache) GetInstrumentMeta(ctx context.Context, symbol string) (types.InstrumentMeta, error) {
	return c.source.GetInstrumentMeta(ctx, symbol)
}

func (c *CandleCache) Close() error {
	return c.client.Close()
}
