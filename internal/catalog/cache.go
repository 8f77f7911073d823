// Package catalog caches plan default prices in Redis.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"

	"panel-wallet/internal/config"
	"panel-wallet/internal/model"
)

// unset marks a cached "not configured" answer.
const unset = "-"

// Source is the authoritative price lookup.
type Source interface {
	DefaultPrice(ctx context.Context, key model.PlanKey) (*int64, error)
}

// NewRedisClient connects to Redis and verifies the connection.
func NewRedisClient(ctx context.Context, cfg *config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	log.Info().Str("addr", cfg.Addr).Msg("Connected to Redis")
	return client, nil
}

// Cache is a cache-aside layer in front of Source. Redis failures fall back to
// the source so pricing never depends on cache health.
type Cache struct {
	rdb    *redis.Client
	src    Source
	ttl    time.Duration
	prefix string
}

// NewCache creates a price cache.
func NewCache(rdb *redis.Client, src Source, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Cache{rdb: rdb, src: src, ttl: ttl, prefix: "panel:plan_price:"}
}

func (c *Cache) key(k model.PlanKey) string {
	return c.prefix + string(k)
}

// DefaultPrice returns the cached price, loading it from the source on a miss.
func (c *Cache) DefaultPrice(ctx context.Context, k model.PlanKey) (*int64, error) {
	raw, err := c.rdb.Get(ctx, c.key(k)).Result()
	switch {
	case err == nil:
		if raw == unset {
			return nil, nil
		}
		if v, perr := strconv.ParseInt(raw, 10, 64); perr == nil {
			return &v, nil
		}
		log.Warn().Str("plan_key", string(k)).Str("value", raw).Msg("Discarding malformed cached price")
	case errors.Is(err, redis.Nil):
	default:
		log.Warn().Err(err).Str("plan_key", string(k)).Msg("Price cache read failed")
	}

	price, err := c.src.DefaultPrice(ctx, k)
	if err != nil {
		return nil, err
	}

	value := unset
	if price != nil {
		value = strconv.FormatInt(*price, 10)
	}
	if err := c.rdb.Set(ctx, c.key(k), value, c.ttl).Err(); err != nil {
		log.Warn().Err(err).Str("plan_key", string(k)).Msg("Price cache write failed")
	}

	return price, nil
}

// Invalidate drops the cached price of a plan key.
func (c *Cache) Invalidate(ctx context.Context, k model.PlanKey) error {
	if err := c.rdb.Del(ctx, c.key(k)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate price cache: %w", err)
	}
	return nil
}
