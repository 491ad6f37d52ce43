// Package balancecache mirrors derived ledger balances in redis for cheap
// reads. The cache is never authoritative: every write path invalidates it and
// the reconciliation job recomputes it from the ledger.
package balancecache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/creditrail/creditrail/internal/config"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const defaultTTL = 10 * time.Minute

type Cache struct {
	client *redis.Client
	log    *zap.Logger
	ttl    time.Duration
}

var Module = fx.Provide(New)

// New returns nil when no redis address is configured; callers treat a nil
// cache as a no-op.
func New(cfg config.Config, log *zap.Logger) *Cache {
	if cfg.RedisAddr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	return &Cache{
		client: client,
		log:    log.Named("balancecache"),
		ttl:    defaultTTL,
	}
}

func key(userID snowflake.ID) string {
	return fmt.Sprintf("balance:%s", userID.String())
}

// Get returns (balance, true) on a cache hit. Misses and redis failures both
// report false; the caller falls back to the ledger.
func (c *Cache) Get(ctx context.Context, userID snowflake.ID) (int64, bool) {
	if c == nil {
		return 0, false
	}
	raw, err := c.client.Get(ctx, key(userID)).Result()
	if err != nil {
		if err != redis.Nil {
			c.log.Debug("balance cache read failed", zap.Error(err))
		}
		return 0, false
	}
	balance, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return balance, true
}

func (c *Cache) Set(ctx context.Context, userID snowflake.ID, balance int64) {
	if c == nil {
		return
	}
	if err := c.client.Set(ctx, key(userID), strconv.FormatInt(balance, 10), c.ttl).Err(); err != nil {
		c.log.Debug("balance cache write failed", zap.Error(err))
	}
}

func (c *Cache) Invalidate(ctx context.Context, userID snowflake.ID) {
	if c == nil {
		return
	}
	if err := c.client.Del(ctx, key(userID)).Err(); err != nil {
		c.log.Debug("balance cache invalidation failed", zap.Error(err))
	}
}
