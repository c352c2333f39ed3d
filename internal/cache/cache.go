// Package cache provides the Redis-backed search result cache.
//
// The cache sits in front of the search fan-out: a hit returns the merged
// result set without touching any source. Cache failures never fail a
// search; reads degrade to a miss and writes are best-effort.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/paperscope/discovery-service/internal/config"
	"github.com/paperscope/discovery-service/internal/domain"
)

// DefaultTTL is how long cached result sets live when no TTL is configured.
const DefaultTTL = 15 * time.Minute

// keyPrefix namespaces search result keys in Redis.
const keyPrefix = "search:"

// SearchEntry is the cached form of a merged search result set.
type SearchEntry struct {
	Papers        []*domain.Paper     `json:"papers"`
	TotalResults  int                 `json:"total_results"`
	SourcesUsed   []domain.SourceType `json:"sources_used"`
	SourcesFailed []domain.SourceType `json:"sources_failed,omitempty"`
	CachedAt      time.Time           `json:"cached_at"`
}

// ResultCache stores merged search results in Redis.
type ResultCache struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

// New creates a result cache and verifies connectivity with a ping.
func New(ctx context.Context, cfg *config.RedisConfig, ttl time.Duration, logger zerolog.Logger) (*ResultCache, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("cache: failed to ping redis: %w", err)
	}

	if ttl <= 0 {
		ttl = DefaultTTL
	}

	logger.Info().Str("address", cfg.Address).Dur("ttl", ttl).Msg("result cache connected")

	return &ResultCache{
		rdb:    rdb,
		ttl:    ttl,
		logger: logger,
	}, nil
}

// Key builds the cache key for a query and category.
func Key(query string, category domain.Category) string {
	return keyPrefix + NormalizeQuery(query) + ":" + string(category)
}

// NormalizeQuery lowercases a query and collapses whitespace runs so
// trivially different spellings share a cache entry.
func NormalizeQuery(query string) string {
	return strings.Join(strings.Fields(strings.ToLower(query)), " ")
}

// Get returns the cached entry for the key, or (nil, false) on a miss.
// Redis errors are logged and treated as a miss.
func (c *ResultCache) Get(ctx context.Context, key string) (*SearchEntry, bool) {
	data, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn().Err(err).Str("key", key).Msg("cache read failed, treating as miss")
		}
		return nil, false
	}

	var entry SearchEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("cache entry corrupt, treating as miss")
		return nil, false
	}

	return &entry, true
}

// Set stores the entry under the key with the configured TTL. Write failures
// are logged but never returned; the response has already been served.
func (c *ResultCache) Set(ctx context.Context, key string, entry *SearchEntry) {
	if entry == nil {
		return
	}
	entry.CachedAt = time.Now().UTC()

	data, err := json.Marshal(entry)
	if err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("failed to marshal cache entry")
		return
	}

	if err := c.rdb.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("cache write failed")
	}
}

// Invalidate removes the given keys.
func (c *ResultCache) Invalidate(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return c.rdb.Del(ctx, keys...).Err()
}

// Ping checks the Redis connection.
func (c *ResultCache) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close releases the Redis connection.
func (c *ResultCache) Close() error {
	return c.rdb.Close()
}
