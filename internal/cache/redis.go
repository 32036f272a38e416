package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/raaihank/text-anonymizer/internal/config"
	"github.com/raaihank/text-anonymizer/internal/entity"
	"github.com/raaihank/text-anonymizer/internal/logger"
)

// DetectionCache memoizes semantic detection results in Redis. Redis
// failures are logged and the wrapped detector is used instead.
type DetectionCache struct {
	client *redis.Client
	inner  Detector
	prefix string
	ttl    time.Duration
	logger *logger.Logger

	hits   int64
	misses int64
	errors int64
}

// NewDetectionCache connects to Redis and wraps inner
func NewDetectionCache(cfg config.CacheConfig, inner Detector, log *logger.Logger) (*DetectionCache, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	opts.PoolSize = cfg.MaxConnections
	opts.MinIdleConns = cfg.MinIdleConns

	c := newDetectionCache(redis.NewClient(opts), cfg, inner, log)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := c.client.Ping(ctx).Err(); err != nil {
		_ = c.client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.Info("Detection cache initialized",
		zap.String("redis_url", maskRedisURL(cfg.RedisURL)),
		zap.Int("max_connections", cfg.MaxConnections),
		zap.Duration("default_ttl", cfg.DefaultTTL),
	)

	return c, nil
}

func newDetectionCache(client *redis.Client, cfg config.CacheConfig, inner Detector, log *logger.Logger) *DetectionCache {
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "anonymizer"
	}
	return &DetectionCache{
		client: client,
		inner:  inner,
		prefix: prefix,
		ttl:    cfg.DefaultTTL,
		logger: log,
	}
}

// Languages delegates to the wrapped detector
func (c *DetectionCache) Languages() []string {
	return c.inner.Languages()
}

// Detect returns the cached result for (text, lang) or computes and stores it
func (c *DetectionCache) Detect(ctx context.Context, text, lang string) *entity.Set {
	key := c.Key(text, lang)

	data, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == redis.Nil:
		atomic.AddInt64(&c.misses, 1)
	case err != nil:
		atomic.AddInt64(&c.errors, 1)
		c.logger.Warn("Cache lookup failed", zap.Error(err))
	default:
		cached := entity.NewSet()
		if err := cached.UnmarshalJSON(data); err == nil {
			atomic.AddInt64(&c.hits, 1)
			c.logger.Debug("Cache hit", zap.String("key", key), zap.Int("entities", cached.Len()))
			return cached
		}
		c.logger.Error("Failed to unmarshal cached entities", zap.String("key", key))
		c.client.Del(ctx, key)
	}

	result := c.inner.Detect(ctx, text, lang)
	c.store(ctx, key, result)
	return result
}

func (c *DetectionCache) store(ctx context.Context, key string, entities *entity.Set) {
	data, err := entities.MarshalJSON()
	if err != nil {
		c.logger.Error("Failed to marshal entities for caching", zap.Error(err))
		return
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		atomic.AddInt64(&c.errors, 1)
		c.logger.Warn("Failed to cache entities", zap.Error(err))
	}
}

// Key derives the cache key for text under lang
func (c *DetectionCache) Key(text, lang string) string {
	sum := sha256.Sum256([]byte(lang + "\x00" + text))
	return fmt.Sprintf("%s:sem:%s:%s", c.prefix, lang, hex.EncodeToString(sum[:])[:16])
}

// GetStats returns cache performance statistics
func (c *DetectionCache) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{
		Hits:   atomic.LoadInt64(&c.hits),
		Misses: atomic.LoadInt64(&c.misses),
		Errors: atomic.LoadInt64(&c.errors),
	}
	if total := stats.Hits + stats.Misses; total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total) * 100
	}

	info, err := c.client.Info(ctx, "memory").Result()
	if err != nil {
		return stats, fmt.Errorf("failed to get Redis info: %w", err)
	}
	for _, line := range strings.Split(info, "\r\n") {
		if memStr := strings.TrimPrefix(line, "used_memory:"); memStr != line {
			if mem, err := strconv.ParseInt(memStr, 10, 64); err == nil {
				stats.MemoryUsage = mem
			}
		}
	}

	if keys, err := c.client.DBSize(ctx).Result(); err == nil {
		stats.TotalKeys = keys
	}

	return stats, nil
}

// Clear removes every cached detection result
func (c *DetectionCache) Clear(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, c.prefix+":sem:*", 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan cache keys: %w", err)
	}

	const batchSize = 100
	for i := 0; i < len(keys); i += batchSize {
		end := i + batchSize
		if end > len(keys) {
			end = len(keys)
		}
		if err := c.client.Del(ctx, keys[i:end]...).Err(); err != nil {
			return fmt.Errorf("failed to delete cache keys: %w", err)
		}
	}

	c.logger.Info("Cache cleared", zap.Int("deleted_keys", len(keys)))
	return nil
}

// Close closes the Redis connection
func (c *DetectionCache) Close() error {
	return c.client.Close()
}

// maskRedisURL hides the password of a Redis URL for logging
func maskRedisURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "invalid-url"
	}
	return u.Redacted()
}
