package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// EmbeddingCache handles Redis-based caching of cleaned-text embeddings
type EmbeddingCache struct {
	client *redis.Client
	config *Config
	logger *zap.Logger
	hits   atomic.Int64
	misses atomic.Int64
}

// NewEmbeddingCache creates a new Redis-based embedding cache
func NewEmbeddingCache(config *Config, logger *zap.Logger) (*EmbeddingCache, error) {
	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	opts.PoolSize = config.MaxConnections
	opts.MinIdleConns = config.MinIdleConns
	opts.MaxConnAge = config.ConnMaxLifetime

	cache := &EmbeddingCache{
		client: redis.NewClient(opts),
		config: config,
		logger: logger,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := cache.client.Ping(ctx).Err(); err != nil {
		_ = cache.client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Embedding cache initialized successfully",
		zap.String("redis_url", maskRedisURL(config.RedisURL)),
		zap.Int("max_connections", config.MaxConnections),
		zap.Duration("default_ttl", config.DefaultTTL))

	return cache, nil
}

// Get returns the cached embedding for a cleaned text. Lookup failures count as misses.
func (ec *EmbeddingCache) Get(ctx context.Context, text string) ([]float32, bool) {
	key := KeyFor(ec.config.KeyPrefix, text)

	data, err := ec.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		ec.misses.Add(1)
		ec.logger.Debug("Cache miss", zap.String("key", key))
		return nil, false
	} else if err != nil {
		ec.misses.Add(1)
		ec.logger.Error("Cache lookup failed", zap.Error(err))
		return nil, false
	}

	var cached CachedEmbedding
	if err := json.Unmarshal(data, &cached); err != nil {
		ec.misses.Add(1)
		ec.logger.Error("Failed to unmarshal cached embedding", zap.Error(err))
		ec.client.Del(ctx, key)
		return nil, false
	}

	ec.hits.Add(1)
	ec.logger.Debug("Cache hit", zap.String("key", key), zap.Int("dimensions", cached.Dimensions))
	return cached.Embedding, true
}

// Set caches an embedding for a cleaned text with the default TTL
func (ec *EmbeddingCache) Set(ctx context.Context, text string, embedding []float32, serviceType string) error {
	key := KeyFor(ec.config.KeyPrefix, text)

	data, err := json.Marshal(CachedEmbedding{
		Embedding:   embedding,
		ServiceType: serviceType,
		Dimensions:  len(embedding),
		CachedAt:    time.Now(),
		TTL:         int64(ec.config.DefaultTTL.Seconds()),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal embedding for caching: %w", err)
	}

	if err := ec.client.Set(ctx, key, data, ec.config.DefaultTTL).Err(); err != nil {
		ec.logger.Error("Failed to cache embedding", zap.Error(err))
		return fmt.Errorf("failed to cache embedding: %w", err)
	}
	return nil
}

// GetStats returns cache performance statistics
func (ec *EmbeddingCache) GetStats(ctx context.Context) (*CacheStats, error) {
	info, err := ec.client.Info(ctx, "memory").Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get Redis info: %w", err)
	}

	stats := &CacheStats{
		Hits:        ec.hits.Load(),
		Misses:      ec.misses.Load(),
		MemoryUsage: parseUsedMemory(info),
	}
	if total := stats.Hits + stats.Misses; total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total) * 100
	}

	if keys, err := ec.client.DBSize(ctx).Result(); err == nil {
		stats.TotalKeys = keys
	}
	return stats, nil
}

// Clear removes all cached embeddings under the configured prefix
func (ec *EmbeddingCache) Clear(ctx context.Context) error {
	iter := ec.client.Scan(ctx, 0, ec.config.KeyPrefix+":emb:*", 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan cache keys: %w", err)
	}

	const batchSize = 100
	for i := 0; i < len(keys); i += batchSize {
		end := min(i+batchSize, len(keys))
		if err := ec.client.Del(ctx, keys[i:end]...).Err(); err != nil {
			return fmt.Errorf("failed to delete cache keys: %w", err)
		}
	}

	ec.logger.Info("Cache cleared", zap.Int("deleted_keys", len(keys)))
	return nil
}

// Close closes the Redis connection
func (ec *EmbeddingCache) Close() error {
	if ec.client != nil {
		return ec.client.Close()
	}
	return nil
}

// KeyFor builds the cache key for a cleaned text: prefix:emb:<first 16 hex chars of sha256>
func KeyFor(prefix, text string) string {
	sum := sha256.Sum256([]byte(text))
	return fmt.Sprintf("%s:emb:%s", prefix, hex.EncodeToString(sum[:])[:16])
}

func parseUsedMemory(info string) int64 {
	for _, line := range strings.Split(info, "\r\n") {
		if memStr, ok := strings.CutPrefix(line, "used_memory:"); ok {
			if mem, err := strconv.ParseInt(memStr, 10, 64); err == nil {
				return mem
			}
		}
	}
	return 0
}

// maskRedisURL masks the password in a Redis URL for logging
func maskRedisURL(url string) string {
	at := strings.LastIndex(url, "@")
	if at < 0 {
		return url
	}
	userPart := url[:at]
	colon := strings.LastIndex(userPart, ":")
	if colon < 0 || !strings.Contains(userPart[:colon], "//") {
		return url
	}
	return userPart[:colon+1] + "***" + url[at:]
}
