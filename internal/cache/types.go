package cache

import (
	"time"

	"github.com/raaihank/mail-sentinel/internal/config"
)

// CachedEmbedding represents an embedding stored for a cleaned email body
type CachedEmbedding struct {
	Embedding   []float32 `json:"embedding"`
	ServiceType string    `json:"service_type"`
	Dimensions  int       `json:"dimensions"`
	CachedAt    time.Time `json:"cached_at"`
	TTL         int64     `json:"ttl"`
}

// CacheStats represents cache performance statistics
type CacheStats struct {
	Hits        int64   `json:"hits"`
	Misses      int64   `json:"misses"`
	HitRate     float64 `json:"hit_rate"`
	TotalKeys   int64   `json:"total_keys"`
	MemoryUsage int64   `json:"memory_usage_bytes"`
}

// Config contains cache configuration
type Config struct {
	RedisURL        string
	MaxConnections  int
	MinIdleConns    int
	ConnMaxLifetime time.Duration
	DefaultTTL      time.Duration
	KeyPrefix       string
}

// ConfigFrom maps the application cache section onto a cache Config
func ConfigFrom(cfg config.CacheConfig) *Config {
	return &Config{
		RedisURL:        cfg.RedisURL,
		MaxConnections:  cfg.MaxConnections,
		MinIdleConns:    cfg.MinIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		DefaultTTL:      cfg.DefaultTTL,
		KeyPrefix:       cfg.KeyPrefix,
	}
}
