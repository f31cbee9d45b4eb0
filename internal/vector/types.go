package vector

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/raaihank/mail-sentinel/internal/config"
)

// IntentExample represents a labelled cleaned email with its embedding
type IntentExample struct {
	ID            int64     `db:"id" json:"id"`
	Text          string    `db:"text" json:"text"`
	TextHash      string    `db:"text_hash" json:"text_hash"`
	Label         int       `db:"label" json:"label"`
	EmbeddingType string    `db:"embedding_type" json:"embedding_type"`
	Embedding     []float32 `db:"embedding" json:"embedding"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// NewIntentExample builds an example and derives its text hash
func NewIntentExample(text string, label int, embeddingType string, embedding []float32) *IntentExample {
	return &IntentExample{
		Text:          text,
		TextHash:      HashText(text),
		Label:         label,
		EmbeddingType: embeddingType,
		Embedding:     embedding,
	}
}

// HashText returns the hex sha256 of a cleaned text, the store's uniqueness key
func HashText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// StoreStats represents database statistics
type StoreStats struct {
	TotalExamples int64 `json:"total_examples" db:"total"`
	PositiveCount int64 `json:"positive_count" db:"positive"`
	NegativeCount int64 `json:"negative_count" db:"negative"`
}

// BatchInsertResult represents the result of a batch insert operation
type BatchInsertResult struct {
	Inserted   int64         `json:"inserted"`
	Duplicates int64         `json:"duplicates"`
	Duration   time.Duration `json:"duration"`
}

// Config contains database configuration
type Config struct {
	DatabaseURL     string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// ConfigFrom maps the application vector section onto a store Config
func ConfigFrom(cfg config.VectorConfig) *Config {
	return &Config{
		DatabaseURL:     cfg.DatabaseURL,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	}
}

const schema = `
CREATE TABLE IF NOT EXISTS intent_examples (
	id BIGSERIAL PRIMARY KEY,
	text TEXT NOT NULL,
	text_hash CHAR(64) NOT NULL UNIQUE,
	label SMALLINT NOT NULL,
	embedding_type TEXT NOT NULL,
	embedding vector NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`
