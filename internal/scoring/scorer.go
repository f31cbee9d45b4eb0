package scoring

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/raaihank/mail-sentinel/internal/cleaning"
	"github.com/raaihank/mail-sentinel/internal/embeddings"
	"go.uber.org/zap"
)

// DefaultThreshold is the cosine distance under which an email counts as a thank-you
const DefaultThreshold = 0.4

// ErrNoReference is returned when scoring runs before a reference vector is set
var ErrNoReference = errors.New("no reference vector configured")

// Cache stores embeddings of cleaned texts
type Cache interface {
	Get(ctx context.Context, text string) ([]float32, bool)
	Set(ctx context.Context, text string, embedding []float32, serviceType string) error
}

// Result is the outcome of scoring one raw email
type Result struct {
	Cleaned   string        `json:"-"` // Never serialize cleaned text
	Distance  float64       `json:"distance"`
	Decision  int           `json:"decision"`
	Threshold float64       `json:"threshold"`
	CacheHit  bool          `json:"cache_hit"`
	Duration  time.Duration `json:"duration"`
}

// Scorer cleans an email, embeds it and compares it with the averaged reference vector
type Scorer struct {
	cleaner *cleaning.Cleaner
	service embeddings.EmbeddingService
	cache   Cache
	logger  *zap.Logger

	mu        sync.RWMutex
	reference []float32
	threshold float64
}

// NewScorer creates a scorer. A non-positive threshold falls back to DefaultThreshold.
func NewScorer(cleaner *cleaning.Cleaner, service embeddings.EmbeddingService, threshold float64, logger *zap.Logger) *Scorer {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Scorer{
		cleaner:   cleaner,
		service:   service,
		logger:    logger,
		threshold: threshold,
	}
}

// WithCache attaches an embedding cache
func (s *Scorer) WithCache(cache Cache) *Scorer {
	s.cache = cache
	return s
}

// SetReference replaces the reference vector
func (s *Scorer) SetReference(reference []float32) error {
	if len(reference) == 0 {
		return fmt.Errorf("%w: empty reference", ErrNoReference)
	}
	s.mu.Lock()
	s.reference = append([]float32(nil), reference...)
	s.mu.Unlock()
	return nil
}

// HasReference reports whether a reference vector is loaded
func (s *Scorer) HasReference() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.reference) > 0
}

// SetThreshold updates the decision threshold, used on config reload
func (s *Scorer) SetThreshold(threshold float64) {
	if threshold <= 0 {
		return
	}
	s.mu.Lock()
	old := s.threshold
	s.threshold = threshold
	s.mu.Unlock()
	if old != threshold {
		s.logger.Info("Scoring threshold updated", zap.Float64("old", old), zap.Float64("new", threshold))
	}
}

// Threshold returns the current decision threshold
func (s *Scorer) Threshold() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.threshold
}

// Cleaner returns the cleaner used before embedding
func (s *Scorer) Cleaner() *cleaning.Cleaner {
	return s.cleaner
}

// Score runs FullClean on raw, embeds the result and compares it with the reference.
// Decision is 1 when the distance is strictly below the threshold. An email that
// cleans down to nothing scores 0 at distance 1 without being embedded.
func (s *Scorer) Score(ctx context.Context, raw string) (*Result, error) {
	start := time.Now()

	s.mu.RLock()
	reference, threshold := s.reference, s.threshold
	s.mu.RUnlock()
	if len(reference) == 0 {
		return nil, ErrNoReference
	}

	result := &Result{
		Cleaned:   s.cleaner.FullClean(raw),
		Threshold: threshold,
		Distance:  1,
	}

	if strings.TrimSpace(result.Cleaned) == "" {
		result.Duration = time.Since(start)
		return result, nil
	}

	embedding, hit, err := s.Embed(ctx, result.Cleaned)
	if err != nil {
		return nil, err
	}

	distance, err := embeddings.CosineDistance(reference, embedding)
	if err != nil {
		return nil, fmt.Errorf("failed to compare with reference: %w", err)
	}

	result.Distance = distance
	result.CacheHit = hit
	if distance < threshold {
		result.Decision = 1
	}
	result.Duration = time.Since(start)

	s.logger.Debug("Email scored",
		zap.Int("cleaned_length", len(result.Cleaned)),
		zap.Float64("distance", distance),
		zap.Int("decision", result.Decision),
		zap.Bool("cache_hit", hit))

	return result, nil
}

// Embed returns the embedding of an already cleaned text, consulting the cache first
func (s *Scorer) Embed(ctx context.Context, cleaned string) ([]float32, bool, error) {
	if s.cache != nil {
		if embedding, ok := s.cache.Get(ctx, cleaned); ok {
			return embedding, true, nil
		}
	}

	res, err := s.service.GenerateEmbedding(ctx, cleaned)
	if err != nil {
		return nil, false, fmt.Errorf("failed to embed cleaned text: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, cleaned, res.Embedding, res.ServiceType); err != nil {
			s.logger.Warn("Failed to cache embedding", zap.Error(err))
		}
	}
	return res.Embedding, false, nil
}

// LoadReference reads a reference vector stored as a JSON array of numbers
func LoadReference(path string) ([]float32, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read reference: %w", err)
	}
	var reference []float32
	if err := json.Unmarshal(data, &reference); err != nil {
		return nil, fmt.Errorf("failed to parse reference %s: %w", path, err)
	}
	if len(reference) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", ErrNoReference, path)
	}
	return reference, nil
}

// SaveReference writes a reference vector as a JSON array, creating parent directories
func SaveReference(path string, reference []float32) error {
	if len(reference) == 0 {
		return fmt.Errorf("%w: refusing to save an empty reference", ErrNoReference)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create reference directory: %w", err)
		}
	}
	data, err := json.Marshal(reference)
	if err != nil {
		return fmt.Errorf("failed to encode reference: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write reference: %w", err)
	}
	return nil
}
