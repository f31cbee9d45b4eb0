package app

import (
	"context"
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/raaihank/mail-sentinel/internal/cache"
	"github.com/raaihank/mail-sentinel/internal/cleaning"
	"github.com/raaihank/mail-sentinel/internal/config"
	"github.com/raaihank/mail-sentinel/internal/embeddings"
	"github.com/raaihank/mail-sentinel/internal/logger"
	"github.com/raaihank/mail-sentinel/internal/scoring"
	"github.com/raaihank/mail-sentinel/internal/vector"
)

// Services holds everything the binaries share
type Services struct {
	Cleaner          *cleaning.Cleaner
	EmbeddingService embeddings.EmbeddingService
	Cache            *cache.EmbeddingCache
	Store            *vector.Store
	Scorer           *scoring.Scorer

	config *config.Config
	logger *logger.Logger
}

// Options selects the optional backends to bring up
type Options struct {
	// Embeddings is needed for scoring and reference building
	Embeddings bool
	// Store connects to Postgres when the vector section is enabled
	Store bool
}

// NewLogger builds the application logger from the logging section
func NewLogger(cfg config.LoggingConfig) (*logger.Logger, error) {
	loggerConfig := logger.Config{
		Level:  cfg.Level,
		Format: cfg.Format,
	}
	if cfg.File.Enabled {
		loggerConfig.File = &logger.FileConfig{
			Enabled: cfg.File.Enabled,
			Path:    cfg.File.Path,
		}
	}
	return logger.New(loggerConfig)
}

// Initialize brings up the cleaner and, on request, the embedding service,
// the embedding cache, the vector store and the scorer. Close releases them.
func Initialize(cfg *config.Config, log *logger.Logger, opts Options) (*Services, error) {
	s := &Services{config: cfg, logger: log}

	cleaner, err := cleaning.New(cfg.Cleaning, log.WithComponent("cleaning").Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cleaner: %w", err)
	}
	s.Cleaner = cleaner

	if opts.Store && cfg.Vector.Enabled {
		log.Info("Initializing vector store...")
		store, err := vector.NewStore(vector.ConfigFrom(cfg.Vector), log.WithComponent("vector").Logger)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to initialize vector store: %w", err)
		}
		s.Store = store
	}

	if !opts.Embeddings {
		return s, nil
	}

	log.Info("Initializing embedding service...", zap.String("type", cfg.Embeddings.Type))
	factory := embeddings.NewFactory(log.WithComponent("embeddings").Logger)
	service, err := factory.CreateService(embeddings.ServiceConfigFrom(cfg.Embeddings))
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to initialize embedding service: %w", err)
	}
	s.EmbeddingService = service

	s.Scorer = scoring.NewScorer(cleaner, service, cfg.Scoring.Threshold, log.WithComponent("scoring").Logger)

	if cfg.Cache.Enabled {
		embeddingCache, err := cache.NewEmbeddingCache(cache.ConfigFrom(cfg.Cache), log.WithComponent("cache").Logger)
		if err != nil {
			// scoring still works without the cache
			log.Warn("Embedding cache unavailable, continuing without it", zap.Error(err))
		} else {
			s.Cache = embeddingCache
			s.Scorer.WithCache(embeddingCache)
		}
	}

	return s, nil
}

// LoadReference loads the reference vector from the configured source. A
// missing reference file is not an error: the scorer stays without one.
func (s *Services) LoadReference(ctx context.Context) error {
	if s.Scorer == nil {
		return fmt.Errorf("scorer not initialized")
	}

	var (
		reference []float32
		err       error
	)
	switch s.config.Scoring.ReferenceSource {
	case "store":
		if s.Store == nil {
			return fmt.Errorf("reference source is store but the vector store is disabled")
		}
		reference, err = s.Store.AverageEmbedding(ctx, s.config.Scoring.ReferenceLabel)
		if errors.Is(err, vector.ErrNoExamples) {
			s.logger.Warn("No stored examples for the reference label, scoring disabled",
				zap.Int("label", s.config.Scoring.ReferenceLabel))
			return nil
		}
	default:
		reference, err = scoring.LoadReference(s.config.Scoring.ReferencePath)
		if errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("Reference file not found, scoring disabled until one is built",
				zap.String("path", s.config.Scoring.ReferencePath))
			return nil
		}
	}
	if err != nil {
		return fmt.Errorf("failed to load reference: %w", err)
	}

	if err := s.Scorer.SetReference(reference); err != nil {
		return err
	}
	s.logger.Info("Reference vector loaded",
		zap.String("source", s.config.Scoring.ReferenceSource),
		zap.Int("dimensions", len(reference)))
	return nil
}

// Close releases every initialized backend
func (s *Services) Close() {
	if s.EmbeddingService != nil {
		s.EmbeddingService.Close()
	}
	if s.Store != nil {
		s.Store.Close()
	}
	if s.Cache != nil {
		s.Cache.Close()
	}
}
