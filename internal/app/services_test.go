package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/raaihank/mail-sentinel/internal/config"
	"github.com/raaihank/mail-sentinel/internal/logger"
	"github.com/raaihank/mail-sentinel/internal/scoring"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.GetDefaults()
	cfg.Embeddings.Type = "hash"
	cfg.Embeddings.Dimensions = 64
	cfg.Cache.Enabled = false
	cfg.Vector.Enabled = false
	cfg.Scoring.ReferencePath = filepath.Join(t.TempDir(), "reference.json")
	return cfg
}

func TestInitialize(t *testing.T) {
	t.Run("CleanerOnly", func(t *testing.T) {
		services, err := Initialize(testConfig(t), logger.NewNop(), Options{})
		if err != nil {
			t.Fatalf("Failed to initialize services: %v", err)
		}
		defer services.Close()

		if services.Cleaner == nil {
			t.Fatalf("Expected a cleaner")
		}
		if services.Scorer != nil || services.EmbeddingService != nil {
			t.Errorf("Embeddings were not requested")
		}
	})

	t.Run("WithEmbeddings", func(t *testing.T) {
		services, err := Initialize(testConfig(t), logger.NewNop(), Options{Embeddings: true, Store: true})
		if err != nil {
			t.Fatalf("Failed to initialize services: %v", err)
		}
		defer services.Close()

		if services.Scorer == nil {
			t.Fatalf("Expected a scorer")
		}
		if services.Store != nil {
			t.Errorf("Store should stay nil while the vector section is disabled")
		}
	})
}

func TestLoadReference(t *testing.T) {
	ctx := context.Background()

	t.Run("MissingFile", func(t *testing.T) {
		services, err := Initialize(testConfig(t), logger.NewNop(), Options{Embeddings: true})
		if err != nil {
			t.Fatalf("Failed to initialize services: %v", err)
		}
		defer services.Close()

		if err := services.LoadReference(ctx); err != nil {
			t.Fatalf("A missing reference should not fail: %v", err)
		}
		if services.Scorer.HasReference() {
			t.Errorf("No reference should be loaded")
		}
	})

	t.Run("File", func(t *testing.T) {
		cfg := testConfig(t)
		if err := scoring.SaveReference(cfg.Scoring.ReferencePath, make([]float32, 64)); err != nil {
			t.Fatalf("Failed to save reference: %v", err)
		}
		services, err := Initialize(cfg, logger.NewNop(), Options{Embeddings: true})
		if err != nil {
			t.Fatalf("Failed to initialize services: %v", err)
		}
		defer services.Close()

		if err := services.LoadReference(ctx); err != nil {
			t.Fatalf("Failed to load reference: %v", err)
		}
		if !services.Scorer.HasReference() {
			t.Errorf("Expected the reference to be loaded")
		}
	})

	t.Run("StoreDisabled", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Scoring.ReferenceSource = "store"
		services, err := Initialize(cfg, logger.NewNop(), Options{Embeddings: true, Store: true})
		if err != nil {
			t.Fatalf("Failed to initialize services: %v", err)
		}
		defer services.Close()

		if err := services.LoadReference(ctx); err == nil {
			t.Errorf("Expected an error when the store is disabled")
		}
	})

	t.Run("NoScorer", func(t *testing.T) {
		services, err := Initialize(testConfig(t), logger.NewNop(), Options{})
		if err != nil {
			t.Fatalf("Failed to initialize services: %v", err)
		}
		if err := services.LoadReference(ctx); err == nil {
			t.Errorf("Expected an error without a scorer")
		}
	})
}
