package embeddings

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"strings"
	"time"
	"unicode"

	"go.uber.org/zap"
)

// HashEmbeddingService provides fast deterministic embeddings by feature hashing.
// Word unigrams and bigrams are hashed into a fixed number of signed buckets, so
// texts sharing vocabulary land close together without any model on disk.
// Best for: tests, offline scoring, and reference building without a GPU.
type HashEmbeddingService struct {
	config *ModelConfig
	logger *zap.Logger
	stats  *statsRecorder
	dims   int
}

// NewHashEmbeddingService creates a new hash-based embedding service
func NewHashEmbeddingService(config *ModelConfig, logger *zap.Logger) (*HashEmbeddingService, error) {
	if config == nil {
		return nil, fmt.Errorf("%w: config cannot be nil", ErrConfigError)
	}

	start := time.Now()

	dims := config.Dimensions
	if dims <= 0 {
		dims = DefaultDimensions
	}

	service := &HashEmbeddingService{
		config: config,
		logger: logger,
		dims:   dims,
		stats:  newStatsRecorder("hash", dims, time.Since(start)),
	}

	logger.Info("Hash embedding service initialized",
		zap.String("type", "feature_hashing"),
		zap.Int("embedding_dimensions", dims))

	return service, nil
}

// GenerateEmbedding generates a deterministic embedding for text
func (s *HashEmbeddingService) GenerateEmbedding(ctx context.Context, text string) (*EmbeddingResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: text cannot be empty", ErrInvalidInput)
	}

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", ErrTimeoutError, ctx.Err())
	default:
	}

	start := time.Now()
	tokens := tokenizeWords(text)
	embedding := s.embed(tokens)
	duration := time.Since(start)

	s.stats.record(1, 0, len(tokens), duration)

	return &EmbeddingResult{
		Embedding:   embedding,
		Duration:    duration,
		TokenCount:  len(tokens),
		ServiceType: "hash",
	}, nil
}

// GenerateBatchEmbeddings generates embeddings for multiple texts
func (s *HashEmbeddingService) GenerateBatchEmbeddings(ctx context.Context, texts []string) (*BatchEmbeddingResult, error) {
	result := &BatchEmbeddingResult{
		Embeddings:  make([][]float32, len(texts)),
		ServiceType: "hash",
	}
	if len(texts) == 0 {
		return result, nil
	}

	start := time.Now()
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			result.Errors = append(result.Errors, fmt.Errorf("batch processing cancelled at item %d: %w", i, err))
			result.Failed++
			continue
		}

		if strings.TrimSpace(text) == "" {
			result.Errors = append(result.Errors, fmt.Errorf("%w: empty text at index %d", ErrInvalidInput, i))
			result.Failed++
			continue
		}

		tokens := tokenizeWords(text)
		result.Embeddings[i] = s.embed(tokens)
		result.TotalTokens += len(tokens)
		result.Successful++
	}
	result.Duration = time.Since(start)

	s.stats.record(int64(result.Successful), int64(result.Failed), result.TotalTokens, result.Duration)

	return result, nil
}

// embed hashes unigrams (weight 1) and bigrams (weight 0.5) into signed buckets
func (s *HashEmbeddingService) embed(tokens []string) []float32 {
	embedding := make([]float32, s.dims)

	for i, tok := range tokens {
		s.addFeature(embedding, tok, 1.0)
		if i > 0 {
			s.addFeature(embedding, tokens[i-1]+" "+tok, 0.5)
		}
	}

	return Normalize(embedding)
}

func (s *HashEmbeddingService) addFeature(target []float32, feature string, weight float32) {
	hash := sha256.Sum256([]byte(feature))
	bucket := binary.BigEndian.Uint64(hash[0:8]) % uint64(len(target))
	if hash[8]&1 == 1 {
		weight = -weight
	}
	target[bucket] += weight
}

// tokenizeWords lower-cases and splits on anything that is not a letter or digit
func tokenizeWords(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// ComputeSimilarity computes cosine similarity between two vectors
func (s *HashEmbeddingService) ComputeSimilarity(vec1, vec2 []float32) float32 {
	return CosineSimilarity(vec1, vec2)
}

// GetStats returns model performance statistics
func (s *HashEmbeddingService) GetStats() *ModelStats {
	return s.stats.snapshot()
}

// Close cleans up resources
func (s *HashEmbeddingService) Close() error {
	return nil
}
