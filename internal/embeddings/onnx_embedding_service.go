package embeddings

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// OnnxEmbeddingService runs a sentence-transformer model locally.
// Best for: semantic scoring without sending email text off the host.
type OnnxEmbeddingService struct {
	config    *ModelConfig
	logger    *zap.Logger
	tokenizer *Tokenizer
	backend   TransformerBackend
	stats     *statsRecorder
	dims      int
}

// NewOnnxEmbeddingService loads the vocabulary and model. It fails when the
// binary was built without the onnx tag or the model cannot be opened.
func NewOnnxEmbeddingService(config *ModelConfig, logger *zap.Logger) (*OnnxEmbeddingService, error) {
	if config == nil {
		return nil, fmt.Errorf("%w: config cannot be nil", ErrConfigError)
	}
	start := time.Now()

	maxLength := config.MaxLength
	if maxLength <= 0 {
		maxLength = 256
	}
	tokenizer, err := LoadTokenizer(config.VocabPath, maxLength)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tokenizer: %w", err)
	}

	dims := config.Dimensions
	if dims <= 0 {
		dims = DefaultDimensions
	}

	backend := NewTransformerBackend(logger, config.ModelPath, dims)
	if backend == nil || !backend.IsReady() {
		return nil, fmt.Errorf("%w: %s", ErrModelNotLoaded, config.ModelPath)
	}

	return newOnnxService(config, logger, tokenizer, backend, dims, time.Since(start)), nil
}

func newOnnxService(config *ModelConfig, logger *zap.Logger, tokenizer *Tokenizer, backend TransformerBackend, dims int, loadTime time.Duration) *OnnxEmbeddingService {
	logger.Info("ONNX embedding service initialized",
		zap.String("model_path", config.ModelPath),
		zap.Int("embedding_dimensions", dims),
		zap.Duration("load_time", loadTime))

	return &OnnxEmbeddingService{
		config:    config,
		logger:    logger,
		tokenizer: tokenizer,
		backend:   backend,
		dims:      dims,
		stats:     newStatsRecorder("onnx", dims, loadTime),
	}
}

// GenerateEmbedding embeds one text
func (s *OnnxEmbeddingService) GenerateEmbedding(ctx context.Context, text string) (*EmbeddingResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: text cannot be empty", ErrInvalidInput)
	}

	start := time.Now()
	tokens, err := s.tokenizer.Tokenize(text)
	if err != nil {
		s.stats.record(0, 1, 0, 0)
		return nil, err
	}

	vectors, err := s.infer(ctx, []*TokenizedInput{tokens})
	duration := time.Since(start)
	if err != nil {
		s.stats.record(0, 1, tokens.Length, duration)
		return nil, err
	}
	s.stats.record(1, 0, tokens.Length, duration)

	return &EmbeddingResult{
		Embedding:   vectors[0],
		Duration:    duration,
		TokenCount:  tokens.Length,
		ServiceType: "onnx",
	}, nil
}

// GenerateBatchEmbeddings embeds texts in model batches of config.BatchSize
func (s *OnnxEmbeddingService) GenerateBatchEmbeddings(ctx context.Context, texts []string) (*BatchEmbeddingResult, error) {
	result := &BatchEmbeddingResult{
		Embeddings:  make([][]float32, len(texts)),
		ServiceType: "onnx",
	}
	start := time.Now()

	batchSize := s.config.BatchSize
	if batchSize <= 0 {
		batchSize = 32
	}

	var pending []*TokenizedInput
	var pendingIdx []int
	flush := func() {
		if len(pending) == 0 {
			return
		}
		vectors, err := s.infer(ctx, pending)
		for j, idx := range pendingIdx {
			if err != nil {
				result.Errors = append(result.Errors, fmt.Errorf("item %d: %w", idx, err))
				result.Failed++
				continue
			}
			result.Embeddings[idx] = vectors[j]
			result.TotalTokens += pending[j].Length
			result.Successful++
		}
		pending, pendingIdx = pending[:0], pendingIdx[:0]
	}

	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			result.Errors = append(result.Errors, fmt.Errorf("%w: empty text at index %d", ErrInvalidInput, i))
			result.Failed++
			continue
		}
		tokens, err := s.tokenizer.Tokenize(text)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Errorf("item %d: %w", i, err))
			result.Failed++
			continue
		}
		pending = append(pending, tokens)
		pendingIdx = append(pendingIdx, i)
		if len(pending) == batchSize {
			flush()
		}
	}
	flush()

	result.Duration = time.Since(start)
	s.stats.record(int64(result.Successful), int64(result.Failed), result.TotalTokens, result.Duration)
	return result, nil
}

func (s *OnnxEmbeddingService) infer(ctx context.Context, batch []*TokenizedInput) ([][]float32, error) {
	if s.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.Timeout)
		defer cancel()
	}

	vectors, err := s.backend.EmbedBatch(ctx, batch)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInferenceFailed, err)
	}
	if len(vectors) != len(batch) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d inputs", ErrInferenceFailed, len(vectors), len(batch))
	}
	for i, v := range vectors {
		vectors[i] = Normalize(v)
	}
	return vectors, nil
}

// ComputeSimilarity computes cosine similarity between embeddings
func (s *OnnxEmbeddingService) ComputeSimilarity(vec1, vec2 []float32) float32 {
	return CosineSimilarity(vec1, vec2)
}

// GetStats returns model performance statistics
func (s *OnnxEmbeddingService) GetStats() *ModelStats {
	return s.stats.snapshot()
}

// Close releases the backend
func (s *OnnxEmbeddingService) Close() error {
	s.logger.Info("Closing ONNX embedding service")
	return s.backend.Close()
}
