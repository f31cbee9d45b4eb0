package embeddings

import (
	"context"
)

// EmbeddingService turns cleaned email text into vectors
type EmbeddingService interface {
	GenerateEmbedding(ctx context.Context, text string) (*EmbeddingResult, error)
	GenerateBatchEmbeddings(ctx context.Context, texts []string) (*BatchEmbeddingResult, error)
	ComputeSimilarity(vec1, vec2 []float32) float32
	GetStats() *ModelStats
	Close() error
}

// TransformerBackend runs the encoder behind OnnxEmbeddingService. Builds
// without the onnx tag get a nil backend from NewTransformerBackend.
type TransformerBackend interface {
	// EmbedBatch returns one mean-pooled vector per tokenized input
	EmbedBatch(ctx context.Context, tokensBatch []*TokenizedInput) ([][]float32, error)
	IsReady() bool
	Close() error
}

var (
	_ EmbeddingService = (*HashEmbeddingService)(nil)
	_ EmbeddingService = (*OnnxEmbeddingService)(nil)
	_ EmbeddingService = (*AzureEmbeddingService)(nil)
)
