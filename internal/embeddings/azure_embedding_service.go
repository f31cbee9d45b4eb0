package embeddings

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/ai/azopenai"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"go.uber.org/zap"
)

// AzureConfig selects an Azure OpenAI embeddings deployment
type AzureConfig struct {
	Endpoint   string `yaml:"endpoint" mapstructure:"endpoint"`
	APIKey     string `yaml:"api_key" mapstructure:"api_key"`
	Deployment string `yaml:"deployment" mapstructure:"deployment"`
}

// embeddingsClient is the slice of azopenai.Client the service uses
type embeddingsClient interface {
	GetEmbeddings(ctx context.Context, body azopenai.EmbeddingsOptions, options *azopenai.GetEmbeddingsOptions) (azopenai.GetEmbeddingsResponse, error)
}

// AzureEmbeddingService calls a hosted embeddings deployment.
// Only cleaned, anonymized text should ever be sent.
type AzureEmbeddingService struct {
	config     *ModelConfig
	client     embeddingsClient
	deployment string
	logger     *zap.Logger
	stats      *statsRecorder
	dims       int
}

// NewAzureEmbeddingService creates a client with key credentials
func NewAzureEmbeddingService(config *ModelConfig, azure AzureConfig, logger *zap.Logger) (*AzureEmbeddingService, error) {
	if config == nil {
		return nil, fmt.Errorf("%w: config cannot be nil", ErrConfigError)
	}
	if azure.Endpoint == "" || azure.APIKey == "" || azure.Deployment == "" {
		return nil, fmt.Errorf("%w: azure endpoint, api key and deployment are required", ErrConfigError)
	}

	keyCredential := azcore.NewKeyCredential(azure.APIKey)
	client, err := azopenai.NewClientWithKeyCredential(azure.Endpoint, keyCredential, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfigError, err)
	}

	return newAzureService(config, client, azure.Deployment, logger), nil
}

func newAzureService(config *ModelConfig, client embeddingsClient, deployment string, logger *zap.Logger) *AzureEmbeddingService {
	dims := config.Dimensions
	if dims <= 0 {
		dims = DefaultDimensions
	}

	logger.Info("Azure embedding service initialized",
		zap.String("deployment", deployment),
		zap.Int("embedding_dimensions", dims))

	return &AzureEmbeddingService{
		config:     config,
		client:     client,
		deployment: deployment,
		logger:     logger,
		dims:       dims,
		stats:      newStatsRecorder("azure", dims, 0),
	}
}

// GenerateEmbedding embeds one text
func (s *AzureEmbeddingService) GenerateEmbedding(ctx context.Context, text string) (*EmbeddingResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: text cannot be empty", ErrInvalidInput)
	}

	start := time.Now()
	vectors, err := s.embed(ctx, []string{text})
	duration := time.Since(start)
	if err != nil {
		s.stats.record(0, 1, 0, duration)
		return nil, err
	}

	tokens := len(strings.Fields(text))
	s.stats.record(1, 0, tokens, duration)

	return &EmbeddingResult{
		Embedding:   vectors[0],
		Duration:    duration,
		TokenCount:  tokens,
		ServiceType: "azure",
	}, nil
}

// GenerateBatchEmbeddings sends non-empty texts in requests of config.BatchSize inputs
func (s *AzureEmbeddingService) GenerateBatchEmbeddings(ctx context.Context, texts []string) (*BatchEmbeddingResult, error) {
	result := &BatchEmbeddingResult{
		Embeddings:  make([][]float32, len(texts)),
		ServiceType: "azure",
	}
	start := time.Now()

	batchSize := s.config.BatchSize
	if batchSize <= 0 {
		batchSize = 16
	}

	var inputs []string
	var idx []int
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			result.Errors = append(result.Errors, fmt.Errorf("%w: empty text at index %d", ErrInvalidInput, i))
			result.Failed++
			continue
		}
		inputs = append(inputs, text)
		idx = append(idx, i)
	}

	for lo := 0; lo < len(inputs); lo += batchSize {
		hi := lo + batchSize
		if hi > len(inputs) {
			hi = len(inputs)
		}

		vectors, err := s.embed(ctx, inputs[lo:hi])
		for j := lo; j < hi; j++ {
			if err != nil {
				result.Errors = append(result.Errors, fmt.Errorf("item %d: %w", idx[j], err))
				result.Failed++
				continue
			}
			result.Embeddings[idx[j]] = vectors[j-lo]
			result.TotalTokens += len(strings.Fields(inputs[j]))
			result.Successful++
		}
	}

	result.Duration = time.Since(start)
	s.stats.record(int64(result.Successful), int64(result.Failed), result.TotalTokens, result.Duration)
	return result, nil
}

func (s *AzureEmbeddingService) embed(ctx context.Context, inputs []string) ([][]float32, error) {
	if s.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.Timeout)
		defer cancel()
	}

	resp, err := s.client.GetEmbeddings(ctx, azopenai.EmbeddingsOptions{
		Input:          inputs,
		DeploymentName: to.Ptr(s.deployment),
	}, nil)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", ErrTimeoutError, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrNetworkError, err)
	}

	if len(resp.Data) != len(inputs) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d inputs", ErrInferenceFailed, len(resp.Data), len(inputs))
	}

	vectors := make([][]float32, len(inputs))
	for i, item := range resp.Data {
		pos := i
		if item.Index != nil && int(*item.Index) < len(vectors) {
			pos = int(*item.Index)
		}
		if len(item.Embedding) != s.dims {
			return nil, fmt.Errorf("%w: deployment returned %d, configured %d", ErrDimensionMismatch, len(item.Embedding), s.dims)
		}
		vectors[pos] = Normalize(item.Embedding)
	}
	return vectors, nil
}

// ComputeSimilarity computes cosine similarity between embeddings
func (s *AzureEmbeddingService) ComputeSimilarity(vec1, vec2 []float32) float32 {
	return CosineSimilarity(vec1, vec2)
}

// GetStats returns model performance statistics
func (s *AzureEmbeddingService) GetStats() *ModelStats {
	return s.stats.snapshot()
}

// Close has nothing to release
func (s *AzureEmbeddingService) Close() error {
	return nil
}
