package embeddings

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/raaihank/mail-sentinel/internal/config"
)

// ServiceType represents the type of embedding service
type ServiceType string

const (
	// HashEmbedding uses deterministic feature hashing, no model required
	HashEmbedding ServiceType = "hash"

	// OnnxEmbedding runs a sentence-transformer locally through ONNX Runtime
	OnnxEmbedding ServiceType = "onnx"

	// AzureEmbedding calls an Azure OpenAI embeddings deployment
	AzureEmbedding ServiceType = "azure"
)

// ServiceConfig contains configuration for embedding service selection
type ServiceConfig struct {
	Type        ServiceType `yaml:"type" mapstructure:"type"`
	ModelConfig ModelConfig `yaml:"model" mapstructure:"model"`
	Azure       AzureConfig `yaml:"azure" mapstructure:"azure"`
}

// ServiceConfigFrom maps the embeddings section of the application config
func ServiceConfigFrom(cfg config.EmbeddingsConfig) ServiceConfig {
	return ServiceConfig{
		Type: ServiceType(cfg.Type),
		ModelConfig: ModelConfig{
			Dimensions: cfg.Dimensions,
			ModelPath:  cfg.ModelPath,
			VocabPath:  cfg.VocabPath,
			MaxLength:  cfg.MaxLength,
			BatchSize:  cfg.BatchSize,
			Timeout:    cfg.Timeout,
		},
		Azure: AzureConfig{
			Endpoint:   cfg.Azure.Endpoint,
			APIKey:     cfg.Azure.APIKey,
			Deployment: cfg.Azure.Deployment,
		},
	}
}

// Factory creates embedding services based on configuration
type Factory struct {
	logger *zap.Logger
}

// NewFactory creates a new embedding service factory
func NewFactory(logger *zap.Logger) *Factory {
	return &Factory{
		logger: logger,
	}
}

// CreateService creates an embedding service based on the configuration
func (f *Factory) CreateService(config ServiceConfig) (EmbeddingService, error) {
	if err := ValidateServiceConfig(config); err != nil {
		return nil, err
	}

	switch config.Type {
	case HashEmbedding:
		return NewHashEmbeddingService(&config.ModelConfig, f.logger)
	case OnnxEmbedding:
		return NewOnnxEmbeddingService(&config.ModelConfig, f.logger)
	case AzureEmbedding:
		return NewAzureEmbeddingService(&config.ModelConfig, config.Azure, f.logger)
	default:
		return nil, fmt.Errorf("unknown embedding service type: %s", config.Type)
	}
}

// GetServiceDescription returns a description of each service type
func GetServiceDescription(serviceType ServiceType) string {
	switch serviceType {
	case HashEmbedding:
		return "Deterministic feature-hashed bag of words. No model, fully offline."
	case OnnxEmbedding:
		return "Local sentence-transformer through ONNX Runtime. Needs the onnx build tag."
	case AzureEmbedding:
		return "Azure OpenAI embeddings deployment. Sends cleaned text to the endpoint."
	default:
		return "Unknown service type"
	}
}

// ValidateServiceConfig validates the embedding service configuration
func ValidateServiceConfig(config ServiceConfig) error {
	switch config.Type {
	case HashEmbedding, OnnxEmbedding, AzureEmbedding:
	default:
		return fmt.Errorf("%w: invalid service type: %s (must be one of: hash, onnx, azure)", ErrConfigError, config.Type)
	}

	if config.ModelConfig.Dimensions < 0 {
		return fmt.Errorf("%w: dimensions must not be negative", ErrConfigError)
	}

	if config.Type == OnnxEmbedding {
		if config.ModelConfig.ModelPath == "" || config.ModelConfig.VocabPath == "" {
			return fmt.Errorf("%w: model_path and vocab_path are required for onnx", ErrConfigError)
		}
		if config.ModelConfig.MaxLength < 0 {
			return fmt.Errorf("%w: max_length must be positive", ErrConfigError)
		}
	}

	if config.Type == AzureEmbedding && config.Azure.Deployment == "" {
		return fmt.Errorf("%w: azure deployment is required", ErrConfigError)
	}

	return nil
}

// GetAllServiceTypes returns all available service types
func GetAllServiceTypes() []ServiceType {
	return []ServiceType{HashEmbedding, OnnxEmbedding, AzureEmbedding}
}
