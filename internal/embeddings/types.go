package embeddings

import (
	"time"
)

// DefaultDimensions matches all-MiniLM-L6-v2 sentence embeddings
const DefaultDimensions = 384

// ModelConfig contains embedding model configuration
type ModelConfig struct {
	Dimensions int           `yaml:"dimensions" mapstructure:"dimensions"` // 384
	ModelPath  string        `yaml:"model_path" mapstructure:"model_path"` // "./models/minilm-l6-v2.onnx"
	VocabPath  string        `yaml:"vocab_path" mapstructure:"vocab_path"` // "./models/vocab.txt"
	MaxLength  int           `yaml:"max_length" mapstructure:"max_length"` // 256
	BatchSize  int           `yaml:"batch_size" mapstructure:"batch_size"` // 32
	Timeout    time.Duration `yaml:"timeout" mapstructure:"timeout"`       // 30s
}

// EmbeddingResult represents the result of embedding generation
type EmbeddingResult struct {
	Embedding   []float32     `json:"embedding"`
	Duration    time.Duration `json:"duration"`
	TokenCount  int           `json:"token_count"`
	ServiceType string        `json:"service_type"`
	CacheHit    bool          `json:"cache_hit"`
}

// BatchEmbeddingResult represents the result of batch embedding generation.
// Embeddings is index-aligned with the input; failed items are nil.
type BatchEmbeddingResult struct {
	Embeddings  [][]float32   `json:"embeddings"`
	Duration    time.Duration `json:"duration"`
	TotalTokens int           `json:"total_tokens"`
	Successful  int           `json:"successful"`
	Failed      int           `json:"failed"`
	Errors      []error       `json:"errors,omitempty"`
	ServiceType string        `json:"service_type"`
	CacheHits   int           `json:"cache_hits"`
}

// ModelStats represents model performance statistics
type ModelStats struct {
	TotalInferences   int64         `json:"total_inferences"`
	TotalTokens       int64         `json:"total_tokens"`
	SuccessfulRuns    int64         `json:"successful_runs"`
	FailedRuns        int64         `json:"failed_runs"`
	AvgInferenceTime  time.Duration `json:"avg_inference_time"`
	AvgTokensPerText  float64       `json:"avg_tokens_per_text"`
	ModelLoadTime     time.Duration `json:"model_load_time"`
	LastInferenceTime time.Time     `json:"last_inference_time"`
	ErrorRate         float64       `json:"error_rate"`
	Dimensions        int           `json:"dimensions"`
	ServiceType       string        `json:"service_type"`
	StartTime         time.Time     `json:"start_time"`
}

// TokenizedInput represents tokenized text ready for model inference
type TokenizedInput struct {
	InputIDs      []int32
	AttentionMask []int32
	TokenTypeIDs  []int32
	Length        int
	Truncated     bool
}

// EmbeddingError define custom error types
type EmbeddingError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

func (e *EmbeddingError) Error() string {
	return e.Message
}

// Common error types
var (
	ErrInvalidInput       = &EmbeddingError{Type: "invalid_input", Message: "invalid input text", Code: 1001}
	ErrModelNotLoaded     = &EmbeddingError{Type: "model_not_loaded", Message: "model not loaded", Code: 1002}
	ErrInferenceFailed    = &EmbeddingError{Type: "inference_failed", Message: "inference failed", Code: 1003}
	ErrConfigError        = &EmbeddingError{Type: "config_error", Message: "configuration error", Code: 1005}
	ErrNetworkError       = &EmbeddingError{Type: "network_error", Message: "network operation failed", Code: 1006}
	ErrTimeoutError       = &EmbeddingError{Type: "timeout_error", Message: "operation timed out", Code: 1007}
	ErrTokenizationFailed = &EmbeddingError{Type: "tokenization_failed", Message: "tokenization failed", Code: 1008}
	ErrDimensionMismatch  = &EmbeddingError{Type: "dimension_mismatch", Message: "embedding dimensions differ", Code: 1011}
)
