//go:build !onnx
// +build !onnx

package embeddings

import (
	"go.uber.org/zap"
)

// NewTransformerBackend is unavailable without the 'onnx' build tag
func NewTransformerBackend(logger *zap.Logger, modelPath string, dims int) TransformerBackend {
	logger.Warn("Binary built without onnx tag, transformer backend unavailable", zap.String("model", modelPath))
	return nil
}
