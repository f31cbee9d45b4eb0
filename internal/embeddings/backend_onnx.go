//go:build onnx
// +build onnx

package embeddings

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"
)

// OnnxBackend implements TransformerBackend using ONNX Runtime (via yalue/onnxruntime_go).
type OnnxBackend struct {
	session    *ort.DynamicAdvancedSession
	inputNames []string
	dims       int
	logger     *zap.Logger
	ready      bool
	mu         sync.RWMutex
}

// NewTransformerBackend initializes the ONNX Runtime backend. Requires build tag 'onnx'.
func NewTransformerBackend(logger *zap.Logger, modelPath string, dims int) TransformerBackend {
	if shlib := os.Getenv("ONNXRUNTIME_SHARED_LIB"); shlib != "" {
		ort.SetSharedLibraryPath(shlib)
	}

	if err := ort.InitializeEnvironment(); err != nil {
		logger.Error("ONNX Runtime environment init failed", zap.Error(err))
		return nil
	}

	inputsInfo, outputsInfo, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		logger.Error("Failed to inspect ONNX model IO", zap.Error(err), zap.String("model", modelPath))
		return nil
	}
	if len(outputsInfo) == 0 {
		logger.Error("ONNX model reports no outputs", zap.String("model", modelPath))
		return nil
	}

	// sentence-transformer exports declare some subset of these three inputs
	var inputNames []string
	for _, ii := range inputsInfo {
		switch inputKind(ii.Name) {
		case "ids", "mask", "type":
			inputNames = append(inputNames, ii.Name)
		default:
			logger.Error("Unsupported ONNX model input", zap.String("input", ii.Name))
			return nil
		}
	}
	outputName := outputsInfo[0].Name

	sess, err := ort.NewDynamicAdvancedSession(modelPath, inputNames, []string{outputName}, nil)
	if err != nil {
		logger.Error("ONNX Runtime session creation failed", zap.Error(err), zap.String("model", modelPath))
		return nil
	}

	logger.Info("ONNX Runtime backend ready",
		zap.String("model", modelPath),
		zap.Strings("inputs", inputNames),
		zap.String("output", outputName))
	return &OnnxBackend{session: sess, inputNames: inputNames, dims: dims, logger: logger, ready: true}
}

func inputKind(name string) string {
	name = strings.ToLower(name)
	switch {
	case strings.Contains(name, "mask"):
		return "mask"
	case strings.Contains(name, "type") || strings.Contains(name, "segment"):
		return "type"
	case strings.Contains(name, "ids") || name == "input":
		return "ids"
	}
	return ""
}

// IsReady reports whether the backend is initialized.
func (b *OnnxBackend) IsReady() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.ready && b.session != nil
}

// Close releases session and environment resources.
func (b *OnnxBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.session != nil {
		b.session.Destroy()
		b.session = nil
	}
	b.ready = false
	return ort.DestroyEnvironment()
}

// EmbedBatch runs inference for the batch and mean-pools token states over the attention mask.
func (b *OnnxBackend) EmbedBatch(ctx context.Context, tokensBatch []*TokenizedInput) ([][]float32, error) {
	if !b.IsReady() {
		return nil, fmt.Errorf("%w: onnx backend not ready", ErrModelNotLoaded)
	}

	batch := len(tokensBatch)
	if batch == 0 {
		return [][]float32{}, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	seqLen := len(tokensBatch[0].InputIDs)

	flat := map[string][]int64{
		"ids":  make([]int64, 0, batch*seqLen),
		"mask": make([]int64, 0, batch*seqLen),
		"type": make([]int64, 0, batch*seqLen),
	}
	for _, t := range tokensBatch {
		for i := 0; i < seqLen; i++ {
			flat["ids"] = append(flat["ids"], int64(t.InputIDs[i]))
			flat["mask"] = append(flat["mask"], int64(t.AttentionMask[i]))
			flat["type"] = append(flat["type"], int64(t.TokenTypeIDs[i]))
		}
	}

	shape := ort.NewShape(int64(batch), int64(seqLen))
	inputs := make([]ort.Value, 0, len(b.inputNames))
	for _, name := range b.inputNames {
		tensor, err := ort.NewTensor[int64](shape, flat[inputKind(name)])
		if err != nil {
			return nil, fmt.Errorf("failed to create %s tensor: %w", name, err)
		}
		defer tensor.Destroy()
		inputs = append(inputs, tensor)
	}

	// One output; let ORT allocate it
	outputs := make([]ort.Value, 1)
	if err := b.session.Run(inputs, outputs); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInferenceFailed, err)
	}
	if outputs[0] == nil {
		return nil, fmt.Errorf("%w: onnx returned no outputs", ErrInferenceFailed)
	}
	defer outputs[0].Destroy()

	outTensor, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("%w: unexpected output type (want float32 tensor)", ErrInferenceFailed)
	}
	data := outTensor.GetData()
	outShape := outTensor.GetShape()

	res := make([][]float32, batch)
	switch len(outShape) {
	case 2:
		// [batch, dims], already pooled
		dims := int(outShape[1])
		if dims != b.dims {
			return nil, fmt.Errorf("%w: model emits %d, configured %d", ErrDimensionMismatch, dims, b.dims)
		}
		for i := 0; i < batch; i++ {
			res[i] = append([]float32(nil), data[i*dims:(i+1)*dims]...)
		}
	case 3:
		// [batch, seq, dims]
		seq, dims := int(outShape[1]), int(outShape[2])
		if dims != b.dims {
			return nil, fmt.Errorf("%w: model emits %d, configured %d", ErrDimensionMismatch, dims, b.dims)
		}
		for i, t := range tokensBatch {
			pooled := make([]float32, dims)
			var count float32
			for s := 0; s < seq && s < len(t.AttentionMask); s++ {
				if t.AttentionMask[s] == 0 {
					continue
				}
				offset := (i*seq + s) * dims
				for d := 0; d < dims; d++ {
					pooled[d] += data[offset+d]
				}
				count++
			}
			if count > 0 {
				for d := range pooled {
					pooled[d] /= count
				}
			}
			res[i] = pooled
		}
	default:
		return nil, fmt.Errorf("%w: unsupported output shape %v", ErrInferenceFailed, outShape)
	}

	return res, nil
}
