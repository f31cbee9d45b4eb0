package embeddings

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/Azure/azure-sdk-for-go/sdk/ai/azopenai"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"go.uber.org/zap"

	"github.com/raaihank/mail-sentinel/internal/config"
)

// TestVectorHelpers tests the shared vector math
func TestVectorHelpers(t *testing.T) {
	t.Run("CosineSimilarity", func(t *testing.T) {
		if sim := CosineSimilarity([]float32{1, 0}, []float32{1, 0}); math.Abs(float64(sim)-1) > 1e-6 {
			t.Errorf("Identical vectors should have similarity 1, got %f", sim)
		}
		if sim := CosineSimilarity([]float32{1, 0}, []float32{0, 1}); math.Abs(float64(sim)) > 1e-6 {
			t.Errorf("Orthogonal vectors should have similarity 0, got %f", sim)
		}
		if sim := CosineSimilarity([]float32{1}, []float32{1, 2}); sim != 0 {
			t.Errorf("Mismatched lengths should give 0, got %f", sim)
		}
	})

	t.Run("CosineDistance", func(t *testing.T) {
		d, err := CosineDistance([]float32{1, 0}, []float32{-1, 0})
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if math.Abs(d-2) > 1e-6 {
			t.Errorf("Opposite vectors should have distance 2, got %f", d)
		}
		if _, err := CosineDistance([]float32{1}, []float32{1, 2}); !errors.Is(err, ErrDimensionMismatch) {
			t.Errorf("Expected ErrDimensionMismatch, got %v", err)
		}
	})

	t.Run("Average", func(t *testing.T) {
		avg, err := Average([][]float32{{1, 2}, {3, 4}})
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if avg[0] != 2 || avg[1] != 3 {
			t.Errorf("Expected [2 3], got %v", avg)
		}
		if _, err := Average(nil); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("Expected ErrInvalidInput, got %v", err)
		}
		if _, err := Average([][]float32{{1}, {1, 2}}); !errors.Is(err, ErrDimensionMismatch) {
			t.Errorf("Expected ErrDimensionMismatch, got %v", err)
		}
	})

	t.Run("Normalize", func(t *testing.T) {
		n := Normalize([]float32{3, 4})
		if math.Abs(float64(n[0])-0.6) > 1e-6 || math.Abs(float64(n[1])-0.8) > 1e-6 {
			t.Errorf("Expected [0.6 0.8], got %v", n)
		}
		zero := Normalize([]float32{0, 0})
		if zero[0] != 0 || zero[1] != 0 {
			t.Errorf("Zero vector should stay zero, got %v", zero)
		}
	})
}

// TestHashEmbeddingService tests the hash-based embedding service
func TestHashEmbeddingService(t *testing.T) {
	logger := zap.NewNop()
	service, err := NewHashEmbeddingService(&ModelConfig{Dimensions: 384}, logger)
	if err != nil {
		t.Fatalf("Failed to create hash service: %v", err)
	}
	ctx := context.Background()

	t.Run("Deterministic", func(t *testing.T) {
		r1, err := service.GenerateEmbedding(ctx, "Please review the budget")
		if err != nil {
			t.Fatalf("Failed to generate embedding: %v", err)
		}
		r2, _ := service.GenerateEmbedding(ctx, "Please review the budget")
		if len(r1.Embedding) != 384 {
			t.Fatalf("Expected 384 dimensions, got %d", len(r1.Embedding))
		}
		for i := range r1.Embedding {
			if r1.Embedding[i] != r2.Embedding[i] {
				t.Fatalf("Embeddings differ at %d", i)
			}
		}
		var norm float64
		for _, v := range r1.Embedding {
			norm += float64(v) * float64(v)
		}
		if math.Abs(norm-1) > 1e-4 {
			t.Errorf("Expected unit norm, got %f", norm)
		}
	})

	t.Run("SharedVocabularyIsCloser", func(t *testing.T) {
		a, _ := service.GenerateEmbedding(ctx, "please send the quarterly budget report")
		b, _ := service.GenerateEmbedding(ctx, "send the quarterly budget report today")
		c, _ := service.GenerateEmbedding(ctx, "lunch menu changes for friday")

		near := service.ComputeSimilarity(a.Embedding, b.Embedding)
		far := service.ComputeSimilarity(a.Embedding, c.Embedding)
		if near <= far {
			t.Errorf("Expected related texts closer: near=%f far=%f", near, far)
		}
	})

	t.Run("EmptyText", func(t *testing.T) {
		if _, err := service.GenerateEmbedding(ctx, "   "); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("Expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("Batch", func(t *testing.T) {
		res, err := service.GenerateBatchEmbeddings(ctx, []string{"first text", "", "third text"})
		if err != nil {
			t.Fatalf("Batch failed: %v", err)
		}
		if res.Successful != 2 || res.Failed != 1 {
			t.Errorf("Expected 2 successes and 1 failure, got %d and %d", res.Successful, res.Failed)
		}
		if len(res.Embeddings) != 3 || res.Embeddings[1] != nil {
			t.Errorf("Embeddings must stay index aligned")
		}
	})

	t.Run("Stats", func(t *testing.T) {
		stats := service.GetStats()
		if stats.ServiceType != "hash" || stats.SuccessfulRuns == 0 {
			t.Errorf("Unexpected stats: %+v", stats)
		}
		if stats.Dimensions != 384 {
			t.Errorf("Expected 384 dimensions in stats, got %d", stats.Dimensions)
		}
	})
}

func testVocab() map[string]int32 {
	return map[string]int32{
		"[PAD]": 0, "[UNK]": 1, "[CLS]": 2, "[SEP]": 3,
		"budget": 4, "re": 5, "##view": 6, ",": 7,
	}
}

// TestTokenizer tests WordPiece tokenization
func TestTokenizer(t *testing.T) {
	t.Run("WordPieces", func(t *testing.T) {
		tok, err := NewTokenizer(testVocab(), 8)
		if err != nil {
			t.Fatalf("Failed to create tokenizer: %v", err)
		}
		out, err := tok.Tokenize("Budget Review, ok")
		if err != nil {
			t.Fatalf("Tokenize failed: %v", err)
		}
		want := []int32{2, 4, 5, 6, 7, 1, 3, 0}
		for i := range want {
			if out.InputIDs[i] != want[i] {
				t.Fatalf("Expected ids %v, got %v", want, out.InputIDs)
			}
		}
		if out.Length != 7 || out.Truncated {
			t.Errorf("Unexpected length %d truncated %v", out.Length, out.Truncated)
		}
		if out.AttentionMask[6] != 1 || out.AttentionMask[7] != 0 {
			t.Errorf("Unexpected mask %v", out.AttentionMask)
		}
	})

	t.Run("Truncation", func(t *testing.T) {
		tok, _ := NewTokenizer(testVocab(), 5)
		out, err := tok.Tokenize("budget review, budget")
		if err != nil {
			t.Fatalf("Tokenize failed: %v", err)
		}
		if !out.Truncated || out.Length != 5 || out.InputIDs[4] != 3 {
			t.Errorf("Expected truncated input ending in [SEP], got %+v", out)
		}
	})

	t.Run("MissingSpecialToken", func(t *testing.T) {
		if _, err := NewTokenizer(map[string]int32{"[PAD]": 0}, 8); !errors.Is(err, ErrTokenizationFailed) {
			t.Errorf("Expected ErrTokenizationFailed, got %v", err)
		}
	})
}

type fakeBackend struct {
	calls int
}

func (f *fakeBackend) EmbedBatch(ctx context.Context, batch []*TokenizedInput) ([][]float32, error) {
	f.calls++
	out := make([][]float32, len(batch))
	for i, in := range batch {
		out[i] = []float32{float32(in.Length), 1, 0, 0}
	}
	return out, nil
}

func (f *fakeBackend) IsReady() bool { return true }
func (f *fakeBackend) Close() error { return nil }

// TestOnnxEmbeddingService tests batching around a stand-in backend
func TestOnnxEmbeddingService(t *testing.T) {
	tok, err := NewTokenizer(testVocab(), 8)
	if err != nil {
		t.Fatalf("Failed to create tokenizer: %v", err)
	}
	backend := &fakeBackend{}
	service := newOnnxService(&ModelConfig{Dimensions: 4, BatchSize: 2}, zap.NewNop(), tok, backend, 4, 0)

	res, err := service.GenerateBatchEmbeddings(context.Background(), []string{"budget", "review", "", "budget review"})
	if err != nil {
		t.Fatalf("Batch failed: %v", err)
	}
	if res.Successful != 3 || res.Failed != 1 {
		t.Errorf("Expected 3 successes and 1 failure, got %d and %d", res.Successful, res.Failed)
	}
	if backend.calls != 2 {
		t.Errorf("Expected 2 backend calls for batch size 2, got %d", backend.calls)
	}
	if res.Embeddings[2] != nil || res.Embeddings[3] == nil {
		t.Errorf("Embeddings must stay index aligned")
	}

	single, err := service.GenerateEmbedding(context.Background(), "budget")
	if err != nil {
		t.Fatalf("Single embedding failed: %v", err)
	}
	if len(single.Embedding) != 4 || single.ServiceType != "onnx" {
		t.Errorf("Unexpected result: %+v", single)
	}
}

type fakeAzureClient struct {
	dims int
}

func (f *fakeAzureClient) GetEmbeddings(ctx context.Context, body azopenai.EmbeddingsOptions, options *azopenai.GetEmbeddingsOptions) (azopenai.GetEmbeddingsResponse, error) {
	var resp azopenai.GetEmbeddingsResponse
	// answer in reverse order to exercise index placement
	for i := len(body.Input) - 1; i >= 0; i-- {
		vec := make([]float32, f.dims)
		vec[i%f.dims] = 1
		resp.Data = append(resp.Data, azopenai.EmbeddingItem{Embedding: vec, Index: to.Ptr(int32(i))})
	}
	return resp, nil
}

// TestAzureEmbeddingService tests request batching and index placement
func TestAzureEmbeddingService(t *testing.T) {
	service := newAzureService(&ModelConfig{Dimensions: 3, BatchSize: 2}, &fakeAzureClient{dims: 3}, "embeddings", zap.NewNop())

	res, err := service.GenerateBatchEmbeddings(context.Background(), []string{"a b", "c", "d"})
	if err != nil {
		t.Fatalf("Batch failed: %v", err)
	}
	if res.Successful != 3 {
		t.Fatalf("Expected 3 successes, got %d (%v)", res.Successful, res.Errors)
	}
	if res.Embeddings[0][0] != 1 || res.Embeddings[1][1] != 1 {
		t.Errorf("Embeddings placed out of order: %v", res.Embeddings)
	}

	bad := newAzureService(&ModelConfig{Dimensions: 5}, &fakeAzureClient{dims: 3}, "embeddings", zap.NewNop())
	if _, err := bad.GenerateEmbedding(context.Background(), "text"); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("Expected ErrDimensionMismatch, got %v", err)
	}
}

// TestFactory tests service selection
func TestFactory(t *testing.T) {
	factory := NewFactory(zap.NewNop())

	t.Run("HashFromAppConfig", func(t *testing.T) {
		service, err := factory.CreateService(ServiceConfigFrom(config.GetDefaults().Embeddings))
		if err != nil {
			t.Fatalf("Failed to create default service: %v", err)
		}
		defer service.Close()
		if service.GetStats().ServiceType != "hash" {
			t.Errorf("Expected hash service by default")
		}
	})

	t.Run("InvalidType", func(t *testing.T) {
		if _, err := factory.CreateService(ServiceConfig{Type: "pattern"}); !errors.Is(err, ErrConfigError) {
			t.Errorf("Expected ErrConfigError, got %v", err)
		}
	})

	t.Run("OnnxNeedsPaths", func(t *testing.T) {
		if err := ValidateServiceConfig(ServiceConfig{Type: OnnxEmbedding}); err == nil {
			t.Errorf("Expected an error without model and vocab paths")
		}
	})

	t.Run("AzureNeedsCredentials", func(t *testing.T) {
		cfg := ServiceConfig{Type: AzureEmbedding, Azure: AzureConfig{Deployment: "embeddings"}}
		if _, err := factory.CreateService(cfg); !errors.Is(err, ErrConfigError) {
			t.Errorf("Expected ErrConfigError, got %v", err)
		}
	})

	t.Run("Descriptions", func(t *testing.T) {
		for _, st := range GetAllServiceTypes() {
			if GetServiceDescription(st) == "Unknown service type" {
				t.Errorf("Missing description for %s", st)
			}
		}
	})
}
