package embeddings

import (
	"fmt"
	"math"
	"sync"
	"time"
)

// Normalize scales a vector to unit length. Zero vectors are returned as is.
func Normalize(embedding []float32) []float32 {
	var norm float64
	for _, val := range embedding {
		norm += float64(val) * float64(val)
	}
	if norm == 0 {
		return embedding
	}
	norm = math.Sqrt(norm)

	normalized := make([]float32, len(embedding))
	for i, val := range embedding {
		normalized[i] = float32(float64(val) / norm)
	}
	return normalized
}

// CosineSimilarity returns 0 for mismatched lengths and zero vectors
func CosineSimilarity(vec1, vec2 []float32) float32 {
	if len(vec1) != len(vec2) || len(vec1) == 0 {
		return 0.0
	}

	var dotProduct, norm1, norm2 float64
	for i := range vec1 {
		dotProduct += float64(vec1[i]) * float64(vec2[i])
		norm1 += float64(vec1[i]) * float64(vec1[i])
		norm2 += float64(vec2[i]) * float64(vec2[i])
	}

	if norm1 == 0 || norm2 == 0 {
		return 0.0
	}

	return float32(dotProduct / (math.Sqrt(norm1) * math.Sqrt(norm2)))
}

// CosineDistance is 1 - cosine similarity, in [0, 2]
func CosineDistance(vec1, vec2 []float32) (float64, error) {
	if len(vec1) != len(vec2) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, len(vec1), len(vec2))
	}
	if len(vec1) == 0 {
		return 0, fmt.Errorf("%w: empty vector", ErrInvalidInput)
	}
	return 1 - float64(CosineSimilarity(vec1, vec2)), nil
}

// Average returns the element-wise mean of equally sized vectors
func Average(vectors [][]float32) ([]float32, error) {
	if len(vectors) == 0 {
		return nil, fmt.Errorf("%w: no vectors to average", ErrInvalidInput)
	}

	dims := len(vectors[0])
	sum := make([]float64, dims)
	for i, v := range vectors {
		if len(v) != dims {
			return nil, fmt.Errorf("%w: vector %d has %d dimensions, want %d", ErrDimensionMismatch, i, len(v), dims)
		}
		for d, x := range v {
			sum[d] += float64(x)
		}
	}

	avg := make([]float32, dims)
	for d := range sum {
		avg[d] = float32(sum[d] / float64(len(vectors)))
	}
	return avg, nil
}

// statsRecorder keeps ModelStats for a service
type statsRecorder struct {
	mu    sync.RWMutex
	stats ModelStats
}

func newStatsRecorder(serviceType string, dims int, loadTime time.Duration) *statsRecorder {
	return &statsRecorder{stats: ModelStats{
		ServiceType:   serviceType,
		Dimensions:    dims,
		StartTime:     time.Now(),
		ModelLoadTime: loadTime,
	}}
}

// record updates performance statistics thread-safely
func (r *statsRecorder) record(succeeded, failed int64, tokens int, duration time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := &r.stats
	s.TotalInferences += succeeded + failed
	s.TotalTokens += int64(tokens)
	s.LastInferenceTime = time.Now()

	prev := s.SuccessfulRuns
	s.SuccessfulRuns += succeeded
	s.FailedRuns += failed

	if total := s.SuccessfulRuns + s.FailedRuns; total > 0 {
		s.ErrorRate = float64(s.FailedRuns) / float64(total)
	}

	// running mean over successful runs
	if s.SuccessfulRuns > 0 && succeeded > 0 {
		totalDuration := time.Duration(prev)*s.AvgInferenceTime + duration
		s.AvgInferenceTime = totalDuration / time.Duration(s.SuccessfulRuns)
	}

	if s.TotalInferences > 0 {
		s.AvgTokensPerText = float64(s.TotalTokens) / float64(s.TotalInferences)
	}
}

func (r *statsRecorder) snapshot() *ModelStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := r.stats
	return &stats
}
