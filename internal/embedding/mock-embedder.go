package embedding

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"sync"
)

// MockEmbedder is a deterministic embedder for tests. It returns a
// fixed-dimension vector derived from the text hash so that the same text
// always gets the same embedding. Individual texts can be made to fail to
// exercise isolation paths.
type MockEmbedder struct {
	dimensions int

	mu       sync.Mutex
	failures map[string]error
	calls    int
}

// NewMockEmbedder returns an embedder that produces deterministic embeddings
// of the given dimensions.
func NewMockEmbedder(dimensions int) *MockEmbedder {
	if dimensions <= 0 {
		dimensions = 8
	}
	return &MockEmbedder{
		dimensions: dimensions,
		failures:   make(map[string]error),
	}
}

// FailText makes Embed return err for the given text.
func (e *MockEmbedder) FailText(text string, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failures[text] = err
}

// Calls returns how many provider calls were made (one per EmbedBatch or Embed).
func (e *MockEmbedder) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

// Embed returns a deterministic embedding based on the text hash.
func (e *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	e.calls++
	failure := e.failures[text]
	e.mu.Unlock()
	if failure != nil {
		return nil, failure
	}
	return e.vectorFor(text), nil
}

// EmbedBatch embeds each text; any injected failure fails the whole batch,
// matching providers that reject a batch containing a bad item.
func (e *MockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	e.calls++
	var failed string
	var failure error
	for _, text := range texts {
		if err, ok := e.failures[text]; ok {
			failed, failure = text, err
			break
		}
	}
	e.mu.Unlock()
	if failure != nil {
		return nil, fmt.Errorf("batch rejected (%q): %w", failed, failure)
	}
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vectors[i] = e.vectorFor(text)
	}
	return vectors, nil
}

func (e *MockEmbedder) vectorFor(text string) []float32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(text))
	seed := h.Sum32()
	vec := make([]float32, e.dimensions)
	for i := 0; i < e.dimensions; i++ {
		vec[i] = float32(math.Sin(float64(seed)*float64(i+1))*0.1 + 0.01)
	}
	// Normalize to unit length for cosine similarity
	var sum float64
	for _, v := range vec {
		sum += float64(v * v)
	}
	if sum > 0 {
		norm := 1.0 / math.Sqrt(sum)
		for i := range vec {
			vec[i] *= float32(norm)
		}
	}
	return vec
}

// Dimensions returns the embedding dimension.
func (e *MockEmbedder) Dimensions() int {
	return e.dimensions
}

// Close is a no-op for MockEmbedder.
func (e *MockEmbedder) Close() error {
	return nil
}
