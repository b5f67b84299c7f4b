package embedding

import (
	"context"

	"go.uber.org/zap"
)

const defaultBatchSize = 32

// ItemError records an embedding failure for one input index.
type ItemError struct {
	Index int
	Err   error
}

// Batcher converts texts into vectors in bounded batches, isolating per-item
// failures: a failing batch is retried item-by-item so one bad input never
// drops its siblings. It is stateless and performs no backoff; batch-level
// retry belongs to the index synchronizer.
type Batcher struct {
	embedder  Embedder
	batchSize int
	logger    *zap.Logger
}

// BatcherOption configures a Batcher.
type BatcherOption func(*Batcher)

// WithLogger sets a logger for debug output.
func WithLogger(l *zap.Logger) BatcherOption {
	return func(b *Batcher) { b.logger = l }
}

// NewBatcher creates a batcher over embedder. batchSize <= 0 selects the default.
func NewBatcher(embedder Embedder, batchSize int, opts ...BatcherOption) *Batcher {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	b := &Batcher{
		embedder:  embedder,
		batchSize: batchSize,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// EmbedAll embeds all texts. The returned slice is aligned to the input:
// vectors[i] is the embedding for texts[i], or nil when that item failed.
// Failures are returned as (index, error) pairs and counted in calls.
func (b *Batcher) EmbedAll(ctx context.Context, texts []string) (vectors [][]float32, errs []ItemError, calls int) {
	vectors = make([][]float32, len(texts))
	for start := 0; start < len(texts); start += b.batchSize {
		end := start + b.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		if ctx.Err() != nil {
			for i := start; i < end; i++ {
				errs = append(errs, ItemError{Index: i, Err: ctx.Err()})
			}
			continue
		}

		batch := texts[start:end]
		calls++
		batchVectors, err := b.embedder.EmbedBatch(ctx, batch)
		if err == nil && len(batchVectors) == len(batch) {
			copy(vectors[start:end], batchVectors)
			continue
		}
		if err != nil {
			b.logger.Debug("embedding batch failed, retrying per item",
				zap.Int("batch_start", start), zap.Int("batch_size", len(batch)), zap.Error(err))
		}

		// Per-item fallback isolates the failing input(s).
		for i, text := range batch {
			vec, itemErr := b.embedder.Embed(ctx, text)
			calls++
			if itemErr != nil {
				b.logger.Debug("embedding item failed",
					zap.Int("index", start+i), zap.Error(itemErr))
				errs = append(errs, ItemError{Index: start + i, Err: itemErr})
				continue
			}
			vectors[start+i] = vec
		}
	}
	return vectors, errs, calls
}
