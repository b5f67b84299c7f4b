// Package syncer applies partitioned changes to the vector index and
// orchestrates sync cycles end to end.
package syncer

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/hyperjump/soroe/internal/fingerprint"
	"github.com/hyperjump/soroe/internal/models"
	"github.com/hyperjump/soroe/internal/tracker"
	"github.com/hyperjump/soroe/internal/vecindex"
)

const (
	defaultMaxBatchSize = 100
	defaultMaxAttempts  = 3
	defaultBaseDelay    = 500 * time.Millisecond
	maxBackoffDelay     = 30 * time.Second
)

// UpsertItem pairs an embedded document with the tracker commit it earns on
// confirmed write.
type UpsertItem struct {
	JobNumber   string
	Fingerprint fingerprint.Fingerprint
	Doc         *models.VectorDocument
}

// Synchronizer writes document batches to the vector index with bounded
// retries, exponential backoff and rate limiting, and commits tracker state
// only after the index confirms each write. A batch that exhausts its retries
// is reported and left uncommitted so the next cycle retries it.
type Synchronizer struct {
	index        vecindex.Index
	tracker      *tracker.Tracker
	limiter      *rate.Limiter
	maxBatchSize int
	maxAttempts  int
	baseDelay    time.Duration
	logger       *zap.Logger
}

// SynchronizerOptions configures retry and pacing policy. Zero values select
// defaults; RatePerSec <= 0 disables rate limiting.
type SynchronizerOptions struct {
	MaxBatchSize int
	MaxAttempts  int
	BaseDelay    time.Duration
	RatePerSec   float64
}

// NewSynchronizer creates a synchronizer over index and tracker. logger may be nil.
func NewSynchronizer(index vecindex.Index, tr *tracker.Tracker, opts SynchronizerOptions, logger *zap.Logger) *Synchronizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.MaxBatchSize <= 0 {
		opts.MaxBatchSize = defaultMaxBatchSize
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = defaultBaseDelay
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.RatePerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RatePerSec), 1)
	}
	return &Synchronizer{
		index:        index,
		tracker:      tr,
		limiter:      limiter,
		maxBatchSize: opts.MaxBatchSize,
		maxAttempts:  opts.MaxAttempts,
		baseDelay:    opts.BaseDelay,
		logger:       logger,
	}
}

// UpsertAll writes items to the index in bounded batches. Each item is
// committed to the tracker individually once its batch succeeds. Returns the
// number of index calls made and one error per item in batches that exhausted
// their retries.
func (s *Synchronizer) UpsertAll(ctx context.Context, items []UpsertItem) (calls int, errs []models.SyncError) {
	for start := 0; start < len(items); start += s.maxBatchSize {
		end := start + s.maxBatchSize
		if end > len(items) {
			end = len(items)
		}
		batch := items[start:end]

		docs := make([]*models.VectorDocument, len(batch))
		for i, item := range batch {
			docs[i] = item.Doc
		}

		batchCalls, err := s.withRetry(ctx, func(c context.Context) error {
			return s.index.Upsert(c, docs)
		})
		calls += batchCalls
		if err != nil {
			s.logger.Warn("upsert batch failed after retries",
				zap.Int("batch_size", len(batch)), zap.Error(err))
			for _, item := range batch {
				errs = append(errs, models.SyncError{
					JobNumber: item.JobNumber,
					Stage:     "index_upsert",
					Message:   err.Error(),
				})
			}
			continue
		}
		for _, item := range batch {
			s.tracker.Commit(item.JobNumber, item.Fingerprint)
		}
	}
	return calls, errs
}

// DeleteAll removes the vectors for the given job numbers in bounded batches,
// committing each deletion only after the index confirms it. Returns index
// call count, the number of confirmed deletions, and per-item errors for
// batches that exhausted their retries.
func (s *Synchronizer) DeleteAll(ctx context.Context, jobNumbers []string) (calls, deleted int, errs []models.SyncError) {
	for start := 0; start < len(jobNumbers); start += s.maxBatchSize {
		end := start + s.maxBatchSize
		if end > len(jobNumbers) {
			end = len(jobNumbers)
		}
		batch := jobNumbers[start:end]

		vectorIDs := make([]string, len(batch))
		for i, job := range batch {
			vectorIDs[i] = fingerprint.VectorID(job)
		}

		batchCalls, err := s.withRetry(ctx, func(c context.Context) error {
			return s.index.Delete(c, vectorIDs)
		})
		calls += batchCalls
		if err != nil {
			s.logger.Warn("delete batch failed after retries",
				zap.Int("batch_size", len(batch)), zap.Error(err))
			for _, job := range batch {
				errs = append(errs, models.SyncError{
					JobNumber: job,
					Stage:     "index_delete",
					Message:   err.Error(),
				})
			}
			continue
		}
		for _, job := range batch {
			s.tracker.CommitDeletion(job)
		}
		deleted += len(batch)
	}
	return calls, deleted, errs
}

// withRetry runs op up to maxAttempts times with exponential backoff, pacing
// every attempt through the rate limiter.
func (s *Synchronizer) withRetry(ctx context.Context, op func(context.Context) error) (calls int, err error) {
	for attempt := 0; attempt < s.maxAttempts; attempt++ {
		if attempt > 0 {
			delay := s.baseDelay * (1 << (attempt - 1))
			if delay > maxBackoffDelay {
				delay = maxBackoffDelay
			}
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return calls, ctx.Err()
			}
		}
		if waitErr := s.limiter.Wait(ctx); waitErr != nil {
			return calls, waitErr
		}
		calls++
		if err = op(ctx); err == nil {
			return calls, nil
		}
		s.logger.Debug("index call failed",
			zap.Int("attempt", attempt+1), zap.Int("max_attempts", s.maxAttempts), zap.Error(err))
	}
	return calls, fmt.Errorf("exhausted %d attempts: %w", s.maxAttempts, err)
}
