package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hyperjump/soroe/internal/config"
	"github.com/hyperjump/soroe/internal/embedding"
	"github.com/hyperjump/soroe/internal/fingerprint"
	"github.com/hyperjump/soroe/internal/models"
	"github.com/hyperjump/soroe/internal/render"
	"github.com/hyperjump/soroe/internal/source"
	"github.com/hyperjump/soroe/internal/tracker"
)

// ErrCycleInProgress is returned when a sync is requested while another cycle
// is running. At most one cycle runs at a time.
var ErrCycleInProgress = errors.New("sync cycle already in progress")

// Phase identifies where in a cycle the orchestrator currently is.
type Phase string

const (
	PhaseIdle         Phase = "idle"
	PhaseFetching     Phase = "fetching_snapshot"
	PhasePartitioning Phase = "partitioning"
	PhaseEmbedding    Phase = "embedding"
	PhaseUpserting    Phase = "upserting"
	PhaseDeleting     Phase = "deleting"
	PhasePersisting   Phase = "persisting"
	PhaseFailed       Phase = "failed"
)

// Orchestrator drives full sync cycles: fetch snapshot, partition against
// tracker state, embed changed records, apply index writes, persist tracker
// state. Cycles are serialized; concurrent requests are rejected with
// ErrCycleInProgress.
type Orchestrator struct {
	source  source.RecordSource
	tracker *tracker.Tracker
	batcher *embedding.Batcher
	syncer  *Synchronizer
	cfg     config.SyncConfig
	logger  *zap.Logger

	mu      sync.Mutex
	running bool
	phase   Phase
	lastRun *models.SyncRunStats
}

// NewOrchestrator wires the cycle pipeline. logger may be nil.
func NewOrchestrator(src source.RecordSource, tr *tracker.Tracker, batcher *embedding.Batcher, syn *Synchronizer, cfg config.SyncConfig, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		source:  src,
		tracker: tr,
		batcher: batcher,
		syncer:  syn,
		cfg:     cfg,
		logger:  logger,
		phase:   PhaseIdle,
	}
}

// RunIncrementalSync executes one incremental cycle: only records whose
// fingerprint changed are re-embedded and written.
func (o *Orchestrator) RunIncrementalSync(ctx context.Context) (*models.SyncRunStats, error) {
	return o.run(ctx, models.TriggerIncremental)
}

// RunFullRebuild clears tracker state and re-embeds every record in the
// snapshot. Vectors for records no longer in the snapshot are deleted.
func (o *Orchestrator) RunFullRebuild(ctx context.Context) (*models.SyncRunStats, error) {
	return o.run(ctx, models.TriggerRebuild)
}

// Phase returns the current cycle phase.
func (o *Orchestrator) Phase() Phase {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.phase
}

// Running reports whether a cycle is in flight.
func (o *Orchestrator) Running() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.running
}

// LastRun returns the stats of the most recently finished cycle, or nil.
func (o *Orchestrator) LastRun() *models.SyncRunStats {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.lastRun == nil {
		return nil
	}
	cp := *o.lastRun
	return &cp
}

func (o *Orchestrator) setPhase(p Phase) {
	o.mu.Lock()
	o.phase = p
	o.mu.Unlock()
}

func (o *Orchestrator) run(ctx context.Context, trigger models.Trigger) (*models.SyncRunStats, error) {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return nil, ErrCycleInProgress
	}
	o.running = true
	o.phase = PhaseFetching
	o.mu.Unlock()

	stats := &models.SyncRunStats{
		RunID:     uuid.NewString(),
		Trigger:   trigger,
		StartedAt: time.Now(),
	}
	defer func() {
		stats.Elapsed = time.Since(stats.StartedAt).Seconds()
		o.mu.Lock()
		o.running = false
		if o.phase != PhaseFailed {
			o.phase = PhaseIdle
		}
		cp := *stats
		o.lastRun = &cp
		o.mu.Unlock()
	}()

	if o.cfg.CycleTimeoutSeconds > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(o.cfg.CycleTimeoutSeconds)*time.Second)
		defer cancel()
	}

	log := o.logger.With(zap.String("run_id", stats.RunID), zap.String("trigger", string(trigger)))
	log.Info("sync cycle started")

	orders, err := o.source.FetchAll(ctx)
	if err != nil {
		o.setPhase(PhaseFailed)
		log.Error("snapshot fetch failed", zap.Error(err))
		return stats, fmt.Errorf("fetch snapshot: %w", err)
	}

	o.setPhase(PhasePartitioning)
	var part models.Partition
	if trigger == models.TriggerRebuild {
		part = o.rebuildPartition(orders)
	} else {
		part = o.tracker.Partition(orders)
	}
	stats.New = len(part.New)
	stats.Updated = len(part.Updated)
	stats.Unchanged = len(part.Unchanged)

	if trigger == models.TriggerIncremental && o.belowChangeThreshold(&part, len(orders)) {
		stats.Skipped = true
		log.Info("change volume below threshold, skipping cycle",
			zap.Int("new", stats.New), zap.Int("updated", stats.Updated),
			zap.Int("deleted", len(part.DeletedIDs)))
		o.finishCycle(ctx, stats, log)
		return stats, nil
	}

	changed := make([]*models.Order, 0, len(part.New)+len(part.Updated))
	changed = append(changed, part.New...)
	changed = append(changed, part.Updated...)

	o.setPhase(PhaseEmbedding)
	items, embedCalls, embedErrs := o.embedChanged(ctx, changed)
	stats.EmbeddingCalls = embedCalls
	stats.Errors = append(stats.Errors, embedErrs...)
	stats.Failed += len(embedErrs)

	o.setPhase(PhaseUpserting)
	upsertCalls, upsertErrs := o.syncer.UpsertAll(ctx, items)
	stats.IndexCalls += upsertCalls
	stats.Errors = append(stats.Errors, upsertErrs...)
	stats.Failed += len(upsertErrs)

	o.setPhase(PhaseDeleting)
	deleteCalls, deleted, deleteErrs := o.syncer.DeleteAll(ctx, part.DeletedIDs)
	stats.IndexCalls += deleteCalls
	stats.Deleted = deleted
	stats.Errors = append(stats.Errors, deleteErrs...)
	stats.Failed += len(deleteErrs)

	o.finishCycle(ctx, stats, log)

	log.Info("sync cycle finished",
		zap.Int("new", stats.New), zap.Int("updated", stats.Updated),
		zap.Int("unchanged", stats.Unchanged), zap.Int("deleted", stats.Deleted),
		zap.Int("failed", stats.Failed), zap.Float64("elapsed_seconds", stats.Elapsed))
	if err := ctx.Err(); err != nil {
		o.setPhase(PhaseFailed)
		return stats, err
	}
	return stats, nil
}

// rebuildPartition clears tracker state and treats the whole snapshot as new.
// Identities that were tracked before the reset but are absent from the
// snapshot still get their vectors deleted.
func (o *Orchestrator) rebuildPartition(orders []*models.Order) models.Partition {
	prevTracked := o.tracker.TrackedIDs()
	o.tracker.Reset()
	part := o.tracker.Partition(orders)

	inSnapshot := make(map[string]bool, len(orders))
	for _, ord := range orders {
		inSnapshot[ord.JobNumber] = true
	}
	for _, id := range prevTracked {
		if !inSnapshot[id] {
			part.DeletedIDs = append(part.DeletedIDs, id)
		}
	}
	return part
}

// belowChangeThreshold reports whether the detected change volume is too small
// to act on. Disabled when both knobs are zero.
func (o *Orchestrator) belowChangeThreshold(part *models.Partition, snapshotSize int) bool {
	if o.cfg.MinChangedCount <= 0 && o.cfg.MinChangedPercent <= 0 {
		return false
	}
	changed := len(part.New) + len(part.Updated) + len(part.DeletedIDs)
	if changed == 0 {
		return true
	}
	pct := 0.0
	if snapshotSize > 0 {
		pct = float64(changed) / float64(snapshotSize) * 100
	}
	belowCount := o.cfg.MinChangedCount <= 0 || changed < o.cfg.MinChangedCount
	belowPct := o.cfg.MinChangedPercent <= 0 || pct < o.cfg.MinChangedPercent
	return belowCount && belowPct
}

// embedChanged renders and embeds the changed orders, sharding the work across
// the configured concurrency. Items that fail to embed are reported and left
// untracked so the next cycle retries them.
func (o *Orchestrator) embedChanged(ctx context.Context, changed []*models.Order) ([]UpsertItem, int, []models.SyncError) {
	if len(changed) == 0 {
		return nil, 0, nil
	}

	texts := make([]string, len(changed))
	for i, ord := range changed {
		texts[i] = render.SearchText(ord)
	}

	concurrency := o.cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	shardSize := (len(texts) + concurrency - 1) / concurrency

	vectors := make([][]float32, len(texts))
	var (
		resMu      sync.Mutex
		itemErrs   []embedding.ItemError
		totalCalls int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for start := 0; start < len(texts); start += shardSize {
		start := start
		end := start + shardSize
		if end > len(texts) {
			end = len(texts)
		}
		g.Go(func() error {
			shardCtx := gctx
			if o.cfg.BatchTimeoutSeconds > 0 {
				var cancel context.CancelFunc
				shardCtx, cancel = context.WithTimeout(gctx, time.Duration(o.cfg.BatchTimeoutSeconds)*time.Second)
				defer cancel()
			}
			shardVectors, shardErrs, calls := o.batcher.EmbedAll(shardCtx, texts[start:end])
			resMu.Lock()
			copy(vectors[start:end], shardVectors)
			for _, e := range shardErrs {
				itemErrs = append(itemErrs, embedding.ItemError{Index: start + e.Index, Err: e.Err})
			}
			totalCalls += calls
			resMu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	var syncErrs []models.SyncError
	for _, e := range itemErrs {
		syncErrs = append(syncErrs, models.SyncError{
			JobNumber: changed[e.Index].JobNumber,
			Stage:     "embedding",
			Message:   e.Err.Error(),
		})
	}

	items := make([]UpsertItem, 0, len(changed))
	for i, ord := range changed {
		if vectors[i] == nil {
			continue
		}
		items = append(items, UpsertItem{
			JobNumber:   ord.JobNumber,
			Fingerprint: fingerprint.Compute(ord),
			Doc: &models.VectorDocument{
				ID:        fingerprint.VectorID(ord.JobNumber),
				Embedding: vectors[i],
				Metadata:  render.Metadata(ord),
			},
		})
	}
	return items, totalCalls, syncErrs
}

func (o *Orchestrator) finishCycle(ctx context.Context, stats *models.SyncRunStats, log *zap.Logger) {
	o.setPhase(PhasePersisting)
	o.tracker.FinishCycle(stats)
	// Persist even when the cycle deadline has passed: committed work must
	// survive a timeout.
	if err := o.tracker.Persist(context.WithoutCancel(ctx)); err != nil {
		log.Error("tracker persist failed", zap.Error(err))
		stats.Errors = append(stats.Errors, models.SyncError{
			Stage:   "persist",
			Message: err.Error(),
		})
	}
}
