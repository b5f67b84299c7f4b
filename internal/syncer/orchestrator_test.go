package syncer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hyperjump/soroe/internal/config"
	"github.com/hyperjump/soroe/internal/embedding"
	"github.com/hyperjump/soroe/internal/fingerprint"
	"github.com/hyperjump/soroe/internal/models"
	"github.com/hyperjump/soroe/internal/render"
	"github.com/hyperjump/soroe/internal/source"
	"github.com/hyperjump/soroe/internal/tracker"
	"github.com/hyperjump/soroe/internal/vecindex"
)

// recordingIndex wraps a MemoryIndex and records every write batch.
type recordingIndex struct {
	*vecindex.MemoryIndex
	mu            sync.Mutex
	upsertBatches [][]string
	deleteBatches [][]string
}

func newRecordingIndex(t *testing.T) *recordingIndex {
	t.Helper()
	mem, err := vecindex.NewMemoryIndex(4)
	if err != nil {
		t.Fatal(err)
	}
	return &recordingIndex{MemoryIndex: mem}
}

func (r *recordingIndex) Upsert(ctx context.Context, docs []*models.VectorDocument) error {
	if err := r.MemoryIndex.Upsert(ctx, docs); err != nil {
		return err
	}
	ids := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
	}
	r.mu.Lock()
	r.upsertBatches = append(r.upsertBatches, ids)
	r.mu.Unlock()
	return nil
}

func (r *recordingIndex) Delete(ctx context.Context, ids []string) error {
	if err := r.MemoryIndex.Delete(ctx, ids); err != nil {
		return err
	}
	r.mu.Lock()
	r.deleteBatches = append(r.deleteBatches, append([]string(nil), ids...))
	r.mu.Unlock()
	return nil
}

func (r *recordingIndex) upsertedIDs() map[string]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := make(map[string]int)
	for _, batch := range r.upsertBatches {
		for _, id := range batch {
			counts[id]++
		}
	}
	return counts
}

func (r *recordingIndex) deletedIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, batch := range r.deleteBatches {
		out = append(out, batch...)
	}
	return out
}

func order(job, status string) *models.Order {
	return &models.Order{JobNumber: job, Status: status, Customer: "Acme"}
}

type fixture struct {
	src          *source.StaticSource
	idx          *recordingIndex
	tracker      *tracker.Tracker
	embedder     *embedding.MockEmbedder
	orchestrator *Orchestrator
}

func newFixture(t *testing.T, cfg config.SyncConfig, orders ...*models.Order) *fixture {
	t.Helper()
	src := source.NewStaticSource(orders...)
	idx := newRecordingIndex(t)
	tr := newTestTracker(t)
	embedder := embedding.NewMockEmbedder(4)
	batcher := embedding.NewBatcher(embedder, 32)
	syn := NewSynchronizer(idx, tr, SynchronizerOptions{BaseDelay: time.Millisecond}, nil)
	return &fixture{
		src:          src,
		idx:          idx,
		tracker:      tr,
		embedder:     embedder,
		orchestrator: NewOrchestrator(src, tr, batcher, syn, cfg, nil),
	}
}

func TestIncrementalSyncScenario(t *testing.T) {
	a, b, c := order("A", "pending"), order("B", "pending"), order("C", "pending")
	f := newFixture(t, config.SyncConfig{}, a, b, c)
	ctx := context.Background()

	stats, err := f.orchestrator.RunIncrementalSync(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.New != 3 || stats.Updated != 0 || stats.Deleted != 0 {
		t.Fatalf("initial cycle stats = %+v", stats)
	}

	// B modified, D added, A removed.
	b2 := order("B", "shipped")
	d := order("D", "pending")
	f.src.SetOrders(b2, c, d)

	f.idx.mu.Lock()
	f.idx.upsertBatches = nil
	f.idx.deleteBatches = nil
	f.idx.mu.Unlock()

	stats, err = f.orchestrator.RunIncrementalSync(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.New != 1 || stats.Updated != 1 || stats.Unchanged != 1 || stats.Deleted != 1 {
		t.Fatalf("second cycle stats = %+v", stats)
	}

	counts := f.idx.upsertedIDs()
	if len(counts) != 2 {
		t.Errorf("upserted %d distinct ids, want 2 (B and D): %v", len(counts), counts)
	}
	if counts[fingerprint.VectorID("C")] != 0 {
		t.Error("unchanged order C was re-upserted")
	}
	deleted := f.idx.deletedIDs()
	if len(deleted) != 1 || deleted[0] != fingerprint.VectorID("A") {
		t.Errorf("deleted ids = %v, want exactly A", deleted)
	}
	if f.idx.Size() != 3 {
		t.Errorf("index size = %d, want 3", f.idx.Size())
	}
}

func TestIncrementalSyncIdempotent(t *testing.T) {
	f := newFixture(t, config.SyncConfig{}, order("A", "pending"), order("B", "pending"))
	ctx := context.Background()

	if _, err := f.orchestrator.RunIncrementalSync(ctx); err != nil {
		t.Fatal(err)
	}
	stats, err := f.orchestrator.RunIncrementalSync(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.New != 0 || stats.Updated != 0 || stats.Deleted != 0 || stats.Unchanged != 2 {
		t.Errorf("repeat cycle did work: %+v", stats)
	}
	if stats.EmbeddingCalls != 0 || stats.IndexCalls != 0 {
		t.Errorf("repeat cycle made provider calls: embed=%d index=%d",
			stats.EmbeddingCalls, stats.IndexCalls)
	}
}

func TestSyncEmbeddingFailureIsolated(t *testing.T) {
	bad := order("BAD", "pending")
	f := newFixture(t, config.SyncConfig{}, order("A", "pending"), bad, order("C", "pending"))
	f.embedder.FailText(render.SearchText(bad), errors.New("provider rejected input"))
	ctx := context.Background()

	stats, err := f.orchestrator.RunIncrementalSync(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Failed != 1 {
		t.Fatalf("failed = %d, want 1: %+v", stats.Failed, stats.Errors)
	}
	if f.idx.Size() != 2 {
		t.Errorf("index size = %d, want 2 (siblings of failed item survive)", f.idx.Size())
	}
	if f.tracker.IsTracked("BAD") {
		t.Error("failed item committed to tracker")
	}

	// The failed item heals on the next cycle once the provider recovers.
	f.embedder = embedding.NewMockEmbedder(4)
	f.orchestrator.batcher = embedding.NewBatcher(f.embedder, 32)
	stats, err = f.orchestrator.RunIncrementalSync(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.New != 1 || stats.Failed != 0 {
		t.Errorf("recovery cycle stats = %+v", stats)
	}
	if !f.tracker.IsTracked("BAD") {
		t.Error("recovered item not committed")
	}
}

func TestSyncIndexFailureRetriesNextCycle(t *testing.T) {
	f := newFixture(t, config.SyncConfig{}, order("A", "pending"))
	ctx := context.Background()

	// Fail every attempt of the first cycle.
	f.idx.FailWrites(3, errors.New("index down"))
	stats, err := f.orchestrator.RunIncrementalSync(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Failed != 1 || f.tracker.IsTracked("A") {
		t.Fatalf("failed upsert must stay uncommitted: %+v", stats)
	}

	stats, err = f.orchestrator.RunIncrementalSync(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.New != 1 || stats.Failed != 0 {
		t.Errorf("retry cycle stats = %+v", stats)
	}
	if !f.tracker.IsTracked("A") {
		t.Error("item not committed after index recovered")
	}
}

func TestSyncStatePersistsAcrossRestart(t *testing.T) {
	store := newTestStore(t)
	tr := tracker.NewTracker(store, nil)
	src := source.NewStaticSource(order("A", "pending"), order("B", "pending"))
	idx := newRecordingIndex(t)
	embedder := embedding.NewMockEmbedder(4)
	syn := NewSynchronizer(idx, tr, SynchronizerOptions{BaseDelay: time.Millisecond}, nil)
	orch := NewOrchestrator(src, tr, embedding.NewBatcher(embedder, 32), syn, config.SyncConfig{}, nil)

	if _, err := orch.RunIncrementalSync(context.Background()); err != nil {
		t.Fatal(err)
	}

	// Simulate restart: fresh tracker over the same store.
	tr2 := tracker.NewTracker(store, nil)
	tr2.Load(context.Background())
	part := tr2.Partition([]*models.Order{order("A", "pending"), order("B", "pending")})
	if len(part.New) != 0 || len(part.Updated) != 0 || len(part.Unchanged) != 2 {
		t.Errorf("reloaded tracker repartitioned unchanged snapshot: %+v", part)
	}
	if len(tr2.History()) != 1 {
		t.Errorf("history not persisted: %d entries", len(tr2.History()))
	}
}

func TestFullRebuildReembedsEverything(t *testing.T) {
	a, b := order("A", "pending"), order("B", "pending")
	f := newFixture(t, config.SyncConfig{}, a, b)
	ctx := context.Background()

	if _, err := f.orchestrator.RunIncrementalSync(ctx); err != nil {
		t.Fatal(err)
	}
	// Drop B before the rebuild; its stale vector must go.
	f.src.SetOrders(a)

	stats, err := f.orchestrator.RunFullRebuild(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Trigger != models.TriggerRebuild {
		t.Errorf("trigger = %q", stats.Trigger)
	}
	if stats.New != 1 || stats.Unchanged != 0 {
		t.Errorf("rebuild must treat the snapshot as new: %+v", stats)
	}
	if stats.Deleted != 1 {
		t.Errorf("stale vector not deleted: %+v", stats)
	}
	if f.idx.Size() != 1 || f.idx.Get(fingerprint.VectorID("B")) != nil {
		t.Errorf("index size = %d after rebuild", f.idx.Size())
	}
	if f.tracker.Summary().LastFullRebuildTime.IsZero() {
		t.Error("rebuild time not stamped")
	}
}

func TestSyncRejectsConcurrentCycle(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	src := &blockingSource{release: release, started: started}
	idx := newRecordingIndex(t)
	tr := newTestTracker(t)
	syn := NewSynchronizer(idx, tr, SynchronizerOptions{BaseDelay: time.Millisecond}, nil)
	orch := NewOrchestrator(src, tr, embedding.NewBatcher(embedding.NewMockEmbedder(4), 32), syn, config.SyncConfig{}, nil)

	done := make(chan error, 1)
	go func() {
		_, err := orch.RunIncrementalSync(context.Background())
		done <- err
	}()
	<-started

	if _, err := orch.RunIncrementalSync(context.Background()); !errors.Is(err, ErrCycleInProgress) {
		t.Errorf("concurrent cycle err = %v, want ErrCycleInProgress", err)
	}
	if !orch.Running() {
		t.Error("Running() = false while a cycle is in flight")
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatal(err)
	}
	if orch.Running() {
		t.Error("Running() = true after cycle finished")
	}
}

func TestSyncSkipsBelowChangeThreshold(t *testing.T) {
	cfg := config.SyncConfig{MinChangedCount: 3}
	f := newFixture(t, cfg,
		order("A", "pending"), order("B", "pending"), order("C", "pending"), order("D", "pending"))
	ctx := context.Background()

	// Initial cycle: four new records meet the threshold.
	stats, err := f.orchestrator.RunIncrementalSync(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Skipped || stats.New != 4 {
		t.Fatalf("initial cycle stats = %+v", stats)
	}

	// One change is below the threshold of three.
	f.src.SetOrders(order("A", "shipped"), order("B", "pending"), order("C", "pending"), order("D", "pending"))
	stats, err = f.orchestrator.RunIncrementalSync(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !stats.Skipped {
		t.Fatalf("small change not skipped: %+v", stats)
	}
	if f.tracker.IsTracked("A") && f.idx.Get(fingerprint.VectorID("A")) != nil {
		// A's old vector remains; the change was deferred, not applied.
		got := f.idx.Get(fingerprint.VectorID("A"))
		if got.Metadata["status"] == "shipped" {
			t.Error("skipped cycle still wrote the change")
		}
	}

	// A rebuild ignores the threshold entirely.
	stats, err = f.orchestrator.RunFullRebuild(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Skipped {
		t.Error("rebuild must never be skipped")
	}
}

func TestSyncSourceFailureAbortsCleanly(t *testing.T) {
	f := newFixture(t, config.SyncConfig{}, order("A", "pending"))
	f.src.SetError(errors.New("source down"))

	stats, err := f.orchestrator.RunIncrementalSync(context.Background())
	if err == nil {
		t.Fatal("expected error when snapshot fetch fails")
	}
	if stats == nil || stats.New != 0 {
		t.Errorf("aborted cycle reported work: %+v", stats)
	}
	if f.orchestrator.Phase() != PhaseFailed {
		t.Errorf("phase = %q, want failed", f.orchestrator.Phase())
	}
	if f.idx.Size() != 0 {
		t.Error("aborted cycle wrote to the index")
	}
}

func TestEmptySnapshotDeletesEverything(t *testing.T) {
	f := newFixture(t, config.SyncConfig{}, order("A", "pending"), order("B", "pending"))
	ctx := context.Background()

	if _, err := f.orchestrator.RunIncrementalSync(ctx); err != nil {
		t.Fatal(err)
	}
	f.src.SetOrders()

	stats, err := f.orchestrator.RunIncrementalSync(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Deleted != 2 || f.idx.Size() != 0 {
		t.Errorf("deleted=%d index size=%d", stats.Deleted, f.idx.Size())
	}
	if len(f.tracker.TrackedIDs()) != 0 {
		t.Error("tracker still holds identities after full deletion")
	}
}

type blockingSource struct {
	release <-chan struct{}
	started chan<- struct{}
	once    sync.Once
}

func (b *blockingSource) FetchAll(ctx context.Context) ([]*models.Order, error) {
	b.once.Do(func() { close(b.started) })
	select {
	case <-b.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return nil, nil
}
