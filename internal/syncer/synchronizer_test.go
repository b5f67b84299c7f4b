package syncer

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/hyperjump/soroe/internal/fingerprint"
	"github.com/hyperjump/soroe/internal/models"
	"github.com/hyperjump/soroe/internal/tracker"
	"github.com/hyperjump/soroe/internal/vecindex"
)

func newTestStore(t *testing.T) *tracker.FileStore {
	t.Helper()
	store, err := tracker.NewFileStore(filepath.Join(t.TempDir(), "tracker.json"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func newTestTracker(t *testing.T) *tracker.Tracker {
	t.Helper()
	return tracker.NewTracker(newTestStore(t), nil)
}

func upsertItem(job string, dims int) UpsertItem {
	o := &models.Order{JobNumber: job, Status: "in_production"}
	return UpsertItem{
		JobNumber:   job,
		Fingerprint: fingerprint.Compute(o),
		Doc: &models.VectorDocument{
			ID:        fingerprint.VectorID(job),
			Embedding: make([]float32, dims),
			Metadata:  map[string]interface{}{"job_number": job},
		},
	}
}

func TestUpsertAllCommitsAfterConfirmedWrite(t *testing.T) {
	idx, _ := vecindex.NewMemoryIndex(4)
	tr := newTestTracker(t)
	syn := NewSynchronizer(idx, tr, SynchronizerOptions{MaxBatchSize: 2}, nil)

	items := []UpsertItem{upsertItem("J1", 4), upsertItem("J2", 4), upsertItem("J3", 4)}
	calls, errs := syn.UpsertAll(context.Background(), items)
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	// 3 items at batch size 2 = 2 index calls.
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
	if idx.Size() != 3 {
		t.Errorf("index size = %d, want 3", idx.Size())
	}
	for _, job := range []string{"J1", "J2", "J3"} {
		if !tr.IsTracked(job) {
			t.Errorf("%s not committed after confirmed write", job)
		}
	}
}

func TestUpsertAllRetriesTransientFailure(t *testing.T) {
	idx, _ := vecindex.NewMemoryIndex(4)
	tr := newTestTracker(t)
	syn := NewSynchronizer(idx, tr, SynchronizerOptions{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
	}, nil)

	idx.FailWrites(2, errors.New("overloaded"))
	calls, errs := syn.UpsertAll(context.Background(), []UpsertItem{upsertItem("J1", 4)})
	if len(errs) != 0 {
		t.Fatalf("retry did not recover: %v", errs)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3 (two failures plus success)", calls)
	}
	if !tr.IsTracked("J1") {
		t.Error("item not committed after retried write succeeded")
	}
}

func TestUpsertAllExhaustedRetriesLeavesUncommitted(t *testing.T) {
	idx, _ := vecindex.NewMemoryIndex(4)
	tr := newTestTracker(t)
	syn := NewSynchronizer(idx, tr, SynchronizerOptions{
		MaxBatchSize: 10,
		MaxAttempts:  2,
		BaseDelay:    time.Millisecond,
	}, nil)

	idx.FailWrites(2, errors.New("hard down"))
	_, errs := syn.UpsertAll(context.Background(), []UpsertItem{upsertItem("J1", 4), upsertItem("J2", 4)})
	if len(errs) != 2 {
		t.Fatalf("got %d errors, want one per item in failed batch", len(errs))
	}
	if errs[0].Stage != "index_upsert" {
		t.Errorf("stage = %q", errs[0].Stage)
	}
	if tr.IsTracked("J1") || tr.IsTracked("J2") {
		t.Error("failed batch must stay uncommitted so the next cycle retries it")
	}
}

func TestDeleteAllCommitsDeletions(t *testing.T) {
	idx, _ := vecindex.NewMemoryIndex(4)
	tr := newTestTracker(t)
	syn := NewSynchronizer(idx, tr, SynchronizerOptions{}, nil)

	items := []UpsertItem{upsertItem("J1", 4), upsertItem("J2", 4)}
	if _, errs := syn.UpsertAll(context.Background(), items); len(errs) != 0 {
		t.Fatal(errs)
	}

	calls, deleted, errs := syn.DeleteAll(context.Background(), []string{"J1"})
	if len(errs) != 0 || deleted != 1 || calls != 1 {
		t.Fatalf("calls=%d deleted=%d errs=%v", calls, deleted, errs)
	}
	if tr.IsTracked("J1") {
		t.Error("deleted identity still tracked")
	}
	if !tr.IsTracked("J2") {
		t.Error("unrelated identity lost")
	}
	if idx.Get(fingerprint.VectorID("J1")) != nil {
		t.Error("vector not removed from index")
	}
}

func TestDeleteAllFailureLeavesTracked(t *testing.T) {
	idx, _ := vecindex.NewMemoryIndex(4)
	tr := newTestTracker(t)
	syn := NewSynchronizer(idx, tr, SynchronizerOptions{
		MaxAttempts: 2,
		BaseDelay:   time.Millisecond,
	}, nil)

	if _, errs := syn.UpsertAll(context.Background(), []UpsertItem{upsertItem("J1", 4)}); len(errs) != 0 {
		t.Fatal(errs)
	}
	idx.FailWrites(2, errors.New("down"))
	_, deleted, errs := syn.DeleteAll(context.Background(), []string{"J1"})
	if deleted != 0 || len(errs) != 1 {
		t.Fatalf("deleted=%d errs=%v", deleted, errs)
	}
	if !tr.IsTracked("J1") {
		t.Error("failed deletion must stay tracked so the next cycle retries it")
	}
}

func TestWithRetryHonorsContext(t *testing.T) {
	idx, _ := vecindex.NewMemoryIndex(4)
	tr := newTestTracker(t)
	syn := NewSynchronizer(idx, tr, SynchronizerOptions{
		MaxAttempts: 5,
		BaseDelay:   time.Hour,
	}, nil)

	idx.FailWrites(5, errors.New("down"))
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, errs := syn.UpsertAll(ctx, []UpsertItem{upsertItem("J1", 4)})
	if len(errs) != 1 {
		t.Fatalf("errs = %v", errs)
	}
	if time.Since(start) > time.Second {
		t.Error("cancelled context did not stop the backoff wait")
	}
}
