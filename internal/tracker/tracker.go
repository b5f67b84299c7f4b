// Package tracker maintains the persisted record-to-fingerprint state that
// defines what is currently represented in the vector index.
package tracker

import (
	"context"
	"sync"
	"time"

	"github.com/hyperjump/soroe/internal/fingerprint"
	"github.com/hyperjump/soroe/internal/models"
	"go.uber.org/zap"
)

const (
	historyCap      = 50
	deletedAuditCap = 1000
)

// State is the serializable snapshot of tracker state.
type State struct {
	ProcessedIDs        []string              `json:"processed_ids"`
	Fingerprints        map[string]string     `json:"fingerprints"`
	DeletedIDs          []string              `json:"deleted_ids"`
	LastSyncTime        time.Time             `json:"last_sync_time"`
	LastFullRebuildTime time.Time             `json:"last_full_rebuild_time"`
	History             []models.SyncRunStats `json:"history"`
}

// Summary reports tracker state for health checks.
type Summary struct {
	TrackedRecords      int       `json:"tracked_records"`
	DeletedRecords      int       `json:"deleted_records"`
	LastSyncTime        time.Time `json:"last_sync_time"`
	LastFullRebuildTime time.Time `json:"last_full_rebuild_time,omitempty"`
}

// Tracker holds the identity → fingerprint map for records currently in the
// index. Mutations (Commit, CommitDeletion, Reset) are serialized by the
// orchestrator; read access (Summary, History) may be concurrent.
//
// Invariant: the fingerprint key set equals the processed-id set after every
// committed cycle. An identity enters both only after its vector is confirmed
// written, and leaves both only after its vector is confirmed deleted.
type Tracker struct {
	mu                  sync.RWMutex
	fingerprints        map[string]fingerprint.Fingerprint
	deletedIDs          []string
	lastSyncTime        time.Time
	lastFullRebuildTime time.Time
	history             []models.SyncRunStats

	store  Store
	logger *zap.Logger
}

// NewTracker creates an empty tracker backed by store. logger may be nil.
func NewTracker(store Store, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{
		fingerprints: make(map[string]fingerprint.Fingerprint),
		store:        store,
		logger:       logger,
	}
}

// Load restores persisted state. Missing or malformed state is logged and
// treated as empty; startup never fails on tracker corruption.
func (t *Tracker) Load(ctx context.Context) {
	state, err := t.store.Load(ctx)
	if err != nil {
		t.logger.Warn("tracker state unreadable, starting empty", zap.Error(err))
		return
	}
	if state == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.fingerprints = make(map[string]fingerprint.Fingerprint, len(state.Fingerprints))
	for id, fp := range state.Fingerprints {
		t.fingerprints[id] = fingerprint.Fingerprint(fp)
	}
	// Repair the invariant if a partial write left processed ids without
	// fingerprints: the fingerprint map is authoritative.
	for _, id := range state.ProcessedIDs {
		if _, ok := t.fingerprints[id]; !ok {
			t.logger.Warn("tracker state missing fingerprint for processed id, dropping", zap.String("id", id))
		}
	}
	t.deletedIDs = append([]string(nil), state.DeletedIDs...)
	t.lastSyncTime = state.LastSyncTime
	t.lastFullRebuildTime = state.LastFullRebuildTime
	t.history = append([]models.SyncRunStats(nil), state.History...)
}

// Partition classifies a full snapshot against tracker state: new if the
// identity is untracked, updated if tracked with a different fingerprint,
// unchanged otherwise. Tracked identities absent from the snapshot are
// deleted. An empty snapshot deletes everything.
func (t *Tracker) Partition(orders []*models.Order) models.Partition {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var p models.Partition
	seen := make(map[string]bool, len(orders))
	for _, o := range orders {
		if o.JobNumber == "" || seen[o.JobNumber] {
			continue
		}
		seen[o.JobNumber] = true
		tracked, ok := t.fingerprints[o.JobNumber]
		switch {
		case !ok:
			p.New = append(p.New, o)
		case tracked != fingerprint.Compute(o):
			p.Updated = append(p.Updated, o)
		default:
			p.Unchanged = append(p.Unchanged, o)
		}
	}
	for id := range t.fingerprints {
		if !seen[id] {
			p.DeletedIDs = append(p.DeletedIDs, id)
		}
	}
	return p
}

// Commit records that the vector for id was confirmed written. Must only be
// called after the index upsert succeeded.
func (t *Tracker) Commit(id string, fp fingerprint.Fingerprint) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.fingerprints[id] = fp
}

// CommitDeletion records that the vector for id was confirmed deleted. The
// identity leaves tracked state and joins the bounded deletion audit ring.
func (t *Tracker) CommitDeletion(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.fingerprints, id)
	t.deletedIDs = append(t.deletedIDs, id)
	if len(t.deletedIDs) > deletedAuditCap {
		t.deletedIDs = t.deletedIDs[len(t.deletedIDs)-deletedAuditCap:]
	}
}

// IsTracked reports whether id is currently represented in the index.
func (t *Tracker) IsTracked(id string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.fingerprints[id]
	return ok
}

// TrackedIDs returns the identities currently represented in the index.
func (t *Tracker) TrackedIDs() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ids := make([]string, 0, len(t.fingerprints))
	for id := range t.fingerprints {
		ids = append(ids, id)
	}
	return ids
}

// Reset clears all tracked state ahead of a full rebuild.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.fingerprints = make(map[string]fingerprint.Fingerprint)
	t.deletedIDs = nil
	t.lastFullRebuildTime = time.Now()
}

// FinishCycle stamps the sync time and appends run stats to the bounded history ring.
func (t *Tracker) FinishCycle(stats *models.SyncRunStats) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastSyncTime = time.Now()
	t.history = append(t.history, *stats)
	if len(t.history) > historyCap {
		t.history = t.history[len(t.history)-historyCap:]
	}
}

// Persist writes the full tracker state to durable storage.
func (t *Tracker) Persist(ctx context.Context) error {
	t.mu.RLock()
	state := t.snapshotLocked()
	t.mu.RUnlock()
	return t.store.Save(ctx, state)
}

func (t *Tracker) snapshotLocked() *State {
	state := &State{
		ProcessedIDs:        make([]string, 0, len(t.fingerprints)),
		Fingerprints:        make(map[string]string, len(t.fingerprints)),
		DeletedIDs:          append([]string(nil), t.deletedIDs...),
		LastSyncTime:        t.lastSyncTime,
		LastFullRebuildTime: t.lastFullRebuildTime,
		History:             append([]models.SyncRunStats(nil), t.history...),
	}
	for id, fp := range t.fingerprints {
		state.ProcessedIDs = append(state.ProcessedIDs, id)
		state.Fingerprints[id] = string(fp)
	}
	return state
}

// Summary returns a read-only view of tracker state for health reporting.
func (t *Tracker) Summary() Summary {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return Summary{
		TrackedRecords:      len(t.fingerprints),
		DeletedRecords:      len(t.deletedIDs),
		LastSyncTime:        t.lastSyncTime,
		LastFullRebuildTime: t.lastFullRebuildTime,
	}
}

// History returns a copy of the recent run stats ring, newest last.
func (t *Tracker) History() []models.SyncRunStats {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]models.SyncRunStats(nil), t.history...)
}
