package models

import "time"

// Trigger identifies what started a sync cycle.
type Trigger string

const (
	TriggerIncremental Trigger = "incremental"
	TriggerRebuild     Trigger = "rebuild"
)

// Partition is the classification of a snapshot against tracker state.
type Partition struct {
	New        []*Order
	Updated    []*Order
	Unchanged  []*Order
	DeletedIDs []string
}

// SyncError describes a single failed item or batch within a run.
type SyncError struct {
	JobNumber string `json:"job_number,omitempty"`
	Stage     string `json:"stage"`
	Message   string `json:"message"`
}

// SyncRunStats summarizes one sync cycle. A run with a non-empty Errors list
// partially succeeded; callers distinguish full success, partial success, and
// aborted-before-work by inspecting stats plus the returned error.
type SyncRunStats struct {
	RunID          string      `json:"run_id"`
	Trigger        Trigger     `json:"trigger"`
	StartedAt      time.Time   `json:"started_at"`
	Elapsed        float64     `json:"elapsed_seconds"`
	New            int         `json:"new"`
	Updated        int         `json:"updated"`
	Unchanged      int         `json:"unchanged"`
	Deleted        int         `json:"deleted"`
	Failed         int         `json:"failed"`
	EmbeddingCalls int         `json:"embedding_calls"`
	IndexCalls     int         `json:"index_calls"`
	Skipped        bool        `json:"skipped,omitempty"`
	Errors         []SyncError `json:"errors,omitempty"`
}
