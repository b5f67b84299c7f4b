package tracker

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore persists tracker state in SQLite. Each Save replaces the full
// state inside one transaction, so a crash mid-write leaves the previous
// committed state intact.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates a SQLite database at dbPath and initializes
// the schema. Parent directories are created if they do not exist.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS tracked_records (
		id TEXT PRIMARY KEY,
		fingerprint TEXT NOT NULL,
		committed_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS tracker_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := db.Exec(schema)
	return err
}

const (
	metaKeyDeletedIDs      = "deleted_ids"
	metaKeyHistory         = "history"
	metaKeyLastSync        = "last_sync_time"
	metaKeyLastFullRebuild = "last_full_rebuild_time"
)

// Save replaces the persisted state in a single transaction.
func (s *SQLiteStore) Save(ctx context.Context, state *State) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM tracked_records`); err != nil {
		return fmt.Errorf("clear tracked records: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO tracked_records (id, fingerprint, committed_at) VALUES (?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now()
	for id, fp := range state.Fingerprints {
		if _, err := stmt.ExecContext(ctx, id, fp, now); err != nil {
			return fmt.Errorf("insert tracked record: %w", err)
		}
	}

	meta := map[string]interface{}{
		metaKeyDeletedIDs:      state.DeletedIDs,
		metaKeyHistory:         state.History,
		metaKeyLastSync:        state.LastSyncTime,
		metaKeyLastFullRebuild: state.LastFullRebuildTime,
	}
	for key, value := range meta {
		data, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("marshal meta %s: %w", key, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO tracker_meta (key, value) VALUES (?, ?)
			 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
			key, string(data),
		); err != nil {
			return fmt.Errorf("save meta %s: %w", key, err)
		}
	}
	return tx.Commit()
}

// Load reads the persisted state. Returns (nil, nil) when the database holds
// no state yet.
func (s *SQLiteStore) Load(ctx context.Context) (*State, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, fingerprint FROM tracked_records`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	state := &State{Fingerprints: make(map[string]string)}
	for rows.Next() {
		var id, fp string
		if err := rows.Scan(&id, &fp); err != nil {
			return nil, err
		}
		state.Fingerprints[id] = fp
		state.ProcessedIDs = append(state.ProcessedIDs, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	metaRows, err := s.db.QueryContext(ctx, `SELECT key, value FROM tracker_meta`)
	if err != nil {
		return nil, err
	}
	defer metaRows.Close()

	hasMeta := false
	for metaRows.Next() {
		var key, value string
		if err := metaRows.Scan(&key, &value); err != nil {
			return nil, err
		}
		hasMeta = true
		switch key {
		case metaKeyDeletedIDs:
			if err := json.Unmarshal([]byte(value), &state.DeletedIDs); err != nil {
				return nil, fmt.Errorf("unmarshal deleted ids: %w", err)
			}
		case metaKeyHistory:
			if err := json.Unmarshal([]byte(value), &state.History); err != nil {
				return nil, fmt.Errorf("unmarshal history: %w", err)
			}
		case metaKeyLastSync:
			if err := json.Unmarshal([]byte(value), &state.LastSyncTime); err != nil {
				return nil, fmt.Errorf("unmarshal last sync time: %w", err)
			}
		case metaKeyLastFullRebuild:
			if err := json.Unmarshal([]byte(value), &state.LastFullRebuildTime); err != nil {
				return nil, fmt.Errorf("unmarshal last rebuild time: %w", err)
			}
		}
	}
	if err := metaRows.Err(); err != nil {
		return nil, err
	}

	if len(state.Fingerprints) == 0 && !hasMeta {
		return nil, nil
	}
	return state, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
