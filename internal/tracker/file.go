package tracker

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// FileStore persists tracker state as a single JSON document. Writes go to a
// temp file and are renamed into place so a crash mid-write cannot corrupt
// the previous state.
type FileStore struct {
	path string
}

// NewFileStore creates a file store at path. Parent directories are created
// if they do not exist.
func NewFileStore(path string) (*FileStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create state directory: %w", err)
		}
	}
	return &FileStore{path: path}, nil
}

// Save writes the state document atomically.
func (s *FileStore) Save(_ context.Context, state *State) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal tracker state: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("write tracker state: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace tracker state: %w", err)
	}
	return nil
}

// Load reads the state document. Returns (nil, nil) when the file does not
// exist; a parse error is returned to the caller, which treats it as empty
// state.
func (s *FileStore) Load(_ context.Context) (*State, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read tracker state: %w", err)
	}
	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("parse tracker state: %w", err)
	}
	if state.Fingerprints == nil {
		state.Fingerprints = make(map[string]string)
	}
	return &state, nil
}

// Close is a no-op for FileStore.
func (s *FileStore) Close() error {
	return nil
}
