package vecindex

import (
	"context"
	"fmt"
	"sync"

	"github.com/hyperjump/soroe/internal/models"
)

// MemoryIndex is an in-memory vector index keyed by document ID. Upsert
// overwrites documents with the same ID. Suitable for tests and local runs
// when no hosted index is configured.
type MemoryIndex struct {
	dimensions int
	docs       map[string]*models.VectorDocument
	mu         sync.RWMutex

	// failNext, when set, fails the next n write calls. Used to exercise
	// retry paths in tests.
	failNext int
	failErr  error
}

// NewMemoryIndex creates an in-memory vector index with the given dimension.
func NewMemoryIndex(dimensions int) (*MemoryIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	return &MemoryIndex{
		dimensions: dimensions,
		docs:       make(map[string]*models.VectorDocument),
	}, nil
}

// FailWrites makes the next n Upsert/Delete calls return err.
func (m *MemoryIndex) FailWrites(n int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNext = n
	m.failErr = err
}

func (m *MemoryIndex) takeFailure() error {
	if m.failNext > 0 {
		m.failNext--
		return m.failErr
	}
	return nil
}

// Upsert inserts or overwrites documents by ID.
func (m *MemoryIndex) Upsert(ctx context.Context, docs []*models.VectorDocument) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return err
	}
	for _, doc := range docs {
		if len(doc.Embedding) != m.dimensions {
			return fmt.Errorf("vector dimension mismatch for %s: got %d, expected %d",
				doc.ID, len(doc.Embedding), m.dimensions)
		}
		stored := &models.VectorDocument{
			ID:        doc.ID,
			Embedding: make([]float32, m.dimensions),
			Metadata:  make(map[string]interface{}, len(doc.Metadata)),
		}
		copy(stored.Embedding, doc.Embedding)
		for k, v := range doc.Metadata {
			stored.Metadata[k] = v
		}
		m.docs[doc.ID] = stored
	}
	return nil
}

// Delete removes documents by ID. Unknown IDs are ignored.
func (m *MemoryIndex) Delete(ctx context.Context, ids []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return err
	}
	for _, id := range ids {
		delete(m.docs, id)
	}
	return nil
}

// Stats returns the current document count and configured dimension.
func (m *MemoryIndex) Stats(ctx context.Context) (*IndexStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return &IndexStats{VectorCount: len(m.docs), Dimensions: m.dimensions}, nil
}

// Get returns the stored document for id, or nil when absent.
func (m *MemoryIndex) Get(id string) *models.VectorDocument {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.docs[id]
}

// Size returns the number of documents in the index.
func (m *MemoryIndex) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.docs)
}

// Close is a no-op for MemoryIndex.
func (m *MemoryIndex) Close() error {
	return nil
}
