// Package vecindex defines the external vector index boundary and its adapters.
package vecindex

import (
	"context"

	"github.com/hyperjump/soroe/internal/models"
)

// Index defines upsert/delete/stats operations against a vector index
// provider. Batch size limits are the caller's responsibility; adapters
// forward whatever they receive in a single provider call.
type Index interface {
	Upsert(ctx context.Context, docs []*models.VectorDocument) error
	Delete(ctx context.Context, ids []string) error
	Stats(ctx context.Context) (*IndexStats, error)
	Close() error
}

// IndexStats describes the remote index.
type IndexStats struct {
	VectorCount int `json:"vector_count"`
	Dimensions  int `json:"dimensions"`
}
