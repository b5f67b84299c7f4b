// Package source fetches order snapshots from the system of record.
package source

import (
	"context"

	"github.com/hyperjump/soroe/internal/models"
)

// RecordSource returns the complete current snapshot of orders. A sync cycle
// always works from a full snapshot; the tracker derives the delta.
type RecordSource interface {
	FetchAll(ctx context.Context) ([]*models.Order, error)
}
