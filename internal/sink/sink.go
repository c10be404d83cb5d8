// Package sink persists normalized records in bulk.
package sink

import (
	"context"

	"github.com/formstream/backend/internal/models"
)

// BulkSink accepts a batch of normalized records and reports how many were
// actually persisted. Implementations tolerate partial failure: a batch where
// some writes fail returns the confirmed count and a nil error.
type BulkSink interface {
	BulkInsert(ctx context.Context, records []models.NormalizedRecord) (int, error)
}
