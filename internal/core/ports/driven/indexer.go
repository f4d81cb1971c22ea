package driven

import (
	"context"

	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
)

// Indexer hands chunks to the retrieval index (Vespa).
// Index must tolerate re-submission after a partial prior failure.
type Indexer interface {
	// Index writes chunks for an item
	Index(ctx context.Context, itemID string, chunks []*domain.Chunk) error

	// DeleteByItem removes every indexed chunk of an item
	DeleteByItem(ctx context.Context, itemID string) error

	// HealthCheck verifies the index is available
	HealthCheck(ctx context.Context) error
}
