package driven

import (
	"context"

	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
)

// ItemStore handles ingestion item persistence (PostgreSQL)
type ItemStore interface {
	// Get retrieves an item by ID
	Get(ctx context.Context, id string) (*domain.Item, error)

	// Save creates an item. Items are created by the upload collaborator;
	// the pipeline itself only updates them.
	Save(ctx context.Context, item *domain.Item) error

	// CompareAndSwap persists item only if the stored status still equals
	// expected. Returns domain.ErrStatusConflict when it does not and
	// domain.ErrNotFound when the item is missing. raw_location is never written.
	CompareAndSwap(ctx context.Context, item *domain.Item, expected domain.ItemStatus) error
}
