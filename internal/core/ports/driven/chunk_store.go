package driven

import (
	"context"

	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
)

// ChunkStore handles chunk persistence (PostgreSQL).
// Embeddings live in the index, not here.
type ChunkStore interface {
	// ReplaceForItem atomically supersedes every chunk of itemID with chunks
	ReplaceForItem(ctx context.Context, itemID string, chunks []*domain.Chunk) error

	// GetByItem retrieves chunks ordered by page and local index
	GetByItem(ctx context.Context, itemID string) ([]*domain.Chunk, error)

	// CountByItem returns the number of stored chunks for itemID
	CountByItem(ctx context.Context, itemID string) (int, error)

	// DeleteByItem removes all chunks of itemID
	DeleteByItem(ctx context.Context, itemID string) error
}
