package driven

import "github.com/custodia-labs/sercha-ingest/internal/core/domain"

// Chunker splits normalized text into ordered, citable chunks.
// Implementations must be pure: the same input always yields the same chunks.
type Chunker interface {
	// Chunk returns the chunks for itemID in (page, local index) order.
	// Empty text yields no chunks and no error.
	Chunk(itemID, text string) ([]*domain.Chunk, error)

	// MaxTokens returns the per-chunk token budget
	MaxTokens() int
}
