package driving

import (
	"context"

	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
)

// IngestionService is the submission API consumed by the upstream CRUD layer.
// Items are created elsewhere in the UPLOADED status.
type IngestionService interface {
	// SubmitForProcessing starts processing of an UPLOADED item
	SubmitForProcessing(ctx context.Context, itemID string) (*domain.Task, error)

	// CancelProcessing requests cooperative cancellation of an in-flight item.
	// Returns false when the item has nothing to cancel.
	CancelProcessing(ctx context.Context, itemID string) (bool, error)

	// RetryProcessing restarts processing of an UPLOADED or ERROR item.
	// Rejections are reported in the result, not as errors.
	RetryProcessing(ctx context.Context, itemID string) (*domain.RetryResult, error)

	// GetItem retrieves an item by ID
	GetItem(ctx context.Context, itemID string) (*domain.Item, error)

	// GetTask retrieves a task snapshot by ID
	GetTask(ctx context.Context, taskID string) (*domain.Task, error)

	// ListChunks returns the chunks of an item in citation order
	ListChunks(ctx context.Context, itemID string) ([]*domain.Chunk, error)
}
