package driven

import "context"

// BlobStore reads raw item bytes and stores normalized text.
// Raw bytes are read-only from the pipeline's point of view.
type BlobStore interface {
	// ReadRaw returns the bytes at a raw location
	ReadRaw(ctx context.Context, location string) ([]byte, error)

	// PutProcessed stores normalized text for an item and returns its location
	PutProcessed(ctx context.Context, itemID string, text string) (string, error)

	// ReadProcessed returns normalized text previously stored with PutProcessed
	ReadProcessed(ctx context.Context, location string) (string, error)

	// DeleteProcessed removes normalized text. Missing locations are not an error.
	DeleteProcessed(ctx context.Context, location string) error
}
