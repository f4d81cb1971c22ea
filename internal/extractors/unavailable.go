package extractors

import (
	"context"
	"fmt"

	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
	"github.com/custodia-labs/sercha-ingest/internal/core/ports/driven"
)

var _ driven.Extractor = (*UnavailableExtractor)(nil)

// UnavailableExtractor fills kinds that need the remote extraction service
// when none is configured, so the registry stays exhaustive and items fail
// with a readable message instead of a missing-extractor error.
type UnavailableExtractor struct {
	kinds []domain.ItemKind
}

// NewUnavailableExtractor creates a placeholder for kinds.
func NewUnavailableExtractor(kinds ...domain.ItemKind) *UnavailableExtractor {
	return &UnavailableExtractor{kinds: kinds}
}

func (e *UnavailableExtractor) Extract(ctx context.Context, src driven.ExtractionSource) (*driven.Extraction, error) {
	return nil, fmt.Errorf("%w: no extraction service configured for %s items",
		domain.ErrExtractionFailed, src.Kind)
}

func (e *UnavailableExtractor) Kinds() []domain.ItemKind {
	return e.kinds
}

func (e *UnavailableExtractor) Name() string {
	return "unavailable"
}
