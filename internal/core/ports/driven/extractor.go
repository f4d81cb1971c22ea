package driven

import (
	"context"

	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
)

// ExtractionSource is the input handed to an extractor
type ExtractionSource struct {
	ItemID      string
	Kind        domain.ItemKind
	RawLocation string
	Data        []byte
}

// Extraction is the normalized output of an extractor.
// Text may contain page markers understood by the chunker.
type Extraction struct {
	Text      string
	PageCount int
	Metadata  map[string]string
}

// Extractor converts raw bytes of one or more kinds into normalized text.
// Implementations must be safe to call repeatedly and must not mutate the source.
type Extractor interface {
	// Extract produces normalized text from raw content
	Extract(ctx context.Context, src ExtractionSource) (*Extraction, error)

	// Kinds returns the item kinds this extractor handles
	Kinds() []domain.ItemKind

	// Name returns the extractor name for logging
	Name() string
}

// ExtractorRegistry maps item kinds to extractors.
type ExtractorRegistry interface {
	// Get returns the extractor for kind, or domain.ErrNoExtractor
	Get(kind domain.ItemKind) (Extractor, error)

	// Register registers an extractor for all of its kinds, replacing previous ones
	Register(extractor Extractor)

	// Validate returns an error naming every kind without an extractor
	Validate() error
}
