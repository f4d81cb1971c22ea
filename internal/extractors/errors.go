package extractors

import (
	"fmt"

	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
	"github.com/custodia-labs/sercha-ingest/internal/core/ports/driven"
)

func invalidContent(src driven.ExtractionSource, reason string) error {
	return fmt.Errorf("%w: %s item %s: %s", domain.ErrExtractionFailed, src.Kind, src.ItemID, reason)
}
