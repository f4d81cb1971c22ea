package extractors

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
	"github.com/custodia-labs/sercha-ingest/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-ingest/internal/postprocessors"
)

var _ driven.Extractor = (*PlaintextExtractor)(nil)

// PlaintextExtractor handles pasted text and research notes. Page markers
// already present in the text are kept for the chunker.
type PlaintextExtractor struct{}

// NewPlaintextExtractor creates a plain text extractor.
func NewPlaintextExtractor() *PlaintextExtractor {
	return &PlaintextExtractor{}
}

func (e *PlaintextExtractor) Extract(ctx context.Context, src driven.ExtractionSource) (*driven.Extraction, error) {
	if !utf8.Valid(src.Data) {
		return nil, invalidContent(src, "content is not valid UTF-8 text")
	}

	text := normaliseText(string(src.Data))
	return &driven.Extraction{
		Text:      text,
		PageCount: len(postprocessors.ParsePages(text)),
		Metadata: map[string]string{
			"extractor": e.Name(),
		},
	}, nil
}

func (e *PlaintextExtractor) Kinds() []domain.ItemKind {
	return []domain.ItemKind{domain.ItemKindText, domain.ItemKindResearch}
}

func (e *PlaintextExtractor) Name() string {
	return "plaintext"
}

// normaliseText normalizes line endings, trims trailing spaces and collapses
// runs of blank lines.
func normaliseText(content string) string {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	content = strings.ReplaceAll(content, "\r", "\n")

	lines := strings.Split(content, "\n")
	out := make([]string, 0, len(lines))
	blank := 0
	for _, line := range lines {
		line = strings.TrimRight(line, " \t")
		if line == "" {
			blank++
			if blank > 1 {
				continue
			}
		} else {
			blank = 0
		}
		out = append(out, line)
	}

	return strings.TrimSpace(strings.Join(out, "\n"))
}
