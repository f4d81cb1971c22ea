package extractors

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
	"github.com/custodia-labs/sercha-ingest/internal/core/ports/driven"
)

var _ driven.Extractor = (*TabularExtractor)(nil)

// previewRows is the number of data rows included in a tabular summary
const previewRows = 5

// TabularExtractor summarises delimited tables. Tabular items are not
// chunked; the summary is what gets stored as processed text.
type TabularExtractor struct{}

// NewTabularExtractor creates a CSV/TSV summary extractor.
func NewTabularExtractor() *TabularExtractor {
	return &TabularExtractor{}
}

func (e *TabularExtractor) Extract(ctx context.Context, src driven.ExtractionSource) (*driven.Extraction, error) {
	reader := csv.NewReader(bytes.NewReader(src.Data))
	reader.Comma = detectDelimiter(src.Data)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, invalidContent(src, "table is empty")
	}
	if err != nil {
		return nil, invalidContent(src, "failed to read header: "+err.Error())
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	var (
		rows    int
		preview [][]string
	)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, invalidContent(src, fmt.Sprintf("failed to read row %d: %v", rows+1, err))
		}
		rows++
		if len(preview) < previewRows {
			preview = append(preview, record)
		}
	}

	var buf strings.Builder
	fmt.Fprintf(&buf, "%d rows, %d columns: %s", rows, len(header), strings.Join(header, ", "))
	for _, record := range preview {
		buf.WriteString("\n")
		buf.WriteString(strings.Join(record, " | "))
	}

	return &driven.Extraction{
		Text:      buf.String(),
		PageCount: 1,
		Metadata: map[string]string{
			"extractor": e.Name(),
			"rows":      strconv.Itoa(rows),
			"columns":   strconv.Itoa(len(header)),
		},
	}, nil
}

func (e *TabularExtractor) Kinds() []domain.ItemKind {
	return []domain.ItemKind{domain.ItemKindTabular}
}

func (e *TabularExtractor) Name() string {
	return "tabular"
}

// detectDelimiter picks tab, semicolon or comma from the first line.
func detectDelimiter(data []byte) rune {
	line := data
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		line = data[:i]
	}

	best, bestCount := ',', bytes.Count(line, []byte{','})
	for _, d := range []rune{'\t', ';'} {
		if n := bytes.Count(line, []byte(string(d))); n > bestCount {
			best, bestCount = d, n
		}
	}
	return best
}
