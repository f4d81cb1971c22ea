package postprocessors

import (
	"regexp"
	"strconv"
	"strings"
)

// pageMarker matches a page-boundary line emitted by extractors,
// e.g. "PAGE 2" or "--- PAGE 2 ---".
var pageMarker = regexp.MustCompile(`(?i)^\s*(?:-{2,}\s*)?PAGE\s+(\d+)(?:\s*-{2,})?\s*$`)

// Page is one page of normalized text
type Page struct {
	Number int
	Text   string
}

// ParsePages splits normalized text into pages using page markers.
// Text without markers is a single page numbered 1. Text before the first
// marker is kept as page 1 only when it is not blank. Page numbers only move
// forward: a marker that does not exceed the current page continues that
// page, so pages read in number order reproduce the source text order.
func ParsePages(text string) []Page {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	var (
		pages   []Page
		current = 1
		buf     strings.Builder
		marked  bool
	)

	flush := func(force bool) {
		body := strings.TrimSpace(buf.String())
		buf.Reset()
		if body == "" && !force {
			return
		}
		if last := len(pages) - 1; last >= 0 && pages[last].Number == current {
			if body != "" {
				if pages[last].Text != "" {
					pages[last].Text += "\n"
				}
				pages[last].Text += body
			}
			return
		}
		pages = append(pages, Page{Number: current, Text: body})
	}

	for _, line := range strings.Split(text, "\n") {
		m := pageMarker.FindStringSubmatch(line)
		if m == nil {
			buf.WriteString(line)
			buf.WriteByte('\n')
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil || n < 1 {
			buf.WriteString(line)
			buf.WriteByte('\n')
			continue
		}
		if marked && n <= current {
			continue
		}
		// Preamble before the first marker only counts when it has text.
		flush(marked)
		current = n
		marked = true
	}
	flush(marked)

	return pages
}
