package extractors

import (
	"bytes"
	"context"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
	"github.com/custodia-labs/sercha-ingest/internal/core/ports/driven"
)

var _ driven.Extractor = (*HTMLExtractor)(nil)

// HTMLExtractor turns a fetched web page into readable text. Script, style
// and other non-content elements are dropped; block elements become line
// breaks so sentences from separate paragraphs do not run together.
type HTMLExtractor struct{}

// NewHTMLExtractor creates an HTML extractor for LINK items.
func NewHTMLExtractor() *HTMLExtractor {
	return &HTMLExtractor{}
}

func (e *HTMLExtractor) Extract(ctx context.Context, src driven.ExtractionSource) (*driven.Extraction, error) {
	doc, err := html.Parse(bytes.NewReader(src.Data))
	if err != nil {
		return nil, invalidContent(src, "failed to parse html: "+err.Error())
	}

	var (
		buf   strings.Builder
		title string
	)

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if skippedElements[n.DataAtom] {
				return
			}
			if n.DataAtom == atom.Title && title == "" {
				title = strings.TrimSpace(textContent(n))
				return
			}
		}
		if n.Type == html.TextNode {
			buf.WriteString(n.Data)
		}

		block := n.Type == html.ElementNode && blockElements[n.DataAtom]
		if block {
			buf.WriteString("\n")
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if block {
			buf.WriteString("\n")
		}
	}
	walk(doc)

	text := collapseSpaces(normaliseText(buf.String()))
	md := map[string]string{
		"extractor": e.Name(),
	}
	if title != "" {
		md["title"] = title
	}
	if text == "" {
		text = title
	}

	pages := 0
	if text != "" {
		pages = 1
	}
	return &driven.Extraction{
		Text:      text,
		PageCount: pages,
		Metadata:  md,
	}, nil
}

func (e *HTMLExtractor) Kinds() []domain.ItemKind {
	return []domain.ItemKind{domain.ItemKindLink}
}

func (e *HTMLExtractor) Name() string {
	return "html"
}

var skippedElements = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Template: true,
	atom.Svg:      true,
	atom.Iframe:   true,
}

var blockElements = map[atom.Atom]bool{
	atom.P:          true,
	atom.Div:        true,
	atom.Br:         true,
	atom.Li:         true,
	atom.Tr:         true,
	atom.H1:         true,
	atom.H2:         true,
	atom.H3:         true,
	atom.H4:         true,
	atom.H5:         true,
	atom.H6:         true,
	atom.Section:    true,
	atom.Article:    true,
	atom.Blockquote: true,
	atom.Pre:        true,
	atom.Table:      true,
	atom.Ul:         true,
	atom.Ol:         true,
	atom.Header:     true,
	atom.Footer:     true,
}

func textContent(n *html.Node) string {
	var buf strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			buf.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return buf.String()
}

// collapseSpaces collapses runs of spaces and tabs within each line and
// drops lines left empty.
func collapseSpaces(content string) string {
	lines := strings.Split(content, "\n")
	out := lines[:0]
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			continue
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}
