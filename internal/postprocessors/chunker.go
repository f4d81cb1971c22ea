package postprocessors

import (
	"fmt"
	"strings"
	"time"

	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
	"github.com/custodia-labs/sercha-ingest/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.Chunker = (*Chunker)(nil)

// DefaultMaxTokens is the per-chunk token budget used when none is configured
const DefaultMaxTokens = 200

// ChunkConfig configures the chunker behavior.
type ChunkConfig struct {
	// MaxTokens is the maximum number of tokens per chunk
	MaxTokens int
}

// DefaultChunkConfig returns sensible defaults.
func DefaultChunkConfig() ChunkConfig {
	return ChunkConfig{
		MaxTokens: DefaultMaxTokens,
	}
}

// Chunker packs sentences of each page into token-bounded chunks.
type Chunker struct {
	config    ChunkConfig
	tokenizer Tokenizer
}

// NewChunker creates a new chunker. A nil tokenizer selects WordTokenizer.
func NewChunker(config ChunkConfig, tokenizer Tokenizer) *Chunker {
	if config.MaxTokens <= 0 {
		config.MaxTokens = DefaultMaxTokens
	}
	if tokenizer == nil {
		tokenizer = WordTokenizer{}
	}
	return &Chunker{config: config, tokenizer: tokenizer}
}

// MaxTokens returns the per-chunk token budget
func (c *Chunker) MaxTokens() int {
	return c.config.MaxTokens
}

// Tokenizer returns the tokenizer used for budgets and counts
func (c *Chunker) Tokenizer() Tokenizer {
	return c.tokenizer
}

// Chunk splits text into chunks. Sentences are packed greedily until the
// next one would exceed the budget. A sentence longer than the budget is
// split at word boundaries; a single word that alone exceeds the budget is
// emitted as its own chunk.
func (c *Chunker) Chunk(itemID, text string) ([]*domain.Chunk, error) {
	if itemID == "" {
		return nil, fmt.Errorf("%w: item id is required", domain.ErrInvalidInput)
	}

	now := time.Now()
	var chunks []*domain.Chunk
	for _, page := range ParsePages(text) {
		for i, body := range c.pack(SplitSentences(page.Text)) {
			chunks = append(chunks, &domain.Chunk{
				ID:         domain.ChunkID(itemID, page.Number, i),
				ItemID:     itemID,
				PageNumber: page.Number,
				LocalIndex: i,
				Text:       body,
				TokenCount: c.tokenizer.Count(body),
				CreatedAt:  now,
			})
		}
	}
	return chunks, nil
}

// pack greedily joins sentences into chunk texts within the token budget
func (c *Chunker) pack(sentences []string) []string {
	var (
		out     []string
		current string
	)
	emit := func() {
		if current != "" {
			out = append(out, current)
			current = ""
		}
	}

	for _, s := range sentences {
		if current != "" {
			if candidate := current + " " + s; c.fits(candidate) {
				current = candidate
				continue
			}
			emit()
		}
		if c.fits(s) {
			current = s
			continue
		}

		pieces := c.splitWords(s)
		out = append(out, pieces[:len(pieces)-1]...)
		current = pieces[len(pieces)-1]
	}
	emit()
	return out
}

// splitWords splits an over-long sentence at word boundaries
func (c *Chunker) splitWords(sentence string) []string {
	var (
		out     []string
		current string
	)
	for _, w := range strings.Fields(sentence) {
		if current == "" {
			current = w
			continue
		}
		if candidate := current + " " + w; c.fits(candidate) {
			current = candidate
			continue
		}
		out = append(out, current)
		current = w
	}
	if current != "" {
		out = append(out, current)
	}
	return out
}

func (c *Chunker) fits(text string) bool {
	return c.tokenizer.Count(text) <= c.config.MaxTokens
}
