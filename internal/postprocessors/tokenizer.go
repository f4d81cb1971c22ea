package postprocessors

import (
	"fmt"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// Tokenizer counts tokens. Counts must be reproducible: the same text always
// yields the same count.
type Tokenizer interface {
	Count(text string) int
	Name() string
}

// Tokenizer names accepted by NewTokenizer
const (
	TokenizerWord       = "word"
	TokenizerCL100KBase = "cl100k_base"
)

// NewTokenizer returns the tokenizer registered under name.
// An empty name selects the word tokenizer.
func NewTokenizer(name string) (Tokenizer, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", TokenizerWord:
		return WordTokenizer{}, nil
	case TokenizerCL100KBase, "tiktoken":
		return NewTiktokenTokenizer(TokenizerCL100KBase)
	default:
		return nil, fmt.Errorf("unknown tokenizer %q", name)
	}
}

// WordTokenizer counts whitespace separated words. It needs no model files
// and is additive over space-joined text.
type WordTokenizer struct{}

// Count returns the number of words in text
func (WordTokenizer) Count(text string) int {
	return len(strings.Fields(text))
}

// Name returns the tokenizer name
func (WordTokenizer) Name() string {
	return TokenizerWord
}

// TiktokenTokenizer counts BPE tokens with a tiktoken encoding.
type TiktokenTokenizer struct {
	mu       sync.Mutex
	encoding string
	enc      *tiktoken.Tiktoken
}

// NewTiktokenTokenizer loads the named encoding. The first load may fetch
// the BPE ranks over the network unless TIKTOKEN_CACHE_DIR holds them.
func NewTiktokenTokenizer(encoding string) (*TiktokenTokenizer, error) {
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("load tiktoken encoding %s: %w", encoding, err)
	}
	return &TiktokenTokenizer{encoding: encoding, enc: enc}, nil
}

// Count returns the number of BPE tokens in text
func (t *TiktokenTokenizer) Count(text string) int {
	if text == "" {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.enc.Encode(text, nil, nil))
}

// Name returns the encoding name
func (t *TiktokenTokenizer) Name() string {
	return t.encoding
}
