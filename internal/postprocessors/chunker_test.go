package postprocessors

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
)

const threePages = `PAGE 1
The cat sat. The dog ran.
PAGE 2
Birds fly high. Fish swim deep.
PAGE 3
Trees grow tall. Rain falls down.`

func TestNewChunker_Defaults(t *testing.T) {
	c := NewChunker(ChunkConfig{}, nil)
	if c.MaxTokens() != DefaultMaxTokens {
		t.Errorf("expected max tokens %d, got %d", DefaultMaxTokens, c.MaxTokens())
	}
	if c.Tokenizer().Name() != TokenizerWord {
		t.Errorf("expected word tokenizer, got %s", c.Tokenizer().Name())
	}
}

func TestChunker_ThreePagesOneChunkPerSentence(t *testing.T) {
	c := NewChunker(ChunkConfig{MaxTokens: 3}, WordTokenizer{})

	chunks, err := c.Chunk("item1", threePages)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{
		"item1_page_1_chunk_0",
		"item1_page_1_chunk_1",
		"item1_page_2_chunk_0",
		"item1_page_2_chunk_1",
		"item1_page_3_chunk_0",
		"item1_page_3_chunk_1",
	}
	if len(chunks) != len(want) {
		t.Fatalf("expected %d chunks, got %d", len(want), len(chunks))
	}
	for i, id := range want {
		if chunks[i].ID != id {
			t.Errorf("chunk %d: expected id %s, got %s", i, id, chunks[i].ID)
		}
		if chunks[i].ItemID != "item1" {
			t.Errorf("chunk %d: expected item id item1, got %s", i, chunks[i].ItemID)
		}
		if chunks[i].TokenCount != 3 {
			t.Errorf("chunk %d: expected 3 tokens, got %d", i, chunks[i].TokenCount)
		}
	}
	if chunks[3].Text != "Fish swim deep." {
		t.Errorf("unexpected text for chunk 3: %q", chunks[3].Text)
	}
	if chunks[4].PageNumber != 3 || chunks[4].LocalIndex != 0 {
		t.Errorf("expected page 3 index 0, got page %d index %d", chunks[4].PageNumber, chunks[4].LocalIndex)
	}
}

func TestChunker_PacksSentencesWithinBudget(t *testing.T) {
	c := NewChunker(ChunkConfig{MaxTokens: 6}, WordTokenizer{})

	chunks, err := c.Chunk("item1", threePages)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	if chunks[0].Text != "The cat sat. The dog ran." {
		t.Errorf("unexpected text: %q", chunks[0].Text)
	}
	if chunks[2].ID != "item1_page_3_chunk_0" {
		t.Errorf("unexpected id: %s", chunks[2].ID)
	}
}

func TestChunker_EmptyInput(t *testing.T) {
	c := NewChunker(DefaultChunkConfig(), nil)

	for _, text := range []string{"", "   \n\t", "PAGE 1\n\nPAGE 2\n"} {
		chunks, err := c.Chunk("item1", text)
		if err != nil {
			t.Fatalf("unexpected error for %q: %v", text, err)
		}
		if len(chunks) != 0 {
			t.Errorf("expected no chunks for %q, got %d", text, len(chunks))
		}
	}
}

func TestChunker_EmptyPageSkipped(t *testing.T) {
	c := NewChunker(DefaultChunkConfig(), nil)

	chunks, err := c.Chunk("doc", "PAGE 1\nFirst page.\nPAGE 2\n\nPAGE 3\nThird page.")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	if chunks[1].ID != "doc_page_3_chunk_0" {
		t.Errorf("expected doc_page_3_chunk_0, got %s", chunks[1].ID)
	}
}

func TestChunker_NoMarkersIsPageOne(t *testing.T) {
	c := NewChunker(DefaultChunkConfig(), nil)

	chunks, err := c.Chunk("note", "Just some pasted text. Nothing else.")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0].ID != "note_page_1_chunk_0" {
		t.Errorf("expected note_page_1_chunk_0, got %s", chunks[0].ID)
	}
}

func TestChunker_RequiresItemID(t *testing.T) {
	c := NewChunker(DefaultChunkConfig(), nil)

	_, err := c.Chunk("", "text")
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestChunker_LongSentenceSplitAtWords(t *testing.T) {
	c := NewChunker(ChunkConfig{MaxTokens: 5}, WordTokenizer{})

	words := make([]string, 12)
	for i := range words {
		words[i] = fmt.Sprintf("w%d", i)
	}
	sentence := strings.Join(words, " ") + "."

	chunks, err := c.Chunk("long", sentence)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	if chunks[0].Text != "w0 w1 w2 w3 w4" {
		t.Errorf("unexpected first piece: %q", chunks[0].Text)
	}
	if chunks[2].Text != "w10 w11." {
		t.Errorf("unexpected last piece: %q", chunks[2].Text)
	}
	for i, ch := range chunks {
		if ch.LocalIndex != i {
			t.Errorf("expected local index %d, got %d", i, ch.LocalIndex)
		}
	}
}

func TestChunker_SplitRemainderPacksWithNextSentence(t *testing.T) {
	c := NewChunker(ChunkConfig{MaxTokens: 4}, WordTokenizer{})

	chunks, err := c.Chunk("x", "One two three four five six. Seven.")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	if chunks[1].Text != "five six. Seven." {
		t.Errorf("unexpected second chunk: %q", chunks[1].Text)
	}
}

// charTokenizer counts characters, so one long word can exceed the budget.
type charTokenizer struct{}

func (charTokenizer) Count(text string) int { return len([]rune(text)) }
func (charTokenizer) Name() string          { return "char" }

func TestChunker_OversizedWordEmittedAlone(t *testing.T) {
	c := NewChunker(ChunkConfig{MaxTokens: 5}, charTokenizer{})

	chunks, err := c.Chunk("x", "ab supercalifragilistic cd")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	if chunks[1].Text != "supercalifragilistic" {
		t.Errorf("expected oversized word alone, got %q", chunks[1].Text)
	}
}

func longDocument() string {
	var b strings.Builder
	for p := 1; p <= 4; p++ {
		fmt.Fprintf(&b, "--- PAGE %d ---\n", p)
		for s := 0; s < 25; s++ {
			fmt.Fprintf(&b, "Sentence %d on page %d has", s, p)
			for w := 0; w < s%9; w++ {
				fmt.Fprintf(&b, " word%d", w)
			}
			b.WriteString(" in it. ")
			if s%5 == 4 {
				b.WriteString("\n\n")
			}
		}
		b.WriteString("\n")
	}
	return b.String()
}

func TestChunker_Deterministic(t *testing.T) {
	c := NewChunker(ChunkConfig{MaxTokens: 20}, WordTokenizer{})
	text := longDocument()

	first, err := c.Chunk("det", text)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := c.Chunk("det", text)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(first) != len(second) {
		t.Fatalf("chunk counts differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].ID != second[i].ID || first[i].Text != second[i].Text {
			t.Errorf("chunk %d differs between runs", i)
		}
	}
}

func TestChunker_TokenBound(t *testing.T) {
	for _, max := range []int{1, 3, 7, 20, 200} {
		c := NewChunker(ChunkConfig{MaxTokens: max}, WordTokenizer{})
		chunks, err := c.Chunk("bound", longDocument())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		for _, ch := range chunks {
			if ch.TokenCount > max {
				t.Errorf("max %d: chunk %s has %d tokens", max, ch.ID, ch.TokenCount)
			}
			if ch.TokenCount == 0 {
				t.Errorf("max %d: chunk %s is empty", max, ch.ID)
			}
		}
	}
}

func TestChunker_PreservesOrder(t *testing.T) {
	text := longDocument()
	c := NewChunker(ChunkConfig{MaxTokens: 13}, WordTokenizer{})

	chunks, err := c.Chunk("order", text)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var got []string
	lastPage, lastIndex := 0, -1
	for _, ch := range chunks {
		if ch.PageNumber < lastPage || (ch.PageNumber == lastPage && ch.LocalIndex != lastIndex+1) {
			t.Fatalf("chunk %s out of order", ch.ID)
		}
		if ch.PageNumber != lastPage {
			if ch.LocalIndex != 0 {
				t.Fatalf("chunk %s should restart at index 0", ch.ID)
			}
			lastPage = ch.PageNumber
		}
		lastIndex = ch.LocalIndex
		got = append(got, ch.Text)
	}

	var want []string
	for _, line := range strings.Split(text, "\n") {
		if pageMarker.MatchString(line) {
			continue
		}
		want = append(want, line)
	}

	if strings.Join(strings.Fields(strings.Join(got, " ")), " ") != strings.Join(strings.Fields(strings.Join(want, " ")), " ") {
		t.Error("concatenated chunks do not reproduce the source text")
	}
}

func TestChunker_Tiktoken(t *testing.T) {
	if os.Getenv("SERCHA_TEST_TIKTOKEN") == "" {
		t.Skip("set SERCHA_TEST_TIKTOKEN to load the cl100k_base encoding")
	}
	tok, err := NewTokenizer(TokenizerCL100KBase)
	if err != nil {
		t.Fatalf("load tokenizer: %v", err)
	}
	c := NewChunker(ChunkConfig{MaxTokens: 16}, tok)

	chunks, err := c.Chunk("tik", longDocument())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, ch := range chunks {
		if ch.TokenCount > 16 {
			t.Errorf("chunk %s has %d tokens", ch.ID, ch.TokenCount)
		}
	}

	// A single word longer than the budget is kept whole, so its chunk is
	// the one place the bound can be exceeded.
	long := "https://example.com/blob/" + strings.Repeat("9f3ac1d7", 25)
	chunks, err = c.Chunk("tik", "See "+long+" for details.")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	holders := 0
	for _, ch := range chunks {
		if strings.Contains(ch.Text, "9f3ac1d7") {
			holders++
			if ch.Text != long {
				t.Errorf("expected the long word alone, got %q", ch.Text)
			}
			if ch.TokenCount <= 16 {
				t.Errorf("expected the long word to exceed the budget, got %d tokens", ch.TokenCount)
			}
			continue
		}
		if ch.TokenCount > 16 {
			t.Errorf("chunk %s has %d tokens", ch.ID, ch.TokenCount)
		}
	}
	if holders != 1 {
		t.Errorf("expected the long word in exactly one chunk, got %d", holders)
	}
}
