package domain

import (
	"fmt"
	"time"
)

// Chunk is one retrieval-sized, citable slice of an item's normalized text
type Chunk struct {
	ID         string    `json:"chunk_id"`
	ItemID     string    `json:"item_id"`
	PageNumber int       `json:"page_number"`
	LocalIndex int       `json:"local_index"`
	Text       string    `json:"text"`
	TokenCount int       `json:"token_count"`
	Embedding  []float32 `json:"-"`
	CreatedAt  time.Time `json:"created_at"`
}

// ChunkID returns the stable citation id for a chunk position.
func ChunkID(itemID string, page, localIndex int) string {
	return fmt.Sprintf("%s_page_%d_chunk_%d", itemID, page, localIndex)
}

// TotalTokens sums token counts across chunks
func TotalTokens(chunks []*Chunk) int {
	total := 0
	for _, c := range chunks {
		total += c.TokenCount
	}
	return total
}
