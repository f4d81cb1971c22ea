package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
	"github.com/custodia-labs/sercha-ingest/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.ChunkStore = (*ChunkStore)(nil)

// ChunkStore implements driven.ChunkStore using PostgreSQL
// Note: Embeddings are stored in Vespa, not here
type ChunkStore struct {
	db *DB
}

// NewChunkStore creates a new ChunkStore
func NewChunkStore(db *DB) *ChunkStore {
	return &ChunkStore{db: db}
}

// ReplaceForItem deletes the item's chunks and inserts the new set in one
// transaction, so readers see either the old set or the new one.
func (s *ChunkStore) ReplaceForItem(ctx context.Context, itemID string, chunks []*domain.Chunk) error {
	return s.db.Transaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE item_id = $1`, itemID); err != nil {
			return err
		}

		query := `
			INSERT INTO chunks (id, item_id, page_number, local_index, text, token_count, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`
		now := time.Now()
		for _, chunk := range chunks {
			createdAt := chunk.CreatedAt
			if createdAt.IsZero() {
				createdAt = now
			}
			_, err := tx.ExecContext(ctx, query,
				chunk.ID,
				itemID,
				chunk.PageNumber,
				chunk.LocalIndex,
				chunk.Text,
				chunk.TokenCount,
				createdAt,
			)
			if err != nil {
				return err
			}
		}

		return nil
	})
}

// GetByItem retrieves all chunks for an item in citation order
func (s *ChunkStore) GetByItem(ctx context.Context, itemID string) ([]*domain.Chunk, error) {
	query := `
		SELECT id, item_id, page_number, local_index, text, token_count, created_at
		FROM chunks
		WHERE item_id = $1
		ORDER BY page_number ASC, local_index ASC
	`

	rows, err := s.db.QueryContext(ctx, query, itemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []*domain.Chunk
	for rows.Next() {
		var chunk domain.Chunk
		err := rows.Scan(
			&chunk.ID,
			&chunk.ItemID,
			&chunk.PageNumber,
			&chunk.LocalIndex,
			&chunk.Text,
			&chunk.TokenCount,
			&chunk.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, &chunk)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return chunks, nil
}

// CountByItem returns the number of stored chunks for an item
func (s *ChunkStore) CountByItem(ctx context.Context, itemID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks WHERE item_id = $1`, itemID).Scan(&count)
	return count, err
}

// DeleteByItem deletes all chunks for an item
func (s *ChunkStore) DeleteByItem(ctx context.Context, itemID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM chunks WHERE item_id = $1`, itemID)
	return err
}
