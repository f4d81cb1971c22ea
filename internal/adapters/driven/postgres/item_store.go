package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
	"github.com/custodia-labs/sercha-ingest/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.ItemStore = (*ItemStore)(nil)

// ItemStore implements driven.ItemStore using PostgreSQL
type ItemStore struct {
	db *DB
}

// NewItemStore creates a new ItemStore
func NewItemStore(db *DB) *ItemStore {
	return &ItemStore{db: db}
}

// Save creates or replaces an item
func (s *ItemStore) Save(ctx context.Context, item *domain.Item) error {
	metadataJSON, err := marshalMetadata(item.Metadata)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO items (
			id, owner_scope, kind, status, raw_location, processed_location,
			token_count, page_count, error_message, is_active, embedded,
			metadata, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO UPDATE SET
			owner_scope = EXCLUDED.owner_scope,
			kind = EXCLUDED.kind,
			status = EXCLUDED.status,
			raw_location = EXCLUDED.raw_location,
			processed_location = EXCLUDED.processed_location,
			token_count = EXCLUDED.token_count,
			page_count = EXCLUDED.page_count,
			error_message = EXCLUDED.error_message,
			is_active = EXCLUDED.is_active,
			embedded = EXCLUDED.embedded,
			metadata = EXCLUDED.metadata,
			updated_at = EXCLUDED.updated_at
	`

	_, err = s.db.ExecContext(ctx, query,
		item.ID,
		item.OwnerScope,
		item.Kind,
		item.Status,
		item.RawLocation,
		item.ProcessedLocation,
		item.TokenCount,
		item.PageCount,
		item.ErrorMessage,
		item.IsActive,
		item.Embedded,
		metadataJSON,
		item.CreatedAt,
		item.UpdatedAt,
	)
	return err
}

// Get retrieves an item by ID
func (s *ItemStore) Get(ctx context.Context, id string) (*domain.Item, error) {
	query := `
		SELECT id, owner_scope, kind, status, raw_location, processed_location,
			token_count, page_count, error_message, is_active, embedded,
			metadata, created_at, updated_at
		FROM items
		WHERE id = $1
	`

	var item domain.Item
	var metadataJSON []byte
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&item.ID,
		&item.OwnerScope,
		&item.Kind,
		&item.Status,
		&item.RawLocation,
		&item.ProcessedLocation,
		&item.TokenCount,
		&item.PageCount,
		&item.ErrorMessage,
		&item.IsActive,
		&item.Embedded,
		&metadataJSON,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &item.Metadata); err != nil {
			return nil, fmt.Errorf("decode item metadata: %w", err)
		}
	}

	return &item, nil
}

// CompareAndSwap writes the pipeline-owned columns of item only while the
// stored status equals expected. raw_location and owner_scope are never written.
func (s *ItemStore) CompareAndSwap(ctx context.Context, item *domain.Item, expected domain.ItemStatus) error {
	metadataJSON, err := marshalMetadata(item.Metadata)
	if err != nil {
		return err
	}

	query := `
		UPDATE items SET
			status = $3,
			processed_location = $4,
			token_count = $5,
			page_count = $6,
			error_message = $7,
			is_active = $8,
			embedded = $9,
			metadata = $10,
			updated_at = $11
		WHERE id = $1 AND status = $2
	`

	result, err := s.db.ExecContext(ctx, query,
		item.ID,
		expected,
		item.Status,
		item.ProcessedLocation,
		item.TokenCount,
		item.PageCount,
		item.ErrorMessage,
		item.IsActive,
		item.Embedded,
		metadataJSON,
		item.UpdatedAt,
	)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 1 {
		return nil
	}

	// Distinguish a missing item from a lost race
	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM items WHERE id = $1)`, item.ID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return domain.ErrNotFound
	}
	return fmt.Errorf("%w: item %s is no longer %s", domain.ErrStatusConflict, item.ID, expected)
}

func marshalMetadata(m map[string]string) ([]byte, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}
