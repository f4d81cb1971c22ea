package mocks

import (
	"context"
	"sort"
	"sync"

	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
)

// MockChunkStore is a mock implementation of ChunkStore for testing
type MockChunkStore struct {
	mu     sync.RWMutex
	byItem map[string][]*domain.Chunk

	// Optional hooks
	ReplaceFn func(itemID string, chunks []*domain.Chunk) error
}

// NewMockChunkStore creates a new MockChunkStore
func NewMockChunkStore() *MockChunkStore {
	return &MockChunkStore{
		byItem: make(map[string][]*domain.Chunk),
	}
}

func (m *MockChunkStore) ReplaceForItem(ctx context.Context, itemID string, chunks []*domain.Chunk) error {
	if m.ReplaceFn != nil {
		if err := m.ReplaceFn(itemID, chunks); err != nil {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	stored := make([]*domain.Chunk, len(chunks))
	for i, c := range chunks {
		cc := *c
		stored[i] = &cc
	}
	if len(stored) == 0 {
		delete(m.byItem, itemID)
		return nil
	}
	m.byItem[itemID] = stored
	return nil
}

func (m *MockChunkStore) GetByItem(ctx context.Context, itemID string) ([]*domain.Chunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*domain.Chunk, 0, len(m.byItem[itemID]))
	for _, c := range m.byItem[itemID] {
		cc := *c
		out = append(out, &cc)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PageNumber != out[j].PageNumber {
			return out[i].PageNumber < out[j].PageNumber
		}
		return out[i].LocalIndex < out[j].LocalIndex
	})
	return out, nil
}

func (m *MockChunkStore) CountByItem(ctx context.Context, itemID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byItem[itemID]), nil
}

func (m *MockChunkStore) DeleteByItem(ctx context.Context, itemID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.byItem, itemID)
	return nil
}
