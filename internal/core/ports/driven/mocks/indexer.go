package mocks

import (
	"context"
	"sync"

	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
)

// MockIndexer is an in-memory Indexer for testing
type MockIndexer struct {
	mu      sync.RWMutex
	indexed map[string]map[string]*domain.Chunk

	// Optional hooks
	IndexFn  func(itemID string, chunks []*domain.Chunk) error
	DeleteFn func(itemID string) error

	indexCalls int
}

// NewMockIndexer creates a new MockIndexer
func NewMockIndexer() *MockIndexer {
	return &MockIndexer{
		indexed: make(map[string]map[string]*domain.Chunk),
	}
}

func (m *MockIndexer) Index(ctx context.Context, itemID string, chunks []*domain.Chunk) error {
	m.mu.Lock()
	m.indexCalls++
	m.mu.Unlock()

	if m.IndexFn != nil {
		if err := m.IndexFn(itemID, chunks); err != nil {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.indexed[itemID] == nil {
		m.indexed[itemID] = make(map[string]*domain.Chunk)
	}
	for _, c := range chunks {
		cc := *c
		m.indexed[itemID][c.ID] = &cc
	}
	return nil
}

func (m *MockIndexer) DeleteByItem(ctx context.Context, itemID string) error {
	if m.DeleteFn != nil {
		if err := m.DeleteFn(itemID); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.indexed, itemID)
	return nil
}

func (m *MockIndexer) HealthCheck(ctx context.Context) error {
	return nil
}

// Count returns the number of indexed chunks for an item
func (m *MockIndexer) Count(itemID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.indexed[itemID])
}

// Chunk returns an indexed chunk by id
func (m *MockIndexer) Chunk(itemID, chunkID string) *domain.Chunk {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.indexed[itemID][chunkID]
}

// IndexCalls returns how many Index batches were submitted
func (m *MockIndexer) IndexCalls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.indexCalls
}
