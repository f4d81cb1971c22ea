package mocks

import (
	"context"
	"sync"

	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
)

// MockItemStore is a mock implementation of ItemStore for testing
type MockItemStore struct {
	mu    sync.RWMutex
	items map[string]*domain.Item

	// Optional hooks
	CompareAndSwapFn func(item *domain.Item, expected domain.ItemStatus) error
}

// NewMockItemStore creates a new MockItemStore
func NewMockItemStore() *MockItemStore {
	return &MockItemStore{
		items: make(map[string]*domain.Item),
	}
}

func (m *MockItemStore) Get(ctx context.Context, id string) (*domain.Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	item, ok := m.items[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneItem(item), nil
}

func (m *MockItemStore) Save(ctx context.Context, item *domain.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[item.ID] = cloneItem(item)
	return nil
}

func (m *MockItemStore) CompareAndSwap(ctx context.Context, item *domain.Item, expected domain.ItemStatus) error {
	if m.CompareAndSwapFn != nil {
		if err := m.CompareAndSwapFn(item, expected); err != nil {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.items[item.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if stored.Status != expected {
		return domain.ErrStatusConflict
	}
	next := cloneItem(item)
	next.RawLocation = stored.RawLocation
	m.items[item.ID] = next
	return nil
}

// SetStatus forces an item status (for test setup)
func (m *MockItemStore) SetStatus(id string, status domain.ItemStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if item, ok := m.items[id]; ok {
		item.Status = status
	}
}

func cloneItem(item *domain.Item) *domain.Item {
	c := *item
	if item.Metadata != nil {
		c.Metadata = make(map[string]string, len(item.Metadata))
		for k, v := range item.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}
