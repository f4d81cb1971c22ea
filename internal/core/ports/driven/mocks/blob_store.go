package mocks

import (
	"context"
	"fmt"
	"sync"

	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
)

// MockBlobStore keeps raw bytes and processed text in memory
type MockBlobStore struct {
	mu        sync.RWMutex
	raw       map[string][]byte
	processed map[string]string

	// Optional hooks
	ReadRawFn func(location string) ([]byte, error)
}

// NewMockBlobStore creates a new MockBlobStore
func NewMockBlobStore() *MockBlobStore {
	return &MockBlobStore{
		raw:       make(map[string][]byte),
		processed: make(map[string]string),
	}
}

func (m *MockBlobStore) ReadRaw(ctx context.Context, location string) ([]byte, error) {
	if m.ReadRawFn != nil {
		return m.ReadRawFn(location)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.raw[location]
	if !ok {
		return nil, fmt.Errorf("raw %s: %w", location, domain.ErrNotFound)
	}
	return data, nil
}

func (m *MockBlobStore) PutProcessed(ctx context.Context, itemID string, text string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	location := "mem://processed/" + itemID
	m.processed[location] = text
	return location, nil
}

func (m *MockBlobStore) ReadProcessed(ctx context.Context, location string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	text, ok := m.processed[location]
	if !ok {
		return "", domain.ErrNotFound
	}
	return text, nil
}

func (m *MockBlobStore) DeleteProcessed(ctx context.Context, location string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.processed, location)
	return nil
}

// PutRaw stores raw bytes (for test setup)
func (m *MockBlobStore) PutRaw(location string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.raw[location] = data
}

// HasRaw reports whether raw bytes are still present
func (m *MockBlobStore) HasRaw(location string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.raw[location]
	return ok
}

// ProcessedCount returns the number of stored processed texts
func (m *MockBlobStore) ProcessedCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.processed)
}
