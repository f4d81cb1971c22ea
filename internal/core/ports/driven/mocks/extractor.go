package mocks

import (
	"context"
	"fmt"
	"sync"

	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
	"github.com/custodia-labs/sercha-ingest/internal/core/ports/driven"
)

// MockExtractor returns fixed text or runs ExtractFn
type MockExtractor struct {
	kinds     []domain.ItemKind
	Text      string
	PageCount int
	ExtractFn func(ctx context.Context, src driven.ExtractionSource) (*driven.Extraction, error)

	mu    sync.Mutex
	calls int
}

// NewMockExtractor creates an extractor for kinds returning text
func NewMockExtractor(text string, kinds ...domain.ItemKind) *MockExtractor {
	return &MockExtractor{kinds: kinds, Text: text, PageCount: 1}
}

func (m *MockExtractor) Extract(ctx context.Context, src driven.ExtractionSource) (*driven.Extraction, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.ExtractFn != nil {
		return m.ExtractFn(ctx, src)
	}
	return &driven.Extraction{Text: m.Text, PageCount: m.PageCount}, nil
}

func (m *MockExtractor) Kinds() []domain.ItemKind {
	return m.kinds
}

func (m *MockExtractor) Name() string {
	return "mock"
}

// Calls returns how many times Extract ran
func (m *MockExtractor) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// MockExtractorRegistry is a map-backed ExtractorRegistry
type MockExtractorRegistry struct {
	mu         sync.RWMutex
	extractors map[domain.ItemKind]driven.Extractor
}

// NewMockExtractorRegistry creates a registry with the given extractors
func NewMockExtractorRegistry(extractors ...driven.Extractor) *MockExtractorRegistry {
	r := &MockExtractorRegistry{extractors: make(map[domain.ItemKind]driven.Extractor)}
	for _, e := range extractors {
		r.Register(e)
	}
	return r
}

func (r *MockExtractorRegistry) Get(kind domain.ItemKind) (driven.Extractor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.extractors[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrNoExtractor, kind)
	}
	return e, nil
}

func (r *MockExtractorRegistry) Register(extractor driven.Extractor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, k := range extractor.Kinds() {
		r.extractors[k] = extractor
	}
}

func (r *MockExtractorRegistry) Validate() error {
	return nil
}
