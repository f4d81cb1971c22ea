package runtime

import (
	"context"
	"errors"
	"testing"

	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
)

// mockEmbeddingService is a mock implementation for testing
type mockEmbeddingService struct {
	healthCheckErr error
	closed         bool
}

func (m *mockEmbeddingService) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, nil
}

func (m *mockEmbeddingService) Dimensions() int {
	return 384
}

func (m *mockEmbeddingService) Model() string {
	return "test-model"
}

func (m *mockEmbeddingService) HealthCheck(ctx context.Context) error {
	return m.healthCheckErr
}

func (m *mockEmbeddingService) Close() error {
	m.closed = true
	return nil
}

func TestNewServices(t *testing.T) {
	config := domain.NewRuntimeConfig("redis")
	s := NewServices(config)

	if s.Config() != config {
		t.Error("expected config to be retained")
	}
	if s.EmbeddingService() != nil {
		t.Error("expected no embedding service initially")
	}
}

func TestNewServices_NilConfig(t *testing.T) {
	s := NewServices(nil)
	if s.Config() == nil {
		t.Fatal("expected default config")
	}
}

func TestServices_SetEmbeddingService(t *testing.T) {
	s := NewServices(domain.NewRuntimeConfig("memory"))
	first := &mockEmbeddingService{}

	s.SetEmbeddingService(first)
	if s.EmbeddingService() != first {
		t.Error("expected first service")
	}
	if !s.Config().EmbeddingAvailable() {
		t.Error("expected embedding available")
	}

	second := &mockEmbeddingService{}
	s.SetEmbeddingService(second)
	if !first.closed {
		t.Error("expected replaced service to be closed")
	}
	if second.closed {
		t.Error("expected current service to stay open")
	}

	s.SetEmbeddingService(nil)
	if !second.closed {
		t.Error("expected removed service to be closed")
	}
	if s.Config().EmbeddingAvailable() {
		t.Error("expected embedding unavailable")
	}
}

func TestServices_ValidateAndSetEmbedding(t *testing.T) {
	s := NewServices(domain.NewRuntimeConfig("memory"))

	healthy := &mockEmbeddingService{}
	if err := s.ValidateAndSetEmbedding(context.Background(), healthy); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.EmbeddingService() != healthy {
		t.Error("expected healthy service installed")
	}

	broken := &mockEmbeddingService{healthCheckErr: errors.New("connection refused")}
	if err := s.ValidateAndSetEmbedding(context.Background(), broken); err == nil {
		t.Fatal("expected health check error")
	}
	if !broken.closed {
		t.Error("expected rejected service to be closed")
	}
	if s.EmbeddingService() != healthy {
		t.Error("expected previous service to stay installed")
	}

	if err := s.ValidateAndSetEmbedding(context.Background(), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.EmbeddingService() != nil {
		t.Error("expected embedding disabled")
	}
}

func TestServices_Close(t *testing.T) {
	s := NewServices(domain.NewRuntimeConfig("memory"))
	svc := &mockEmbeddingService{}
	s.SetEmbeddingService(svc)

	if err := s.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !svc.closed {
		t.Error("expected service closed")
	}
	if s.Config().EmbeddingAvailable() {
		t.Error("expected embedding unavailable after close")
	}
}
