package ai

import (
	"errors"
	"testing"

	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
)

func TestNewEmbeddingService_NotConfigured(t *testing.T) {
	svc, err := NewEmbeddingService(EmbeddingConfig{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if svc != nil {
		t.Error("expected nil service when no provider is configured")
	}
}

func TestNewEmbeddingService_OpenAI(t *testing.T) {
	svc, err := NewEmbeddingService(EmbeddingConfig{Provider: ProviderOpenAI, APIKey: "sk-test"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if svc.Model() != "text-embedding-3-small" || svc.Dimensions() != 1536 {
		t.Errorf("unexpected service %s/%d", svc.Model(), svc.Dimensions())
	}
}

func TestNewEmbeddingService_OpenAIRequiresKey(t *testing.T) {
	svc, err := NewEmbeddingService(EmbeddingConfig{Provider: ProviderOpenAI})
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
	if svc != nil {
		t.Error("expected nil service on error")
	}
}

func TestNewEmbeddingService_Ollama(t *testing.T) {
	svc, err := NewEmbeddingService(EmbeddingConfig{Provider: ProviderOllama})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if svc.Model() != "nomic-embed-text" || svc.Dimensions() != 768 {
		t.Errorf("unexpected service %s/%d", svc.Model(), svc.Dimensions())
	}
	if svc.(*OpenAIEmbedding).baseURL != "http://localhost:11434/v1" {
		t.Errorf("unexpected base URL %s", svc.(*OpenAIEmbedding).baseURL)
	}
}

func TestNewEmbeddingService_UnknownProvider(t *testing.T) {
	_, err := NewEmbeddingService(EmbeddingConfig{Provider: "cohere"})
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}
