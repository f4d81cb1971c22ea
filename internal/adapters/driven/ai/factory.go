package ai

import (
	"fmt"
	"time"

	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
	"github.com/custodia-labs/sercha-ingest/internal/core/ports/driven"
)

// Supported embedding providers
const (
	ProviderNone   = ""
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
)

// EmbeddingConfig selects and configures an embedding provider
type EmbeddingConfig struct {
	Provider          string
	APIKey            string
	Model             string
	BaseURL           string
	Dimensions        int
	BatchSize         int
	RequestsPerSecond float64
	Timeout           time.Duration
}

// NewEmbeddingService builds the configured provider.
// Returns nil, nil when no provider is configured: chunks are then indexed
// without vectors.
func NewEmbeddingService(cfg EmbeddingConfig) (driven.EmbeddingService, error) {
	openAI := OpenAIConfig{
		APIKey:            cfg.APIKey,
		Model:             cfg.Model,
		BaseURL:           cfg.BaseURL,
		Dimensions:        cfg.Dimensions,
		BatchSize:         cfg.BatchSize,
		RequestsPerSecond: cfg.RequestsPerSecond,
		Timeout:           cfg.Timeout,
	}

	switch cfg.Provider {
	case ProviderNone:
		return nil, nil
	case ProviderOpenAI:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("%w: OpenAI API key is required", domain.ErrInvalidInput)
		}
		return newOpenAI(openAI)
	case ProviderOllama:
		// Ollama serves the OpenAI protocol under /v1 and needs no key
		if openAI.BaseURL == "" {
			openAI.BaseURL = "http://localhost:11434/v1"
		}
		if openAI.Model == "" {
			openAI.Model = "nomic-embed-text"
		}
		if openAI.Dimensions <= 0 && openAI.Model == "nomic-embed-text" {
			openAI.Dimensions = 768
		}
		return newOpenAI(openAI)
	default:
		return nil, fmt.Errorf("%w: unknown embedding provider %q", domain.ErrInvalidInput, cfg.Provider)
	}
}

func newOpenAI(cfg OpenAIConfig) (driven.EmbeddingService, error) {
	svc, err := NewOpenAIEmbedding(cfg)
	if err != nil {
		return nil, err
	}
	return svc, nil
}
