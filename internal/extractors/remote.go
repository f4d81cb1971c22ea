package extractors

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
	"github.com/custodia-labs/sercha-ingest/internal/core/ports/driven"
)

var _ driven.Extractor = (*RemoteExtractor)(nil)

// RemoteExtractor delegates binary formats (PDF, DOCX, audio, ...) to an
// external extraction service over HTTP. Requests are rate limited so a
// burst of submissions does not overload the service.
type RemoteExtractor struct {
	baseURL string
	kinds   []domain.ItemKind
	client  *http.Client
	limiter *rate.Limiter
}

// RemoteConfig holds configuration for RemoteExtractor.
type RemoteConfig struct {
	BaseURL   string
	Kinds     []domain.ItemKind
	RateLimit float64       // Requests per second (default: 4)
	Burst     int           // Maximum burst (default: 8)
	Timeout   time.Duration // Per-request timeout (default: 5m)
}

// NewRemoteExtractor creates a client for the extraction service.
func NewRemoteExtractor(cfg RemoteConfig) *RemoteExtractor {
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 4
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 8
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Minute
	}

	return &RemoteExtractor{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		kinds:   cfg.Kinds,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.Burst),
	}
}

// extractRequest is the request body of POST /extract
type extractRequest struct {
	ItemID      string `json:"item_id"`
	Kind        string `json:"kind"`
	RawLocation string `json:"raw_location,omitempty"`
	Content     []byte `json:"content"`
}

// extractResponse is the response body of POST /extract
type extractResponse struct {
	Text      string            `json:"text"`
	PageCount int               `json:"page_count"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Error     string            `json:"error,omitempty"`
}

func (e *RemoteExtractor) Extract(ctx context.Context, src driven.ExtractionSource) (*driven.Extraction, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	body, err := json.Marshal(extractRequest{
		ItemID:      src.ItemID,
		Kind:        string(src.Kind),
		RawLocation: src.RawLocation,
		Content:     src.Data,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/extract", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: extraction service unreachable: %v", domain.ErrExtractionFailed, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %v", domain.ErrExtractionFailed, err)
	}

	var out extractResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("%w: extraction service returned status %d", domain.ErrExtractionFailed, resp.StatusCode)
		}
		return nil, fmt.Errorf("%w: failed to parse response: %v", domain.ErrExtractionFailed, err)
	}

	if out.Error != "" {
		return nil, fmt.Errorf("%w: %s", domain.ErrExtractionFailed, out.Error)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: extraction service returned status %d", domain.ErrExtractionFailed, resp.StatusCode)
	}

	md := out.Metadata
	if md == nil {
		md = make(map[string]string)
	}
	md["extractor"] = e.Name()

	return &driven.Extraction{
		Text:      out.Text,
		PageCount: out.PageCount,
		Metadata:  md,
	}, nil
}

func (e *RemoteExtractor) Kinds() []domain.ItemKind {
	return e.kinds
}

func (e *RemoteExtractor) Name() string {
	return "remote"
}

// HealthCheck verifies the extraction service is reachable.
func (e *RemoteExtractor) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: extraction service returned status %d", domain.ErrServiceUnavailable, resp.StatusCode)
	}
	return nil
}
