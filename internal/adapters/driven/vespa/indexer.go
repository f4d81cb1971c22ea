package vespa

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
	"github.com/custodia-labs/sercha-ingest/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.Indexer = (*Indexer)(nil)

// Indexer implements driven.Indexer using the Vespa document API.
// Chunk ids double as Vespa document ids, so re-indexing an item
// overwrites its previous documents.
type Indexer struct {
	baseURL    string
	namespace  string
	cluster    string
	httpClient *http.Client
}

// Config holds Vespa connection configuration
type Config struct {
	// BaseURL is the Vespa container endpoint (e.g., http://localhost:8080)
	BaseURL string

	// Namespace is the document namespace (default: sercha)
	Namespace string

	// Cluster is the content cluster used for delete-by-selection (default: sercha)
	Cluster string

	// Timeout for HTTP requests
	Timeout time.Duration
}

// DefaultConfig returns sensible defaults
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL:   baseURL,
		Namespace: "sercha",
		Cluster:   "sercha",
		Timeout:   30 * time.Second,
	}
}

// NewIndexer creates a new Vespa-backed Indexer
func NewIndexer(cfg Config) *Indexer {
	if cfg.Namespace == "" {
		cfg.Namespace = "sercha"
	}
	if cfg.Cluster == "" {
		cfg.Cluster = "sercha"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Indexer{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		namespace:  cfg.Namespace,
		cluster:    cfg.Cluster,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// vespaDocument represents a chunk in Vespa feed format
type vespaDocument struct {
	Fields vespaFields `json:"fields"`
}

type vespaFields struct {
	ID         string    `json:"id"`
	ItemID     string    `json:"item_id"`
	PageNumber int       `json:"page_number"`
	LocalIndex int       `json:"local_index"`
	Content    string    `json:"content"`
	TokenCount int       `json:"token_count"`
	Embedding  []float32 `json:"embedding,omitempty"`
}

// Index feeds chunks for an item, stopping at the first failure
func (i *Indexer) Index(ctx context.Context, itemID string, chunks []*domain.Chunk) error {
	for _, chunk := range chunks {
		if err := i.indexChunk(ctx, itemID, chunk); err != nil {
			return fmt.Errorf("%w: chunk %s: %v", domain.ErrIndexingFailed, chunk.ID, err)
		}
	}
	return nil
}

func (i *Indexer) indexChunk(ctx context.Context, itemID string, chunk *domain.Chunk) error {
	doc := vespaDocument{
		Fields: vespaFields{
			ID:         chunk.ID,
			ItemID:     itemID,
			PageNumber: chunk.PageNumber,
			LocalIndex: chunk.LocalIndex,
			Content:    chunk.Text,
			TokenCount: chunk.TokenCount,
			Embedding:  chunk.Embedding,
		},
	}

	body, err := json.Marshal(doc)
	if err != nil {
		return err
	}

	// Vespa document API: POST /document/v1/{namespace}/{doctype}/docid/{docid}
	endpoint := fmt.Sprintf("%s/document/v1/%s/chunk/docid/%s", i.baseURL, i.namespace, url.PathEscape(chunk.ID))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := i.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("vespa feed failed: %s - %s", resp.Status, string(respBody))
	}

	return nil
}

// DeleteByItem removes every chunk document of an item
func (i *Indexer) DeleteByItem(ctx context.Context, itemID string) error {
	selection := fmt.Sprintf("chunk.item_id==\"%s\"", strings.ReplaceAll(itemID, "\"", "\\\""))
	endpoint := fmt.Sprintf("%s/document/v1/%s/chunk/docid/?selection=%s&cluster=%s",
		i.baseURL, i.namespace, url.QueryEscape(selection), url.QueryEscape(i.cluster))

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return err
	}

	resp, err := i.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("vespa delete by selection failed: %s - %s", resp.Status, string(respBody))
	}

	return nil
}

// HealthCheck verifies the index is available
func (i *Indexer) HealthCheck(ctx context.Context) error {
	endpoint := fmt.Sprintf("%s/state/v1/health", i.baseURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}

	resp, err := i.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: vespa: %v", domain.ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: vespa unhealthy: %s", domain.ErrServiceUnavailable, resp.Status)
	}

	return nil
}
