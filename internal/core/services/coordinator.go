package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
	"github.com/custodia-labs/sercha-ingest/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-ingest/internal/runtime"
)

// Verify interface compliance
var _ JobHandler = (*Coordinator)(nil)

// Coordinator runs the ingestion pipeline for one item:
//  1. Load the item (must be PROCESSING)
//  2. Read raw bytes and extract normalized text
//  3. Store processed text and move to EMBEDDING (tabular items stop here as READY)
//  4. Chunk, embed when an embedding service is configured
//  5. Replace stored chunks and index them in batches
//  6. Move to READY
//
// Cancellation is checked between steps and before every batch. Failures
// and cancellations clean up processed text, chunks and index entries; raw
// bytes are never touched.
type Coordinator struct {
	items      driven.ItemStore
	chunks     driven.ChunkStore
	blobs      driven.BlobStore
	extractors driven.ExtractorRegistry
	chunker    driven.Chunker
	indexer    driven.Indexer
	services   *runtime.Services
	logger     *slog.Logger
	batchSize  int
}

// CoordinatorConfig holds dependencies for Coordinator.
type CoordinatorConfig struct {
	Items      driven.ItemStore
	Chunks     driven.ChunkStore
	Blobs      driven.BlobStore
	Extractors driven.ExtractorRegistry
	Chunker    driven.Chunker
	Indexer    driven.Indexer
	Services   *runtime.Services // Optional: embedding service holder
	Logger     *slog.Logger
	BatchSize  int // Chunks per embedding/index batch (default: 64)
}

// NewCoordinator creates a new pipeline coordinator.
func NewCoordinator(cfg CoordinatorConfig) *Coordinator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 64
	}

	return &Coordinator{
		items:      cfg.Items,
		chunks:     cfg.Chunks,
		blobs:      cfg.Blobs,
		extractors: cfg.Extractors,
		chunker:    cfg.Chunker,
		indexer:    cfg.Indexer,
		services:   cfg.Services,
		logger:     logger,
		batchSize:  batchSize,
	}
}

// Kind returns the task kind handled by the coordinator
func (c *Coordinator) Kind() domain.TaskKind {
	return domain.TaskKindIngest
}

// Execute runs the pipeline for the task's item.
func (c *Coordinator) Execute(ctx context.Context, task *domain.Task, token *CancelToken) error {
	log := c.logger.With("task_id", task.ID, "item_id", task.TargetID)

	// Step 1: Load item
	item, err := c.items.Get(ctx, task.TargetID)
	if err != nil {
		return fmt.Errorf("load item: %w", err)
	}
	if item.Status != domain.ItemStatusProcessing {
		return fmt.Errorf("%w: item %s is %s, expected %s",
			domain.ErrIllegalTransition, item.ID, item.Status, domain.ItemStatusProcessing)
	}
	setMetadata(item, "task_id", task.ID)

	// Step 2: Extract
	if err := c.checkpoint(ctx, item, token); err != nil {
		return err
	}

	extraction, err := c.extract(ctx, item)
	if err != nil {
		log.Warn("extraction failed", "kind", item.Kind, "error", err)
		return c.fail(ctx, item, err)
	}

	if err := c.checkpoint(ctx, item, token); err != nil {
		return err
	}

	// Step 3: Store processed text
	location, err := c.blobs.PutProcessed(ctx, item.ID, extraction.Text)
	if err != nil {
		return c.fail(ctx, item, fmt.Errorf("store processed text: %w", err))
	}
	item.ProcessedLocation = location
	item.PageCount = extraction.PageCount
	mergeMetadata(item, extraction.Metadata)

	if item.Kind == domain.ItemKindTabular {
		if err := c.transition(ctx, item, domain.EventTabularReady, ""); err != nil {
			return c.fail(ctx, item, err)
		}
		log.Info("tabular item ready", "processed_location", location)
		return nil
	}

	if err := c.transition(ctx, item, domain.EventExtracted, ""); err != nil {
		return c.fail(ctx, item, err)
	}

	// Step 4: Chunk and embed
	if err := c.checkpoint(ctx, item, token); err != nil {
		return err
	}

	chunks, err := c.chunker.Chunk(item.ID, extraction.Text)
	if err != nil {
		return c.fail(ctx, item, fmt.Errorf("chunk text: %w", err))
	}

	if svc := c.embeddingService(); svc != nil && len(chunks) > 0 {
		if err := c.embed(ctx, item, svc, chunks, token); err != nil {
			return err
		}
		setMetadata(item, "embedding_model", svc.Model())
	}

	// Step 5: Persist and index
	if err := c.chunks.ReplaceForItem(ctx, item.ID, chunks); err != nil {
		return c.fail(ctx, item, fmt.Errorf("%w: store chunks: %v", domain.ErrIndexingFailed, err))
	}
	if err := c.indexer.DeleteByItem(ctx, item.ID); err != nil {
		return c.fail(ctx, item, fmt.Errorf("%w: clear index: %v", domain.ErrIndexingFailed, err))
	}
	for start := 0; start < len(chunks); start += c.batchSize {
		if err := c.checkpoint(ctx, item, token); err != nil {
			return err
		}
		end := min(start+c.batchSize, len(chunks))
		if err := c.indexer.Index(ctx, item.ID, chunks[start:end]); err != nil {
			return c.fail(ctx, item, fmt.Errorf("%w: %v", domain.ErrIndexingFailed, err))
		}
	}

	// Step 6: Ready
	item.TokenCount = domain.TotalTokens(chunks)
	if item.PageCount == 0 {
		item.PageCount = countPages(chunks)
	}
	if err := c.transition(ctx, item, domain.EventIndexed, ""); err != nil {
		return c.fail(ctx, item, err)
	}

	log.Info("item ready",
		"chunks", len(chunks),
		"tokens", item.TokenCount,
		"pages", item.PageCount,
	)
	return nil
}

// Abort drives an in-flight item to a safe state after its job could not
// finish on its own. Cancellation returns the item to UPLOADED; anything
// else moves it to ERROR. Items that already left PROCESSING/EMBEDDING are
// left alone.
func (c *Coordinator) Abort(ctx context.Context, task *domain.Task, cause error) {
	ctx = context.WithoutCancel(ctx)

	item, err := c.items.Get(ctx, task.TargetID)
	if err != nil {
		c.logger.Error("abort: failed to load item", "task_id", task.ID, "item_id", task.TargetID, "error", err)
		return
	}
	if !item.Status.InFlight() {
		return
	}

	if errors.Is(cause, domain.ErrCancelled) {
		_ = c.cancel(ctx, item)
		return
	}
	_ = c.fail(ctx, item, errors.New(abortMessage(cause)))
}

func (c *Coordinator) extract(ctx context.Context, item *domain.Item) (*driven.Extraction, error) {
	extractor, err := c.extractors.Get(item.Kind)
	if err != nil {
		return nil, err
	}

	raw, err := c.blobs.ReadRaw(ctx, item.RawLocation)
	if err != nil {
		return nil, fmt.Errorf("%w: read raw content: %v", domain.ErrExtractionFailed, err)
	}

	extraction, err := extractor.Extract(ctx, driven.ExtractionSource{
		ItemID:      item.ID,
		Kind:        item.Kind,
		RawLocation: item.RawLocation,
		Data:        raw,
	})
	if err != nil {
		return nil, err
	}
	if extraction == nil {
		return nil, fmt.Errorf("%w: %s returned no result", domain.ErrExtractionFailed, extractor.Name())
	}
	return extraction, nil
}

func (c *Coordinator) embed(ctx context.Context, item *domain.Item, svc driven.EmbeddingService, chunks []*domain.Chunk, token *CancelToken) error {
	for start := 0; start < len(chunks); start += c.batchSize {
		if err := c.checkpoint(ctx, item, token); err != nil {
			return err
		}
		end := min(start+c.batchSize, len(chunks))

		texts := make([]string, 0, end-start)
		for _, ch := range chunks[start:end] {
			texts = append(texts, ch.Text)
		}

		vectors, err := svc.Embed(ctx, texts)
		if err != nil {
			return c.fail(ctx, item, fmt.Errorf("%w: embed: %v", domain.ErrIndexingFailed, err))
		}
		if len(vectors) != len(texts) {
			return c.fail(ctx, item, fmt.Errorf("%w: embed: got %d vectors for %d chunks",
				domain.ErrIndexingFailed, len(vectors), len(texts)))
		}
		for i, v := range vectors {
			chunks[start+i].Embedding = v
		}
	}
	return nil
}

// checkpoint observes cancellation and the job deadline. On cancellation the
// item is cleaned up and returned to UPLOADED; on deadline it fails.
func (c *Coordinator) checkpoint(ctx context.Context, item *domain.Item, token *CancelToken) error {
	if token == nil {
		return nil
	}
	err := token.Check(ctx)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrCancelled):
		return c.cancel(ctx, item)
	default:
		return c.fail(ctx, item, err)
	}
}

// transition applies event to item and persists it with a compare-and-set on
// the previous status.
func (c *Coordinator) transition(ctx context.Context, item *domain.Item, event domain.LifecycleEvent, message string) error {
	expected := item.Status
	tr, err := item.Apply(event, message)
	if err != nil {
		return err
	}
	if err := c.items.CompareAndSwap(ctx, item, expected); err != nil {
		return fmt.Errorf("persist %s -> %s: %w", tr.From, tr.To, err)
	}
	c.logger.Debug("item status changed", "item_id", item.ID, "from", tr.From, "to", tr.To, "event", event)
	return nil
}

// fail cleans up and moves item to ERROR with cause as message. It returns cause.
func (c *Coordinator) fail(ctx context.Context, item *domain.Item, cause error) error {
	ctx = context.WithoutCancel(ctx)
	c.cleanup(ctx, item)
	if err := c.transition(ctx, item, domain.EventFail, cause.Error()); err != nil {
		c.logger.Error("failed to record item error", "item_id", item.ID, "cause", cause, "error", err)
	}
	return cause
}

// cancel cleans up and returns item to UPLOADED. It returns domain.ErrCancelled.
func (c *Coordinator) cancel(ctx context.Context, item *domain.Item) error {
	ctx = context.WithoutCancel(ctx)
	c.cleanup(ctx, item)
	if err := c.transition(ctx, item, domain.EventCancel, ""); err != nil {
		c.logger.Error("failed to record item cancellation", "item_id", item.ID, "error", err)
	}
	c.logger.Info("item processing cancelled", "item_id", item.ID)
	return fmt.Errorf("item %s: %w", item.ID, domain.ErrCancelled)
}

// Cleanup removes derived artifacts of item: index entries, chunks and
// processed text. Errors are logged; raw bytes are never touched.
func (c *Coordinator) Cleanup(ctx context.Context, item *domain.Item) {
	c.cleanup(context.WithoutCancel(ctx), item)
}

func (c *Coordinator) cleanup(ctx context.Context, item *domain.Item) {
	if err := c.indexer.DeleteByItem(ctx, item.ID); err != nil {
		c.logger.Warn("cleanup: failed to delete index entries", "item_id", item.ID, "error", err)
	}
	if err := c.chunks.DeleteByItem(ctx, item.ID); err != nil {
		c.logger.Warn("cleanup: failed to delete chunks", "item_id", item.ID, "error", err)
	}
	if item.ProcessedLocation != "" {
		if err := c.blobs.DeleteProcessed(ctx, item.ProcessedLocation); err != nil {
			c.logger.Warn("cleanup: failed to delete processed text", "item_id", item.ID, "error", err)
		}
	}
}

func (c *Coordinator) embeddingService() driven.EmbeddingService {
	if c.services == nil {
		return nil
	}
	return c.services.EmbeddingService()
}

func abortMessage(cause error) string {
	switch {
	case cause == nil:
		return "processing aborted"
	case errors.Is(cause, domain.ErrWorkerCrashed):
		return domain.ErrWorkerCrashed.Error()
	case errors.Is(cause, domain.ErrWorkerLost):
		return domain.ErrWorkerLost.Error()
	case errors.Is(cause, context.DeadlineExceeded):
		return "processing timed out"
	default:
		return cause.Error()
	}
}

func countPages(chunks []*domain.Chunk) int {
	seen := make(map[int]struct{})
	for _, ch := range chunks {
		seen[ch.PageNumber] = struct{}{}
	}
	return len(seen)
}

func mergeMetadata(item *domain.Item, md map[string]string) {
	for k, v := range md {
		setMetadata(item, k, v)
	}
}

func setMetadata(item *domain.Item, key, value string) {
	if item.Metadata == nil {
		item.Metadata = make(map[string]string)
	}
	item.Metadata[key] = value
}
