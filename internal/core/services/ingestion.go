package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
	"github.com/custodia-labs/sercha-ingest/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-ingest/internal/core/ports/driving"
)

// Verify interface compliance
var _ driving.IngestionService = (*ingestionService)(nil)

// ArtifactCleaner removes derived artifacts (processed text, chunks, index entries) of an item
type ArtifactCleaner interface {
	Cleanup(ctx context.Context, item *domain.Item)
}

// ingestionService implements driving.IngestionService
type ingestionService struct {
	items     driven.ItemStore
	chunks    driven.ChunkStore
	scheduler *TaskScheduler
	cleaner   ArtifactCleaner
	logger    *slog.Logger
}

// IngestionServiceConfig holds dependencies for the ingestion service.
type IngestionServiceConfig struct {
	Items     driven.ItemStore
	Chunks    driven.ChunkStore
	Scheduler *TaskScheduler
	Cleaner   ArtifactCleaner // Usually the Coordinator
	Logger    *slog.Logger
}

// NewIngestionService creates a new IngestionService
func NewIngestionService(cfg IngestionServiceConfig) driving.IngestionService {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &ingestionService{
		items:     cfg.Items,
		chunks:    cfg.Chunks,
		scheduler: cfg.Scheduler,
		cleaner:   cfg.Cleaner,
		logger:    logger,
	}
}

// SubmitForProcessing moves an UPLOADED item to PROCESSING and schedules its pipeline.
func (s *ingestionService) SubmitForProcessing(ctx context.Context, itemID string) (*domain.Task, error) {
	item, err := s.items.Get(ctx, itemID)
	if err != nil {
		return nil, err
	}

	prev := *item
	if _, err := item.Apply(domain.EventSubmit, ""); err != nil {
		return nil, fmt.Errorf("submit item %s: %w", itemID, err)
	}
	if err := s.items.CompareAndSwap(ctx, item, prev.Status); err != nil {
		return nil, fmt.Errorf("submit item %s: %w", itemID, err)
	}

	task, err := s.scheduler.Submit(ctx, domain.TaskKindIngest, itemID)
	if err != nil {
		s.restore(ctx, &prev, item.Status)
		return nil, err
	}

	s.logger.Info("item submitted for processing", "item_id", itemID, "task_id", task.ID)
	return task, nil
}

// CancelProcessing requests cancellation of an in-flight item. An item left
// in flight without an active task is cleaned up and reset directly.
func (s *ingestionService) CancelProcessing(ctx context.Context, itemID string) (bool, error) {
	item, err := s.items.Get(ctx, itemID)
	if err != nil {
		return false, err
	}
	if !item.Status.Cancellable() {
		return false, fmt.Errorf("%w: cannot cancel item %s in status %s", domain.ErrIllegalTransition, itemID, item.Status)
	}

	requested, err := s.scheduler.RequestCancel(ctx, itemID)
	if err != nil {
		return false, err
	}
	if requested {
		return true, nil
	}

	// No task owns the item any more. Cleanup runs while the item is still
	// in flight, so submit and retry stay refused until the swap.
	expected := item.Status
	s.cleaner.Cleanup(ctx, item)
	if _, err := item.Apply(domain.EventCancel, ""); err != nil {
		return false, err
	}
	if err := s.items.CompareAndSwap(ctx, item, expected); err != nil {
		return false, fmt.Errorf("cancel item %s: %w", itemID, err)
	}

	s.logger.Warn("reset orphaned in-flight item", "item_id", itemID, "from", expected)
	return true, nil
}

// RetryProcessing cleans stale artifacts and reruns the full pipeline for an
// UPLOADED or ERROR item. Raw content is reused as is.
func (s *ingestionService) RetryProcessing(ctx context.Context, itemID string) (*domain.RetryResult, error) {
	item, err := s.items.Get(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if !item.Status.Retryable() {
		return &domain.RetryResult{
			Success: false,
			Message: fmt.Sprintf("item is %s; retry is only allowed from %s or %s",
				item.Status, domain.ItemStatusUploaded, domain.ItemStatusError),
		}, nil
	}

	// Take ownership before touching artifacts; a concurrent submit or
	// retry that wins the swap keeps its chunks.
	prev := *item
	if _, err := item.Apply(domain.EventRetry, ""); err != nil {
		return nil, err
	}
	if err := s.items.CompareAndSwap(ctx, item, prev.Status); err != nil {
		if errors.Is(err, domain.ErrStatusConflict) {
			return &domain.RetryResult{Success: false, Message: "item status changed concurrently"}, nil
		}
		return nil, fmt.Errorf("retry item %s: %w", itemID, err)
	}
	s.cleaner.Cleanup(ctx, &prev)

	task, err := s.scheduler.Submit(ctx, domain.TaskKindIngest, itemID)
	if err != nil {
		// Artifacts are already gone; only the status and error are restored.
		reverted := *item
		reverted.Status = prev.Status
		reverted.ErrorMessage = prev.ErrorMessage
		s.restore(ctx, &reverted, item.Status)
		if errors.Is(err, domain.ErrTaskActive) {
			return &domain.RetryResult{Success: false, Message: "a processing task is already active for this item"}, nil
		}
		return nil, err
	}

	s.logger.Info("item retry submitted", "item_id", itemID, "task_id", task.ID, "from", prev.Status)
	return &domain.RetryResult{
		Success: true,
		Message: "processing restarted",
		TaskID:  task.ID,
	}, nil
}

// GetItem retrieves an item by ID
func (s *ingestionService) GetItem(ctx context.Context, itemID string) (*domain.Item, error) {
	return s.items.Get(ctx, itemID)
}

// GetTask retrieves a task snapshot by ID
func (s *ingestionService) GetTask(ctx context.Context, taskID string) (*domain.Task, error) {
	return s.scheduler.GetStatus(ctx, taskID)
}

// ListChunks returns the chunks of an item
func (s *ingestionService) ListChunks(ctx context.Context, itemID string) ([]*domain.Chunk, error) {
	if _, err := s.items.Get(ctx, itemID); err != nil {
		return nil, err
	}
	return s.chunks.GetByItem(ctx, itemID)
}

// restore writes back item after a failed submission
func (s *ingestionService) restore(ctx context.Context, item *domain.Item, current domain.ItemStatus) {
	if err := s.items.CompareAndSwap(context.WithoutCancel(ctx), item, current); err != nil {
		s.logger.Error("failed to restore item after rejected submission",
			"item_id", item.ID,
			"status", item.Status,
			"error", err,
		)
	}
}
