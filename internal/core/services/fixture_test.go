package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
	"github.com/custodia-labs/sercha-ingest/internal/core/ports/driven/mocks"
	"github.com/custodia-labs/sercha-ingest/internal/core/ports/driving"
	"github.com/custodia-labs/sercha-ingest/internal/postprocessors"
	"github.com/custodia-labs/sercha-ingest/internal/runtime"
)

const threePageText = `PAGE 1
The cat sat. The dog ran.
PAGE 2
Birds fly high. Fish swim deep.
PAGE 3
Trees grow tall. Rain falls down.`

// pipelineFixture wires the scheduler, coordinator and ingestion service
// over in-memory mocks.
type pipelineFixture struct {
	items     *mocks.MockItemStore
	tasks     *mocks.MockTaskStore
	queue     *mocks.MockTaskQueue
	chunks    *mocks.MockChunkStore
	blobs     *mocks.MockBlobStore
	indexer   *mocks.MockIndexer
	text      *mocks.MockExtractor
	tabular   *mocks.MockExtractor
	registry  *mocks.MockExtractorRegistry
	runtime   *runtime.Services
	scheduler *TaskScheduler
	coord     *Coordinator
	ingestion driving.IngestionService
}

func newPipelineFixture(t *testing.T) *pipelineFixture {
	t.Helper()

	f := &pipelineFixture{
		items:   mocks.NewMockItemStore(),
		tasks:   mocks.NewMockTaskStore(),
		queue:   mocks.NewMockTaskQueue(),
		chunks:  mocks.NewMockChunkStore(),
		blobs:   mocks.NewMockBlobStore(),
		indexer: mocks.NewMockIndexer(),
		text: mocks.NewMockExtractor(threePageText,
			domain.ItemKindText, domain.ItemKindPDF, domain.ItemKindResearch),
		tabular: mocks.NewMockExtractor("3 rows, 2 columns: name, score", domain.ItemKindTabular),
		runtime: runtime.NewServices(domain.NewRuntimeConfig("memory")),
	}
	f.text.PageCount = 0
	f.registry = mocks.NewMockExtractorRegistry(f.text, f.tabular)

	f.scheduler = NewTaskScheduler(TaskSchedulerConfig{
		Store:             f.tasks,
		Queue:             f.queue,
		HeartbeatInterval: time.Hour,
	})
	f.coord = NewCoordinator(CoordinatorConfig{
		Items:      f.items,
		Chunks:     f.chunks,
		Blobs:      f.blobs,
		Extractors: f.registry,
		Chunker:    postprocessors.NewChunker(postprocessors.ChunkConfig{MaxTokens: 3}, postprocessors.WordTokenizer{}),
		Indexer:    f.indexer,
		Services:   f.runtime,
		BatchSize:  2,
	})
	f.scheduler.Register(f.coord)
	f.ingestion = NewIngestionService(IngestionServiceConfig{
		Items:     f.items,
		Chunks:    f.chunks,
		Scheduler: f.scheduler,
		Cleaner:   f.coord,
	})
	return f
}

// addItem stores an UPLOADED item with raw bytes
func (f *pipelineFixture) addItem(t *testing.T, id string, kind domain.ItemKind) *domain.Item {
	t.Helper()
	raw := "mem://raw/" + id
	f.blobs.PutRaw(raw, []byte("raw bytes of "+id))
	item := domain.NewItem(id, "project-1", kind, raw)
	if err := f.items.Save(context.Background(), item); err != nil {
		t.Fatalf("save item: %v", err)
	}
	return item
}

// drain runs every dispatched task reference through the scheduler
func (f *pipelineFixture) drain(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	for f.queue.Pending() > 0 {
		ref, err := f.queue.DequeueWithTimeout(ctx, 0)
		if err != nil {
			t.Fatalf("dequeue: %v", err)
		}
		if ref == nil {
			return
		}
		if err := f.scheduler.Run(ctx, ref.ID); err != nil {
			t.Fatalf("run task %s: %v", ref.ID, err)
		}
	}
}

func (f *pipelineFixture) item(t *testing.T, id string) *domain.Item {
	t.Helper()
	item, err := f.items.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get item %s: %v", id, err)
	}
	return item
}

func (f *pipelineFixture) task(t *testing.T, id string) *domain.Task {
	t.Helper()
	task, err := f.tasks.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get task %s: %v", id, err)
	}
	return task
}

func (f *pipelineFixture) chunkCount(itemID string) int {
	n, _ := f.chunks.CountByItem(context.Background(), itemID)
	return n
}

// funcHandler is a JobHandler backed by a function
type funcHandler struct {
	kind    domain.TaskKind
	execute func(ctx context.Context, task *domain.Task, token *CancelToken) error

	mu       sync.Mutex
	executed int
	aborts   []error
}

func newFuncHandler(kind domain.TaskKind, execute func(ctx context.Context, task *domain.Task, token *CancelToken) error) *funcHandler {
	return &funcHandler{kind: kind, execute: execute}
}

func (h *funcHandler) Kind() domain.TaskKind {
	return h.kind
}

func (h *funcHandler) Execute(ctx context.Context, task *domain.Task, token *CancelToken) error {
	h.mu.Lock()
	h.executed++
	h.mu.Unlock()
	if h.execute == nil {
		return nil
	}
	return h.execute(ctx, task, token)
}

func (h *funcHandler) Abort(ctx context.Context, task *domain.Task, cause error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.aborts = append(h.aborts, cause)
}

func (h *funcHandler) Executed() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.executed
}

func (h *funcHandler) Aborts() []error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]error(nil), h.aborts...)
}
