package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/custodia-labs/sercha-ingest/internal/adapters/driven/ai"
	"github.com/custodia-labs/sercha-ingest/internal/adapters/driven/auth"
	"github.com/custodia-labs/sercha-ingest/internal/adapters/driven/blob"
	"github.com/custodia-labs/sercha-ingest/internal/adapters/driven/postgres"
	memoryqueue "github.com/custodia-labs/sercha-ingest/internal/adapters/driven/queue/memory"
	postgresqueue "github.com/custodia-labs/sercha-ingest/internal/adapters/driven/queue/postgres"
	redisqueue "github.com/custodia-labs/sercha-ingest/internal/adapters/driven/queue/redis"
	redisadapter "github.com/custodia-labs/sercha-ingest/internal/adapters/driven/redis"
	"github.com/custodia-labs/sercha-ingest/internal/adapters/driven/vespa"
	httpadapter "github.com/custodia-labs/sercha-ingest/internal/adapters/driving/http"
	"github.com/custodia-labs/sercha-ingest/internal/config"
	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
	"github.com/custodia-labs/sercha-ingest/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-ingest/internal/core/ports/driving"
	"github.com/custodia-labs/sercha-ingest/internal/core/services"
	"github.com/custodia-labs/sercha-ingest/internal/extractors"
	"github.com/custodia-labs/sercha-ingest/internal/postprocessors"
	"github.com/custodia-labs/sercha-ingest/internal/runtime"
	"github.com/custodia-labs/sercha-ingest/internal/worker"
)

// app holds the wired dependency graph shared by the run modes
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	db          *postgres.DB
	redisClient *redis.Client
	taskQueue   driven.TaskQueue
	lock        driven.DistributedLock
	indexer     *vespa.Indexer
	runtime     *runtime.Services

	scheduler   *services.TaskScheduler
	coordinator *services.Coordinator
	ingestion   driving.IngestionService
	authService driving.AuthService
}

// newApp connects to the backing services and wires the pipeline.
// Callers must Close the returned app.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *app, err error) {
	a := &app{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	logger.Info("connecting to PostgreSQL")
	a.db, err = postgres.Connect(ctx, postgres.Config{
		URL:             cfg.Database.URL,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if cfg.Redis.URL != "" {
		logger.Info("connecting to Redis")
		a.redisClient, err = redisadapter.Connect(ctx, cfg.Redis.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
	}

	backend := cfg.ResolvedQueueBackend()
	a.taskQueue, err = a.newTaskQueue(ctx, backend)
	if err != nil {
		return nil, err
	}
	logger.Info("task queue ready", "backend", backend)

	// Stale task recovery runs on one instance at a time
	if a.redisClient != nil {
		a.lock = redisadapter.NewLock(a.redisClient)
		logger.Info("using Redis distributed lock")
	} else {
		a.lock = postgres.NewAdvisoryLock(a.db)
		logger.Info("using PostgreSQL advisory lock")
	}

	a.indexer = vespa.NewIndexer(vespa.Config{
		BaseURL:   cfg.Vespa.URL,
		Namespace: cfg.Vespa.Namespace,
		Cluster:   cfg.Vespa.Cluster,
		Timeout:   cfg.Vespa.Timeout,
	})
	if hcErr := a.indexer.HealthCheck(ctx); hcErr != nil {
		logger.Warn("vespa health check failed, indexing will fail until it recovers", "error", hcErr)
	}

	a.runtime = runtime.NewServices(domain.NewRuntimeConfig(backend))
	embedding, err := ai.NewEmbeddingService(ai.EmbeddingConfig{
		Provider:          cfg.Embedding.Provider,
		APIKey:            cfg.Embedding.APIKey,
		Model:             cfg.Embedding.Model,
		BaseURL:           cfg.Embedding.BaseURL,
		Dimensions:        cfg.Embedding.Dimensions,
		BatchSize:         cfg.Embedding.BatchSize,
		RequestsPerSecond: cfg.Embedding.RequestsPerSecond,
		Timeout:           cfg.Embedding.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to configure embedding: %w", err)
	}
	if embedding != nil {
		// Chunks are still indexed while the provider is down; embedding
		// failures surface per item.
		if hcErr := embedding.HealthCheck(ctx); hcErr != nil {
			logger.Warn("embedding provider health check failed", "error", hcErr)
		}
		a.runtime.SetEmbeddingService(embedding)
	}

	blobs, err := blob.NewStore(blob.Config{
		Root:         cfg.Blob.Root,
		FetchTimeout: cfg.Blob.FetchTimeout,
		Logger:       logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open blob store: %w", err)
	}

	tokenizer, err := postprocessors.NewTokenizer(cfg.Chunking.Tokenizer)
	if err != nil {
		return nil, fmt.Errorf("failed to create tokenizer: %w", err)
	}

	items := postgres.NewItemStore(a.db)
	chunks := postgres.NewChunkStore(a.db)
	tasks := postgres.NewTaskStore(a.db)

	a.scheduler = services.NewTaskScheduler(services.TaskSchedulerConfig{
		Store:             tasks,
		Queue:             a.taskQueue,
		Logger:            logger,
		HeartbeatInterval: cfg.Worker.HeartbeatInterval,
	})
	a.coordinator = services.NewCoordinator(services.CoordinatorConfig{
		Items:  items,
		Chunks: chunks,
		Blobs:  blobs,
		Extractors: extractors.DefaultRegistry(extractors.Config{
			RemoteURL: cfg.Extractors.RemoteURL,
			RateLimit: cfg.Extractors.RateLimit,
			Burst:     cfg.Extractors.Burst,
		}),
		Chunker:   postprocessors.NewChunker(postprocessors.ChunkConfig{MaxTokens: cfg.Chunking.MaxTokens}, tokenizer),
		Indexer:   a.indexer,
		Services:  a.runtime,
		Logger:    logger,
		BatchSize: cfg.Chunking.BatchSize,
	})
	a.scheduler.Register(a.coordinator)

	a.ingestion = services.NewIngestionService(services.IngestionServiceConfig{
		Items:     items,
		Chunks:    chunks,
		Scheduler: a.scheduler,
		Cleaner:   a.coordinator,
		Logger:    logger,
	})
	a.authService = services.NewAuthService(
		auth.NewAdapter(cfg.Auth.JWTSecret, cfg.Auth.APIKeyHashes...),
		cfg.Auth.TokenTTL,
	)

	logger.Info("pipeline configured",
		"queue_backend", backend,
		"tokenizer", tokenizer.Name(),
		"max_tokens", cfg.Chunking.MaxTokens,
		"embedding", a.runtime.Config().EmbeddingAvailable(),
	)
	return a, nil
}

func (a *app) newTaskQueue(ctx context.Context, backend string) (driven.TaskQueue, error) {
	switch backend {
	case config.QueueBackendRedis:
		if a.redisClient == nil {
			return nil, errors.New("redis queue requires redis.url")
		}
		q, err := redisqueue.NewQueue(ctx, a.redisClient, redisqueue.QueueConfig{
			MaxDeliveries: a.cfg.Queue.MaxDeliveries,
			ClaimTimeout:  a.cfg.Queue.ClaimTimeout,
			RetryBackoff:  a.cfg.Queue.RetryBackoff,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create redis queue: %w", err)
		}
		return q, nil
	case config.QueueBackendPostgres:
		return postgresqueue.NewQueue(a.db.DB, postgresqueue.QueueConfig{
			MaxDeliveries: a.cfg.Queue.MaxDeliveries,
			Visibility:    a.cfg.Queue.ClaimTimeout,
			PollInterval:  a.cfg.Queue.PollInterval,
			RetryBackoff:  a.cfg.Queue.RetryBackoff,
		}), nil
	case config.QueueBackendMemory:
		a.logger.Warn("in-memory queue only dispatches within this process; use the all command")
		return memoryqueue.NewQueue(memoryqueue.QueueConfig{
			MaxDeliveries: a.cfg.Queue.MaxDeliveries,
			RetryBackoff:  a.cfg.Queue.RetryBackoff,
		}), nil
	default:
		return nil, fmt.Errorf("unknown queue backend %q", backend)
	}
}

// newServer builds the HTTP API over the wired services
func (a *app) newServer() *httpadapter.Server {
	readiness := map[string]httpadapter.Pinger{
		"database": a.db,
		"index":    httpadapter.PingFunc(a.indexer.HealthCheck),
	}
	if a.redisClient != nil {
		readiness["redis"] = httpadapter.PingFunc(func(ctx context.Context) error {
			return a.redisClient.Ping(ctx).Err()
		})
	}

	return httpadapter.NewServer(
		httpadapter.Config{
			Host:            a.cfg.Server.Host,
			Port:            a.cfg.Server.Port,
			Version:         version,
			ReadTimeout:     a.cfg.Server.ReadTimeout,
			WriteTimeout:    a.cfg.Server.WriteTimeout,
			ShutdownTimeout: a.cfg.Server.ShutdownTimeout,
			AllowedOrigins:  a.cfg.Server.AllowedOrigins,
			Logger:          a.logger,
		},
		a.authService,
		a.ingestion,
		a.taskQueue,
		readiness,
	)
}

// newWorker builds the task worker, with the reaper attached when enabled
func (a *app) newWorker() *worker.Worker {
	var background []worker.Background
	if a.cfg.Reaper.Enabled {
		background = append(background, services.NewReaper(services.ReaperConfig{
			Store:           postgres.NewTaskStore(a.db),
			Scheduler:       a.scheduler,
			Lock:            a.lock,
			Logger:          a.logger,
			Interval:        a.cfg.Reaper.Interval,
			StaleAfter:      a.cfg.Reaper.StaleAfter,
			RedispatchAfter: a.cfg.Reaper.RedispatchAfter,
			BatchSize:       a.cfg.Reaper.BatchSize,
			LockTTL:         a.cfg.Reaper.LockTTL,
		}))
	}

	return worker.NewWorker(worker.WorkerConfig{
		TaskQueue:      a.taskQueue,
		Runner:         a.scheduler,
		Background:     background,
		Logger:         a.logger,
		Concurrency:    a.cfg.Worker.Concurrency,
		Pollers:        a.cfg.Worker.Pollers,
		DequeueTimeout: a.cfg.Worker.DequeueTimeout,
		JobTimeout:     a.cfg.Worker.JobTimeout,
	})
}

// Close releases connections in reverse order of acquisition
func (a *app) Close() {
	if a.runtime != nil {
		if err := a.runtime.Close(); err != nil {
			a.logger.Warn("failed to close embedding service", "error", err)
		}
	}
	if a.taskQueue != nil {
		if err := a.taskQueue.Close(); err != nil {
			a.logger.Warn("failed to close task queue", "error", err)
		}
	}
	if a.redisClient != nil {
		_ = a.redisClient.Close()
	}
	if a.db != nil {
		_ = a.db.Close()
	}
}
