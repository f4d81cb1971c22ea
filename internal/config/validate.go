package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/custodia-labs/sercha-ingest/internal/adapters/driven/ai"
	"github.com/custodia-labs/sercha-ingest/internal/postprocessors"
)

// Validate checks the configuration and reports every problem found
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		add("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Database.URL == "" {
		add("database.url is required")
	}

	switch c.Queue.Backend {
	case "", QueueBackendAuto, QueueBackendPostgres, QueueBackendMemory:
	case QueueBackendRedis:
		if c.Redis.URL == "" {
			add("queue.backend redis requires redis.url")
		}
	default:
		add("queue.backend must be auto, redis, postgres or memory, got %q", c.Queue.Backend)
	}
	if c.Queue.MaxDeliveries < 1 {
		add("queue.max_deliveries must be >= 1, got %d", c.Queue.MaxDeliveries)
	}
	if c.Queue.ClaimTimeout <= c.Worker.JobTimeout {
		add("queue.claim_timeout (%s) must exceed worker.job_timeout (%s)", c.Queue.ClaimTimeout, c.Worker.JobTimeout)
	}

	if c.Vespa.URL == "" {
		add("vespa.url is required")
	}

	switch c.Embedding.Provider {
	case ai.ProviderNone, ai.ProviderOllama:
	case ai.ProviderOpenAI:
		if c.Embedding.APIKey == "" {
			add("embedding.api_key is required for provider openai")
		}
	default:
		add("embedding.provider must be empty, openai or ollama, got %q", c.Embedding.Provider)
	}

	if c.Worker.Concurrency < 1 {
		add("worker.concurrency must be >= 1, got %d", c.Worker.Concurrency)
	}
	if c.Worker.JobTimeout <= 0 {
		add("worker.job_timeout must be positive")
	}
	if c.Worker.HeartbeatInterval <= 0 {
		add("worker.heartbeat_interval must be positive")
	}

	if c.Reaper.Enabled && c.Reaper.StaleAfter <= c.Worker.HeartbeatInterval {
		add("reaper.stale_after (%s) must exceed worker.heartbeat_interval (%s)", c.Reaper.StaleAfter, c.Worker.HeartbeatInterval)
	}

	if c.Chunking.MaxTokens < 1 {
		add("chunking.max_tokens must be >= 1, got %d", c.Chunking.MaxTokens)
	}
	switch strings.ToLower(c.Chunking.Tokenizer) {
	case "", postprocessors.TokenizerWord, postprocessors.TokenizerCL100KBase, "tiktoken":
	default:
		add("chunking.tokenizer must be word or cl100k_base, got %q", c.Chunking.Tokenizer)
	}

	if c.Blob.Root == "" {
		add("blob.root is required")
	}

	if c.Auth.JWTSecret == "" && len(c.Auth.APIKeyHashes) == 0 {
		add("auth.jwt_secret or auth.api_key_hashes is required")
	}
	if c.Auth.JWTSecret != "" && len(c.Auth.JWTSecret) < 16 {
		add("auth.jwt_secret must be at least 16 characters")
	}

	switch strings.ToLower(c.Log.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		add("log.level must be debug, info, warn or error, got %q", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		add("log.format must be text or json, got %q", c.Log.Format)
	}

	return errors.Join(errs...)
}
